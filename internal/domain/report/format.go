package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxRawRows caps how many rows of a raw table are rendered.
const MaxRawRows = 50

const dateLayout = "2006-01-02"

// Format renders r as the text appended to the conversation after function
// fn ran. Every variant has its own field-by-field template.
func Format(fn string, r Result) string {
	switch v := r.(type) {
	case CategoryList:
		return formatCategoryList(fn, v)
	case TransactionList:
		return formatTransactionList(fn, v)
	case SpendingBreakdown:
		return formatSpendingBreakdown(fn, v)
	case RawTable:
		return formatRawTable(fn, v)
	case nil:
		return fmt.Sprintf("Result of %s: no data.", fn)
	}
	return fmt.Sprintf("Result of %s: unsupported result kind %q.", fn, r.Kind())
}

// NoResults is the steering message used when a function returned nothing.
func NoResults(fn string) string {
	return fmt.Sprintf(
		"No results were found by %s. Do not call it again with the same arguments; "+
			"try a different function or broader arguments, or answer that no matching data exists.", fn)
}

func formatCategoryList(fn string, l CategoryList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result of %s: %d categories\n", fn, len(l.Items))
	for i, c := range l.Items {
		fmt.Fprintf(&b, "%d. %s", i+1, labelOr(c.Description, c.Code))
		if c.Code != "" && c.Description != "" {
			fmt.Fprintf(&b, " [%s]", c.Code)
		}
		fmt.Fprintf(&b, ": total %s, %d transactions, average %s\n",
			money(c.Total), c.Count, money(c.Average))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTransactionList(fn string, l TransactionList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result of %s: %d transactions\n", fn, len(l.Items))
	for _, t := range l.Items {
		fmt.Fprintf(&b, "- %s | %s | %s", t.Date.Format(dateLayout), t.Description, money(t.Amount))
		if t.Counterparty != "" {
			fmt.Fprintf(&b, " | counterparty: %s", t.Counterparty)
		}
		if t.Category != "" {
			fmt.Fprintf(&b, " | category: %s", t.Category)
		}
		if t.Similarity != nil {
			fmt.Fprintf(&b, " | similarity: %.2f", *t.Similarity)
		}
		fmt.Fprintf(&b, " | id: %s\n", t.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSpendingBreakdown(fn string, s SpendingBreakdown) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result of %s: spending for %s from %s to %s\n",
		fn, labelOr(s.Category, "all categories"), s.From.Format(dateLayout), s.To.Format(dateLayout))
	fmt.Fprintf(&b, "Total: %s\n", money(s.Total))
	fmt.Fprintf(&b, "Transactions: %d\n", s.Count)
	fmt.Fprintf(&b, "Average: %s\n", money(s.Average))
	fmt.Fprintf(&b, "Largest: %s", money(s.Largest))
	if len(s.Months) > 0 {
		b.WriteString("\nBy month:")
		for _, m := range s.Months {
			fmt.Fprintf(&b, "\n  %s: %s (%d)", m.Month.Format("2006-01"), money(m.Total), m.Count)
		}
	}
	return b.String()
}

func formatRawTable(fn string, t RawTable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Result of %s: %d rows\n", fn, len(t.Rows))
	b.WriteString(strings.Join(t.Columns, " | "))
	shown := t.Rows
	if len(shown) > MaxRawRows {
		shown = shown[:MaxRawRows]
	}
	for _, row := range shown {
		b.WriteString("\n")
		b.WriteString(strings.Join(row, " | "))
	}
	if hidden := len(t.Rows) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "\n... %d more rows", hidden)
	}
	return b.String()
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func labelOr(label, fallback string) string {
	if strings.TrimSpace(label) == "" {
		return fallback
	}
	return label
}
