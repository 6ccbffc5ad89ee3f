package query

import (
	"testing"

	"github.com/kailas-cloud/finrag/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Type
	}{
		{"What were my highest marketing expenses in March?", Amount},
		{"Show the largest payments", Amount},
		{"How much money did we spend", Amount},
		{"Transactions from last month", Date},
		{"When did we pay Nova Creations?", Date},
		{"Spending by category in travel", Category},
		{"Show me software subscriptions", Category},
		{"office supplies purchases", Category},
		{"invoices mentioning Nova Creations", Content},
		{"", Content},
		{"MAY payroll", Date},
		{"maybe a refund", Content},
		{"monthly report", Date},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			if got := Classify(tc.text); got != tc.want {
				t.Errorf("Classify(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}

func TestClassify_AmountKeywordsAlwaysWin(t *testing.T) {
	for _, k := range AmountKeywords {
		text := "category " + k + " in march of this year"
		if got := Classify(text); got != Amount {
			t.Errorf("Classify(%q) = %q, want amount", text, got)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	text := "what type of payment happened on that date"
	first := Classify(text)
	for range 100 {
		if got := Classify(text); got != first {
			t.Fatalf("non-deterministic classification: %q then %q", first, got)
		}
	}
}

func TestColumn_Total(t *testing.T) {
	tests := []struct {
		t    Type
		want domain.EmbeddingColumn
	}{
		{Amount, domain.ColumnAmount},
		{Date, domain.ColumnDate},
		{Category, domain.ColumnCategory},
		{Content, domain.ColumnContent},
		{Combined, domain.ColumnCombined},
		{Type("bogus"), domain.ColumnCombined},
		{Type(""), domain.ColumnCombined},
	}
	for _, tc := range tests {
		if got := tc.t.Column(); got != tc.want {
			t.Errorf("%q.Column() = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestSortKey(t *testing.T) {
	if Amount.SortKey() != SortByAmount {
		t.Error("amount must sort by amount")
	}
	if Date.SortKey() != SortByDate {
		t.Error("date must sort by date")
	}
	for _, typ := range []Type{Content, Category, Combined} {
		if typ.SortKey() != SortByDistance {
			t.Errorf("%q must sort by distance", typ)
		}
	}
}

func TestParseType(t *testing.T) {
	if ParseType(" Amount ") != Amount {
		t.Error("expected amount")
	}
	if ParseType("nonsense") != Combined {
		t.Error("expected combined fallback")
	}
}

func TestNewClassified(t *testing.T) {
	c := NewClassified("largest invoices")
	if c.Type != Amount || c.Column != domain.ColumnAmount || c.SortKey != SortByAmount {
		t.Errorf("unexpected classification: %+v", c)
	}
	if c.Text != "largest invoices" {
		t.Errorf("text not preserved: %q", c.Text)
	}
}
