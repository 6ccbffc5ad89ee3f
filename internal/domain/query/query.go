// Package query classifies free-text questions into retrieval strategies.
//
// Classification is a fixed rule table: keyword sets are tested in priority
// order Amount > Date > Category and anything else is Content. The table is
// exported so callers and tests can inspect it.
package query

import (
	"strings"
	"unicode"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Type is the retrieval strategy selected for a query.
type Type string

// Query types.
const (
	Content  Type = "content"
	Amount   Type = "amount"
	Date     Type = "date"
	Category Type = "category"
	Combined Type = "combined"
)

// SortKey is the primary ordering applied to similarity results.
type SortKey string

// Sort keys.
const (
	SortByDistance SortKey = "distance"
	SortByAmount   SortKey = "amount"
	SortByDate     SortKey = "date"
)

var (
	// AmountKeywords signal a question about money values.
	AmountKeywords = []string{
		"amount", "highest", "largest", "money", "payment", "value", "expensive", "cheap", "cost",
	}

	// DateKeywords signal a question about when something happened.
	DateKeywords = []string{
		"january", "february", "march", "april", "may", "june", "july", "august",
		"september", "october", "november", "december",
		"month", "year", "date", "when", "week", "day",
	}

	// CategoryKeywords signal a question about kinds of spending.
	CategoryKeywords = []string{
		"category", "type", "classification", "group",
		"marketing", "advertising", "travel", "software", "utilities", "payroll", "salary",
		"rent", "insurance", "consulting", "legal", "office supplies", "equipment",
		"meals", "entertainment", "subscriptions", "taxes", "maintenance", "shipping",
	}
)

// ParseType converts a label to a Type. Unknown labels map to Combined.
func ParseType(s string) Type {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case Content, Amount, Date, Category, Combined:
		return t
	}
	return Combined
}

// Classify returns the query type for text. It never fails: text that
// matches no rule is Content.
func Classify(text string) Type {
	words := tokenize(text)
	switch {
	case matchesAny(words, AmountKeywords):
		return Amount
	case matchesAny(words, DateKeywords):
		return Date
	case matchesAny(words, CategoryKeywords):
		return Category
	}
	return Content
}

// Column maps a query type to the embedding column it searches.
// Total: any unrecognised value falls back to the combined column.
func (t Type) Column() domain.EmbeddingColumn {
	switch t {
	case Amount:
		return domain.ColumnAmount
	case Date:
		return domain.ColumnDate
	case Category:
		return domain.ColumnCategory
	case Content:
		return domain.ColumnContent
	}
	return domain.ColumnCombined
}

// SortKey returns the primary ordering for results of this type.
func (t Type) SortKey() SortKey {
	switch t {
	case Amount:
		return SortByAmount
	case Date:
		return SortByDate
	}
	return SortByDistance
}

// Classified is the ephemeral result of classifying a query.
type Classified struct {
	Text    string
	Type    Type
	Column  domain.EmbeddingColumn
	SortKey SortKey
}

// NewClassified classifies text and resolves its column and sort key.
func NewClassified(text string) Classified {
	t := Classify(text)
	return Classified{Text: text, Type: t, Column: t.Column(), SortKey: t.SortKey()}
}

// tokenize lower-cases text and splits it into letter/digit runs.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchesAny reports whether any keyword occurs in words. Single-word
// keywords also match simple inflections (payments, monthly, days).
func matchesAny(words, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(k, " ") {
			if containsPhrase(words, strings.Fields(k)) {
				return true
			}
			continue
		}
		for _, w := range words {
			if w == k || w == k+"s" || w == k+"es" || w == k+"ly" {
				return true
			}
		}
	}
	return false
}

func containsPhrase(words, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(words); i++ {
		match := true
		for j, p := range phrase {
			if words[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
