// Package report defines the result shapes returned by catalog functions and
// renders them as deterministic text for the chat model.
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Kind tags a Result variant.
type Kind string

// Result kinds.
const (
	KindCategoryList      Kind = "category_list"
	KindTransactionList   Kind = "transaction_list"
	KindSpendingBreakdown Kind = "spending_breakdown"
	KindRawTable          Kind = "raw_table"
)

// Result is the closed set of catalog function outputs.
// Only types in this package implement it.
type Result interface {
	Kind() Kind
	// Len is the number of data rows; zero means the function found nothing.
	Len() int
	sealed()
}

// CategoryTotal is one aggregated category row.
type CategoryTotal struct {
	Code        string
	Description string
	Count       int64
	Total       decimal.Decimal
	Average     decimal.Decimal
}

// CategoryList is a ranked list of categories.
type CategoryList struct {
	Items []CategoryTotal
}

// Kind implements Result.
func (CategoryList) Kind() Kind { return KindCategoryList }

// Len implements Result.
func (l CategoryList) Len() int { return len(l.Items) }
func (CategoryList) sealed()    {}

// TransactionRow is one transaction in a listing.
type TransactionRow struct {
	ID           string
	Date         time.Time
	Description  string
	Amount       decimal.Decimal
	Counterparty string
	Category     string
	// Similarity is set only for rows produced by vector search.
	Similarity *float64
}

// TransactionList is an ordered list of transactions.
type TransactionList struct {
	Items []TransactionRow
}

// Kind implements Result.
func (TransactionList) Kind() Kind { return KindTransactionList }

// Len implements Result.
func (l TransactionList) Len() int { return len(l.Items) }
func (TransactionList) sealed()    {}

// MonthTotal is spending within one calendar month.
type MonthTotal struct {
	Month time.Time
	Count int64
	Total decimal.Decimal
}

// SpendingBreakdown summarises spending for one category over a period.
type SpendingBreakdown struct {
	Category string
	From     time.Time
	To       time.Time
	Count    int64
	Total    decimal.Decimal
	Average  decimal.Decimal
	Largest  decimal.Decimal
	Months   []MonthTotal
}

// Kind implements Result.
func (SpendingBreakdown) Kind() Kind { return KindSpendingBreakdown }

// Len implements Result.
func (b SpendingBreakdown) Len() int { return int(b.Count) }
func (SpendingBreakdown) sealed()    {}

// RawTable is an untyped tabular payload from a free-form query.
type RawTable struct {
	Columns []string
	Rows    [][]string
}

// Kind implements Result.
func (RawTable) Kind() Kind { return KindRawTable }

// Len implements Result.
func (t RawTable) Len() int { return len(t.Rows) }
func (RawTable) sealed()    {}

// FromSearchHits converts ranked similarity hits into a transaction list,
// keeping their order.
func FromSearchHits(hits []domain.SearchHit) TransactionList {
	items := make([]TransactionRow, len(hits))
	for i, h := range hits {
		sim := h.Similarity()
		category := h.CategoryDescription
		if category == "" {
			category = h.CategoryCode
		}
		items[i] = TransactionRow{
			ID:           h.ID,
			Date:         h.Date,
			Description:  h.Description,
			Amount:       decimal.NewFromFloat(h.Amount),
			Counterparty: h.Counterparty,
			Category:     category,
			Similarity:   &sim,
		}
	}
	return TransactionList{Items: items}
}
