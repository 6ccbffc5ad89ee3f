package domain

import "time"

// KeyPrefix namespaces every key the service writes to Redis.
const KeyPrefix = "finrag:"

// EmbeddingColumn names one of the five vector columns of a transaction row.
type EmbeddingColumn string

// Embedding columns. Values are the physical column names.
const (
	ColumnContent  EmbeddingColumn = "content_embedding"
	ColumnAmount   EmbeddingColumn = "amount_embedding"
	ColumnDate     EmbeddingColumn = "date_embedding"
	ColumnCategory EmbeddingColumn = "category_embedding"
	ColumnCombined EmbeddingColumn = "combined_embedding"
)

// EmbeddingColumns lists every column in generation order.
var EmbeddingColumns = []EmbeddingColumn{
	ColumnContent, ColumnAmount, ColumnDate, ColumnCategory, ColumnCombined,
}

// Valid reports whether c is one of the known columns.
// SQL builders rely on this to keep column names out of user control.
func (c EmbeddingColumn) Valid() bool {
	switch c {
	case ColumnContent, ColumnAmount, ColumnDate, ColumnCategory, ColumnCombined:
		return true
	}
	return false
}

// Transaction is a ledger entry. Created by ingestion, never deleted here.
type Transaction struct {
	ID            string
	EntityID      string
	Description   string
	Amount        float64
	Currency      string
	Date          time.Time
	Counterparty  string
	AccountNumber string
	CategoryCode  string
}

// CategoryMapping maps a category code to human-readable labels.
type CategoryMapping struct {
	Code             string
	Description      string
	ShortDescription string
}

// PendingRecord is a transaction whose embedding set is incomplete,
// joined with its category mapping.
type PendingRecord struct {
	Transaction
	Category CategoryMapping
}

// EmbeddingSet holds the five vectors computed for one transaction.
type EmbeddingSet struct {
	Content  []float32
	Amount   []float32
	Date     []float32
	Category []float32
	Combined []float32
}

// Vector returns the vector stored for col.
func (s *EmbeddingSet) Vector(col EmbeddingColumn) []float32 {
	switch col {
	case ColumnContent:
		return s.Content
	case ColumnAmount:
		return s.Amount
	case ColumnDate:
		return s.Date
	case ColumnCategory:
		return s.Category
	case ColumnCombined:
		return s.Combined
	}
	return nil
}

// Set stores v under col. Unknown columns are ignored.
func (s *EmbeddingSet) Set(col EmbeddingColumn, v []float32) {
	switch col {
	case ColumnContent:
		s.Content = v
	case ColumnAmount:
		s.Amount = v
	case ColumnDate:
		s.Date = v
	case ColumnCategory:
		s.Category = v
	case ColumnCombined:
		s.Combined = v
	}
}

// Complete reports whether every column holds a vector of exactly dim elements.
func (s *EmbeddingSet) Complete(dim int) bool {
	for _, col := range EmbeddingColumns {
		if len(s.Vector(col)) != dim || dim == 0 {
			return false
		}
	}
	return true
}

// PendingQuery selects one keyset page of incomplete records.
type PendingQuery struct {
	EntityID string
	AfterID  string    // exclusive cursor; "" starts from the beginning
	Since    time.Time // zero means no date bound
	Limit    int
}

// EmbeddingStatus counts an entity's records.
type EmbeddingStatus struct {
	Total   int64
	Missing int64
}
