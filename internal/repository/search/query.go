package search

import (
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/query"
)

// MaxTopN caps a single similarity search.
const MaxTopN = 100

// Query is a fully resolved similarity search.
type Query struct {
	Column  domain.EmbeddingColumn
	SortKey query.SortKey
	Vector  []float32
	TopN    int
	Filters domain.SearchFilters
}

const selectHits = `SELECT t.id, COALESCE(t.description, ''), t.amount::float8, t.transaction_date,
	COALESCE(t.counterparty, ''), COALESCE(t.category_code, ''),
	COALESCE(c.description, ''), COALESCE(c.short_description, ''),
	t.%[1]s <=> $1 AS distance
FROM transactions t
LEFT JOIN category_mappings c ON c.code = t.category_code
WHERE t.%[1]s IS NOT NULL`

// Build renders q as parameterised SQL. The vector is always $1; the column
// name is interpolated only after checking it against the closed column set.
func Build(q Query) (string, []any, error) {
	if !q.Column.Valid() {
		return "", nil, fmt.Errorf("column %q: %w", q.Column, domain.ErrInvalidArgument)
	}
	if len(q.Vector) == 0 {
		return "", nil, fmt.Errorf("empty query vector: %w", domain.ErrInvalidArgument)
	}
	if q.TopN <= 0 {
		return "", nil, fmt.Errorf("top_n %d: %w", q.TopN, domain.ErrInvalidArgument)
	}
	topN := min(q.TopN, MaxTopN)

	var b strings.Builder
	fmt.Fprintf(&b, selectHits, q.Column)
	args := []any{pgvector.NewVector(q.Vector)}

	next := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	f := q.Filters
	if cp := strings.TrimSpace(f.Counterparty); cp != "" {
		fmt.Fprintf(&b, "\n  AND lower(t.counterparty) = lower($%d)", next(cp))
	}
	if !f.From.IsZero() {
		fmt.Fprintf(&b, "\n  AND t.transaction_date >= $%d", next(f.From))
	}
	if !f.To.IsZero() {
		fmt.Fprintf(&b, "\n  AND t.transaction_date < $%d", next(f.To))
	}
	if f.Year > 0 {
		fmt.Fprintf(&b, "\n  AND EXTRACT(YEAR FROM t.transaction_date) = $%d", next(f.Year))
	}

	b.WriteString("\nORDER BY ")
	b.WriteString(orderBy(q.SortKey))
	fmt.Fprintf(&b, "\nLIMIT $%d", next(topN))

	return b.String(), args, nil
}

func orderBy(key query.SortKey) string {
	switch key {
	case query.SortByAmount:
		return "t.amount DESC, distance ASC, t.id"
	case query.SortByDate:
		return "t.transaction_date DESC, distance ASC, t.id"
	}
	return "distance ASC, t.id"
}
