// Package search runs cosine similarity queries against one of the five
// transaction embedding columns.
package search

import (
	"cmp"
	"context"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/query"
)

// Pool is the subset of pgxpool.Pool used here.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repo executes similarity searches.
type Repo struct {
	pool Pool
}

// New creates a search repository.
func New(p Pool) *Repo {
	return &Repo{pool: p}
}

// Search ranks rows by the column and ordering of queryType. Rows without a
// vector in that column are never returned; no matches is an empty slice.
func (r *Repo) Search(
	ctx context.Context, queryType query.Type,
	vector []float32, topN int, filters domain.SearchFilters,
) ([]domain.SearchHit, error) {
	return r.Run(ctx, Query{
		Column:  queryType.Column(),
		SortKey: queryType.SortKey(),
		Vector:  vector,
		TopN:    topN,
		Filters: filters,
	})
}

// Run executes a resolved query.
func (r *Repo) Run(ctx context.Context, q Query) ([]domain.SearchHit, error) {
	sql, args, err := Build(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.NewStoreError("similarity search", err)
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		var h domain.SearchHit
		if err := rows.Scan(
			&h.ID, &h.Description, &h.Amount, &h.Date,
			&h.Counterparty, &h.CategoryCode,
			&h.CategoryDescription, &h.CategoryShort,
			&h.Distance,
		); err != nil {
			return nil, domain.NewStoreError("scan search hit", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("similarity search", err)
	}

	Rank(hits, q.SortKey)
	if topN := min(q.TopN, MaxTopN); len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// Rank orders hits the way the SQL does: by amount or date descending with
// distance as tie-break, or by distance alone. The sort is stable.
func Rank(hits []domain.SearchHit, key query.SortKey) {
	slices.SortStableFunc(hits, func(a, b domain.SearchHit) int {
		switch key {
		case query.SortByAmount:
			if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
				return c
			}
		case query.SortByDate:
			if c := b.Date.Compare(a.Date); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.Distance, b.Distance)
	})
}
