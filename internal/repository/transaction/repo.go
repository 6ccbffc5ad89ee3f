// Package transaction reads transactions awaiting embeddings and writes
// their vectors back.
package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Pool is the subset of pgxpool.Pool used here.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Repo implements the pipeline's record store on Postgres.
type Repo struct {
	pool Pool
}

// New creates a transaction repository.
func New(p Pool) *Repo {
	return &Repo{pool: p}
}

// missingClause matches rows with at least one empty embedding column.
var missingClause = func() string {
	parts := make([]string, len(domain.EmbeddingColumns))
	for i, col := range domain.EmbeddingColumns {
		parts[i] = "t." + string(col) + " IS NULL"
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}()

const pendingSelect = `SELECT t.id, t.entity_id, COALESCE(t.description, ''), t.amount::float8,
	COALESCE(t.currency, ''), t.transaction_date, COALESCE(t.counterparty, ''),
	COALESCE(t.account_number, ''), COALESCE(t.category_code, ''),
	COALESCE(c.description, ''), COALESCE(c.short_description, '')
FROM transactions t
LEFT JOIN category_mappings c ON c.code = t.category_code`

// buildPendingQuery renders the page query. Ordering by id keeps pages
// disjoint while other rows are being updated.
func buildPendingQuery(q domain.PendingQuery) (string, []any) {
	var b strings.Builder
	b.WriteString(pendingSelect)
	b.WriteString("\nWHERE t.entity_id = $1 AND ")
	b.WriteString(missingClause)
	b.WriteString(" AND t.id > $2")

	args := []any{q.EntityID, q.AfterID}
	if !q.Since.IsZero() {
		args = append(args, q.Since)
		fmt.Fprintf(&b, " AND t.transaction_date >= $%d", len(args))
	}
	args = append(args, q.Limit)
	fmt.Fprintf(&b, "\nORDER BY t.id\nLIMIT $%d", len(args))
	return b.String(), args
}

// PendingPage returns up to q.Limit records after q.AfterID whose embedding
// set is incomplete.
func (r *Repo) PendingPage(ctx context.Context, q domain.PendingQuery) ([]domain.PendingRecord, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("page limit %d: %w", q.Limit, domain.ErrInvalidArgument)
	}
	sql, args := buildPendingQuery(q)

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.NewStoreError("pending page", err)
	}
	defer rows.Close()

	out := make([]domain.PendingRecord, 0, q.Limit)
	for rows.Next() {
		var rec domain.PendingRecord
		if err := rows.Scan(
			&rec.ID, &rec.EntityID, &rec.Description, &rec.Amount,
			&rec.Currency, &rec.Date, &rec.Counterparty,
			&rec.AccountNumber, &rec.CategoryCode,
			&rec.Category.Description, &rec.Category.ShortDescription,
		); err != nil {
			return nil, domain.NewStoreError("scan pending record", err)
		}
		rec.Category.Code = rec.CategoryCode
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("pending page", err)
	}
	return out, nil
}

const updateEmbeddings = `UPDATE transactions SET
	content_embedding = $2,
	amount_embedding = $3,
	date_embedding = $4,
	category_embedding = $5,
	combined_embedding = $6
WHERE id = $1`

// SaveEmbeddings writes all five vectors of one record in a single statement,
// so a record is either fully embedded or untouched.
func (r *Repo) SaveEmbeddings(ctx context.Context, id string, set domain.EmbeddingSet) error {
	args := make([]any, 0, 1+len(domain.EmbeddingColumns))
	args = append(args, id)
	for _, col := range domain.EmbeddingColumns {
		v := set.Vector(col)
		if len(v) == 0 {
			return fmt.Errorf("%s for %s: %w", col, id, domain.ErrVectorDimMismatch)
		}
		args = append(args, pgvector.NewVector(v))
	}

	tag, err := r.pool.Exec(ctx, updateEmbeddings, args...)
	if err != nil {
		return domain.NewStoreError("save embeddings", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Status counts all and incomplete records of an entity.
func (r *Repo) Status(ctx context.Context, entityID string) (domain.EmbeddingStatus, error) {
	sql := `SELECT COUNT(*), COUNT(*) FILTER (WHERE ` + missingClause + `)
FROM transactions t
WHERE t.entity_id = $1`

	var st domain.EmbeddingStatus
	if err := r.pool.QueryRow(ctx, sql, entityID).Scan(&st.Total, &st.Missing); err != nil {
		return domain.EmbeddingStatus{}, domain.NewStoreError("embedding status", err)
	}
	return st, nil
}
