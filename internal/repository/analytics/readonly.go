package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/report"
	"github.com/kailas-cloud/finrag/internal/logger"
)

// forbiddenKeywords never appear in an accepted free-form query, even inside
// a SELECT (data-modifying CTEs, locking reads).
var forbiddenKeywords = []string{
	"insert", "update", "delete", "merge", "drop", "alter", "create", "truncate",
	"grant", "revoke", "copy", "vacuum", "call", "do", "lock", "for update", "for share",
	"set", "reset",
}

// ValidateReadOnly accepts a single SELECT or WITH statement and returns it
// without a trailing semicolon.
func ValidateReadOnly(sql string) (string, error) {
	q := strings.TrimSpace(sql)
	q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	if q == "" {
		return "", fmt.Errorf("empty query: %w", domain.ErrReadOnlyViolation)
	}
	if strings.Contains(q, ";") {
		return "", fmt.Errorf("multiple statements: %w", domain.ErrReadOnlyViolation)
	}

	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	if len(words) == 0 || (words[0] != "select" && words[0] != "with") {
		return "", fmt.Errorf("must start with SELECT or WITH: %w", domain.ErrReadOnlyViolation)
	}
	joined := " " + strings.Join(words, " ") + " "
	for _, kw := range forbiddenKeywords {
		if strings.Contains(joined, " "+kw+" ") {
			return "", fmt.Errorf("keyword %q: %w", kw, domain.ErrReadOnlyViolation)
		}
	}
	return q, nil
}

// RunReadOnlyQuery executes a validated free-form query inside a read-only
// transaction that is always rolled back. At most MaxReadOnlyRows rows are read.
func (r *Repo) RunReadOnlyQuery(ctx context.Context, sql string) (report.RawTable, error) {
	q, err := ValidateReadOnly(sql)
	if err != nil {
		return report.RawTable{}, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return report.RawTable{}, domain.NewStoreError("begin read-only", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			logger.FromContext(ctx).Warn("Read-only rollback failed", zap.Error(rbErr))
		}
	}()

	rows, err := tx.Query(ctx, q)
	if err != nil {
		return report.RawTable{}, domain.NewStoreError("read-only query", err)
	}
	defer rows.Close()

	var out report.RawTable
	for _, fd := range rows.FieldDescriptions() {
		out.Columns = append(out.Columns, fd.Name)
	}
	for rows.Next() && len(out.Rows) < MaxReadOnlyRows {
		vals, err := rows.Values()
		if err != nil {
			return report.RawTable{}, domain.NewStoreError("read-only query", err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = cell(v)
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return report.RawTable{}, domain.NewStoreError("read-only query", err)
	}
	return out, nil
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}
