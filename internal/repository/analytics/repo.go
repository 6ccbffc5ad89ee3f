// Package analytics implements the structured queries behind the chat
// function catalog. Expenses are rows with a negative amount; totals are
// reported as positive spend.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/report"
)

// Pool is the subset of pgxpool.Pool used here.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// Default limits.
const (
	DefaultLimit     = 10
	MaxLimit         = 100
	DefaultAnomalyZ  = 3.0
	MaxReadOnlyRows  = 500
	categoryCodeNone = "uncategorized"
)

// Repo runs analytics queries.
type Repo struct {
	pool Pool
}

// New creates an analytics repository.
func New(p Pool) *Repo {
	return &Repo{pool: p}
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultLimit
	case n > MaxLimit:
		return MaxLimit
	}
	return n
}

func checkPeriod(p domain.Period) error {
	if !p.Valid() {
		return fmt.Errorf("period %s..%s: %w",
			p.From.Format(time.DateOnly), p.To.Format(time.DateOnly), domain.ErrInvalidArgument)
	}
	return nil
}

const categoryTotalsSelect = `SELECT COALESCE(NULLIF(t.category_code, ''), '` + categoryCodeNone + `'),
	COALESCE(c.description, ''), COUNT(*), SUM(-t.amount)::float8, AVG(-t.amount)::float8
FROM transactions t
LEFT JOIN category_mappings c ON c.code = t.category_code
WHERE t.amount < 0 AND t.transaction_date >= $1 AND t.transaction_date < $2
GROUP BY 1, 2`

// TopExpenseCategories ranks expense categories by total spend in p.
func (r *Repo) TopExpenseCategories(ctx context.Context, p domain.Period, limit int) (report.CategoryList, error) {
	if err := checkPeriod(p); err != nil {
		return report.CategoryList{}, err
	}
	sql := categoryTotalsSelect + "\nORDER BY 4 DESC, 1\nLIMIT $3"
	return r.categoryTotals(ctx, "top expense categories", sql, p.From, p.To, clampLimit(limit))
}

// DiscoverCategories lists every category that has activity in p, busiest first.
func (r *Repo) DiscoverCategories(ctx context.Context, p domain.Period) (report.CategoryList, error) {
	if err := checkPeriod(p); err != nil {
		return report.CategoryList{}, err
	}
	sql := `SELECT COALESCE(NULLIF(t.category_code, ''), '` + categoryCodeNone + `'),
	COALESCE(c.description, ''), COUNT(*), SUM(ABS(t.amount))::float8, AVG(ABS(t.amount))::float8
FROM transactions t
LEFT JOIN category_mappings c ON c.code = t.category_code
WHERE t.transaction_date >= $1 AND t.transaction_date < $2
GROUP BY 1, 2
ORDER BY 3 DESC, 1`
	return r.categoryTotals(ctx, "discover categories", sql, p.From, p.To)
}

func (r *Repo) categoryTotals(ctx context.Context, op, sql string, args ...any) (report.CategoryList, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return report.CategoryList{}, domain.NewStoreError(op, err)
	}
	defer rows.Close()

	var out report.CategoryList
	for rows.Next() {
		var (
			item       report.CategoryTotal
			total, avg float64
		)
		if err := rows.Scan(&item.Code, &item.Description, &item.Count, &total, &avg); err != nil {
			return report.CategoryList{}, domain.NewStoreError(op, err)
		}
		item.Total = decimal.NewFromFloat(total)
		item.Average = decimal.NewFromFloat(avg)
		out.Items = append(out.Items, item)
	}
	if err := rows.Err(); err != nil {
		return report.CategoryList{}, domain.NewStoreError(op, err)
	}
	return out, nil
}

// categoryMatch matches a category by exact code or by label substring.
const categoryMatch = `(t.category_code = $1 OR c.description ILIKE '%' || $1 || '%' OR c.short_description ILIKE '%' || $1 || '%')`

// TransactionsByCategory lists the most recent transactions of a category.
func (r *Repo) TransactionsByCategory(
	ctx context.Context, category string, p domain.Period, limit int,
) (report.TransactionList, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return report.TransactionList{}, fmt.Errorf("category: %w", domain.ErrInvalidArgument)
	}
	if err := checkPeriod(p); err != nil {
		return report.TransactionList{}, err
	}

	sql := `SELECT t.id, t.transaction_date, COALESCE(t.description, ''), t.amount::float8,
	COALESCE(t.counterparty, ''), COALESCE(c.description, t.category_code, '')
FROM transactions t
LEFT JOIN category_mappings c ON c.code = t.category_code
WHERE ` + categoryMatch + `
  AND t.transaction_date >= $2 AND t.transaction_date < $3
ORDER BY t.transaction_date DESC, t.id
LIMIT $4`
	return r.transactions(ctx, "transactions by category", sql, category, p.From, p.To, clampLimit(limit))
}

// DetectAnomalies returns transactions whose absolute amount lies more than
// z standard deviations above their category mean within p.
func (r *Repo) DetectAnomalies(ctx context.Context, p domain.Period, z float64, limit int) (report.TransactionList, error) {
	if err := checkPeriod(p); err != nil {
		return report.TransactionList{}, err
	}
	if z <= 0 {
		z = DefaultAnomalyZ
	}

	sql := `WITH stats AS (
	SELECT category_code, AVG(ABS(amount)) AS mean, STDDEV_POP(ABS(amount)) AS sd
	FROM transactions
	WHERE transaction_date >= $1 AND transaction_date < $2
	GROUP BY category_code
)
SELECT t.id, t.transaction_date, COALESCE(t.description, ''), t.amount::float8,
	COALESCE(t.counterparty, ''), COALESCE(c.description, t.category_code, '')
FROM transactions t
JOIN stats s ON s.category_code IS NOT DISTINCT FROM t.category_code
LEFT JOIN category_mappings c ON c.code = t.category_code
WHERE t.transaction_date >= $1 AND t.transaction_date < $2
  AND s.sd > 0 AND ABS(t.amount) > s.mean + $3 * s.sd
ORDER BY (ABS(t.amount) - s.mean) / s.sd DESC, t.id
LIMIT $4`
	return r.transactions(ctx, "detect anomalies", sql, p.From, p.To, z, clampLimit(limit))
}

func (r *Repo) transactions(ctx context.Context, op, sql string, args ...any) (report.TransactionList, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return report.TransactionList{}, domain.NewStoreError(op, err)
	}
	defer rows.Close()

	var out report.TransactionList
	for rows.Next() {
		var (
			row    report.TransactionRow
			amount float64
		)
		if err := rows.Scan(&row.ID, &row.Date, &row.Description, &amount, &row.Counterparty, &row.Category); err != nil {
			return report.TransactionList{}, domain.NewStoreError(op, err)
		}
		row.Amount = decimal.NewFromFloat(amount)
		out.Items = append(out.Items, row)
	}
	if err := rows.Err(); err != nil {
		return report.TransactionList{}, domain.NewStoreError(op, err)
	}
	return out, nil
}

// CategorySpending totals expenses of one category (all categories when
// category is empty) over p, with a per-month series. The aggregate and the
// series are fetched concurrently.
func (r *Repo) CategorySpending(ctx context.Context, category string, p domain.Period) (report.SpendingBreakdown, error) {
	if err := checkPeriod(p); err != nil {
		return report.SpendingBreakdown{}, err
	}
	category = strings.TrimSpace(category)

	where := `t.amount < 0 AND t.transaction_date >= $2 AND t.transaction_date < $3
  AND ($1 = '' OR ` + categoryMatch + `)`
	from := "\nFROM transactions t\nLEFT JOIN category_mappings c ON c.code = t.category_code\nWHERE "

	out := report.SpendingBreakdown{Category: category, From: p.From, To: p.LastDay()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sql := `SELECT COUNT(*), COALESCE(SUM(-t.amount), 0)::float8, COALESCE(AVG(-t.amount), 0)::float8,
	COALESCE(MAX(-t.amount), 0)::float8` + from + where
		var total, avg, largest float64
		if err := r.pool.QueryRow(gctx, sql, category, p.From, p.To).Scan(&out.Count, &total, &avg, &largest); err != nil {
			return domain.NewStoreError("category spending", err)
		}
		out.Total = decimal.NewFromFloat(total)
		out.Average = decimal.NewFromFloat(avg)
		out.Largest = decimal.NewFromFloat(largest)
		return nil
	})
	g.Go(func() error {
		sql := `SELECT date_trunc('month', t.transaction_date)::date, COUNT(*), SUM(-t.amount)::float8` +
			from + where + "\nGROUP BY 1\nORDER BY 1"
		months, err := r.monthly(gctx, sql, category, p.From, p.To)
		if err != nil {
			return err
		}
		out.Months = months
		return nil
	})
	if err := g.Wait(); err != nil {
		return report.SpendingBreakdown{}, err
	}
	return out, nil
}

func (r *Repo) monthly(ctx context.Context, sql string, args ...any) ([]report.MonthTotal, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.NewStoreError("monthly spending", err)
	}
	defer rows.Close()

	var out []report.MonthTotal
	for rows.Next() {
		var (
			m     report.MonthTotal
			total float64
		)
		if err := rows.Scan(&m.Month, &m.Count, &total); err != nil {
			return nil, domain.NewStoreError("monthly spending", err)
		}
		m.Total = decimal.NewFromFloat(total)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("monthly spending", err)
	}
	return out, nil
}

// CounterpartySummary ranks counterparties by absolute volume in p. A
// non-empty counterparty restricts the table to names containing it.
func (r *Repo) CounterpartySummary(
	ctx context.Context, counterparty string, p domain.Period, limit int,
) (report.RawTable, error) {
	if err := checkPeriod(p); err != nil {
		return report.RawTable{}, err
	}

	sql := `SELECT t.counterparty, COUNT(*), SUM(t.amount)::float8, SUM(ABS(t.amount))::float8,
	MAX(t.transaction_date)
FROM transactions t
WHERE t.transaction_date >= $1 AND t.transaction_date < $2
  AND COALESCE(t.counterparty, '') <> ''
  AND ($3 = '' OR t.counterparty ILIKE '%' || $3 || '%')
GROUP BY t.counterparty
ORDER BY 4 DESC, 1
LIMIT $4`

	rows, err := r.pool.Query(ctx, sql, p.From, p.To, strings.TrimSpace(counterparty), clampLimit(limit))
	if err != nil {
		return report.RawTable{}, domain.NewStoreError("counterparty summary", err)
	}
	defer rows.Close()

	out := report.RawTable{Columns: []string{"counterparty", "transactions", "net", "volume", "last_date"}}
	for rows.Next() {
		var (
			name       string
			count      int64
			net, vol   float64
			lastActive time.Time
		)
		if err := rows.Scan(&name, &count, &net, &vol, &lastActive); err != nil {
			return report.RawTable{}, domain.NewStoreError("counterparty summary", err)
		}
		out.Rows = append(out.Rows, []string{
			name,
			fmt.Sprint(count),
			decimal.NewFromFloat(net).StringFixed(2),
			decimal.NewFromFloat(vol).StringFixed(2),
			lastActive.Format(time.DateOnly),
		})
	}
	if err := rows.Err(); err != nil {
		return report.RawTable{}, domain.NewStoreError("counterparty summary", err)
	}
	return out, nil
}
