package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/finrag/internal/domain"
)

var (
	year2025 = domain.YearPeriod(2025)
	txCols   = []string{"id", "transaction_date", "description", "amount", "counterparty", "category"}
)

func TestTopExpenseCategories(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{"code", "description", "count", "total", "average"}).
		AddRow("6100", "Marketing", int64(4), 5200.0, 1300.0).
		AddRow("uncategorized", "", int64(2), 80.5, 40.25)

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(year2025.From, year2025.To, 5).
		WillReturnRows(rows)

	got, err := New(mock).TopExpenseCategories(context.Background(), year2025, 5)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "Marketing", got.Items[0].Description)
	assert.Equal(t, "5200.00", got.Items[0].Total.StringFixed(2))
	assert.Equal(t, "40.25", got.Items[1].Average.StringFixed(2))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTopExpenseCategories_DefaultLimitAndBadPeriod(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(year2025.From, year2025.To, DefaultLimit).
		WillReturnRows(pgxmock.NewRows([]string{"code", "description", "count", "total", "average"}))

	got, err := New(mock).TopExpenseCategories(context.Background(), year2025, 0)
	require.NoError(t, err)
	assert.Zero(t, got.Len())

	_, err = New(mock).TopExpenseCategories(context.Background(), domain.Period{}, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDiscoverCategories(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT COALESCE").
		WithArgs(year2025.From, year2025.To).
		WillReturnRows(pgxmock.NewRows([]string{"code", "description", "count", "total", "average"}).
			AddRow("4000", "Sales", int64(30), 90000.0, 3000.0))

	got, err := New(mock).DiscoverCategories(context.Background(), year2025)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, int64(30), got.Items[0].Count)
}

func TestTransactionsByCategory(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	date := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT t.id").
		WithArgs("marketing", year2025.From, year2025.To, 10).
		WillReturnRows(pgxmock.NewRows(txCols).
			AddRow("tx-1", date, "Google Ads", -450.0, "Google", "Marketing"))

	got, err := New(mock).TransactionsByCategory(context.Background(), " marketing ", year2025, 10)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "-450.00", got.Items[0].Amount.StringFixed(2))
	assert.Nil(t, got.Items[0].Similarity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionsByCategory_RequiresCategory(t *testing.T) {
	_, err := New(nil).TransactionsByCategory(context.Background(), "  ", year2025, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTransactionsByCategory_StoreError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("SELECT t.id").
		WithArgs("rent", year2025.From, year2025.To, 10).
		WillReturnError(errors.New("relation \"transactions\" does not exist"))

	_, err = New(mock).TransactionsByCategory(context.Background(), "rent", year2025, 10)
	assert.ErrorIs(t, err, domain.ErrStore)
}

func TestDetectAnomalies_DefaultZ(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("WITH stats AS").
		WithArgs(year2025.From, year2025.To, DefaultAnomalyZ, 20).
		WillReturnRows(pgxmock.NewRows(txCols))

	got, err := New(mock).DetectAnomalies(context.Background(), year2025, 0, 20)
	require.NoError(t, err)
	assert.Zero(t, got.Len())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategorySpending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("travel", year2025.From, year2025.To).
		WillReturnRows(pgxmock.NewRows([]string{"count", "total", "avg", "max"}).
			AddRow(int64(3), 900.0, 300.0, 500.0))
	mock.ExpectQuery("SELECT date_trunc").
		WithArgs("travel", year2025.From, year2025.To).
		WillReturnRows(pgxmock.NewRows([]string{"month", "count", "total"}).
			AddRow(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), int64(1), 500.0).
			AddRow(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), int64(2), 400.0))

	got, err := New(mock).CategorySpending(context.Background(), "travel", year2025)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Len())
	assert.Equal(t, "500.00", got.Largest.StringFixed(2))
	assert.Equal(t, "2025-12-31", got.To.Format(time.DateOnly))
	require.Len(t, got.Months, 2)
	assert.Equal(t, time.May, got.Months[1].Month.Month())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterpartySummary(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	last := time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT t.counterparty").
		WithArgs(year2025.From, year2025.To, "Nova", 10).
		WillReturnRows(pgxmock.NewRows([]string{"counterparty", "count", "net", "volume", "last"}).
			AddRow("Nova Creations", int64(5), 1200.0, 3400.5, last))

	got, err := New(mock).CounterpartySummary(context.Background(), "Nova", year2025, 10)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, []string{"Nova Creations", "5", "1200.00", "3400.50", "2025-04-30"}, got.Rows[0])
}

func TestValidateReadOnly(t *testing.T) {
	ok := []string{
		"SELECT COUNT(*) FROM transactions;",
		"  with x as (select 1) select * from x",
		"select counterparty, sum(amount) from transactions group by 1 offset 5",
	}
	for _, q := range ok {
		_, err := ValidateReadOnly(q)
		assert.NoError(t, err, q)
	}

	bad := []string{
		"",
		"DELETE FROM transactions",
		"SELECT 1; DROP TABLE transactions",
		"WITH d AS (DELETE FROM transactions RETURNING *) SELECT * FROM d",
		"SELECT * FROM transactions FOR UPDATE",
		"update transactions set amount = 0",
	}
	for _, q := range bad {
		_, err := ValidateReadOnly(q)
		assert.ErrorIs(t, err, domain.ErrReadOnlyViolation, q)
	}
}

func TestRunReadOnlyQuery(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
	mock.ExpectQuery("SELECT category_code").
		WillReturnRows(pgxmock.NewRows([]string{"category_code", "n", "first_seen"}).
			AddRow("6100", int64(4), time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)).
			AddRow(nil, int64(1), time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC)))
	mock.ExpectRollback()

	got, err := New(mock).RunReadOnlyQuery(context.Background(),
		"SELECT category_code, COUNT(*) AS n, MIN(transaction_date) AS first_seen FROM transactions GROUP BY 1;")
	require.NoError(t, err)
	assert.Equal(t, []string{"category_code", "n", "first_seen"}, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []string{"6100", "4", "2025-01-02"}, got.Rows[0])
	assert.Equal(t, "NULL", got.Rows[1][0])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunReadOnlyQuery_RejectedNeverTouchesDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = New(mock).RunReadOnlyQuery(context.Background(), "TRUNCATE transactions")
	assert.ErrorIs(t, err, domain.ErrReadOnlyViolation)
	require.NoError(t, mock.ExpectationsWereMet())
}
