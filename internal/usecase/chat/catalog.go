package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/report"
)

// Catalog function names.
const (
	FnSearchTransactions     = "search_transactions"
	FnTopExpenseCategories   = "top_expense_categories"
	FnTransactionsByCategory = "transactions_by_category"
	FnDiscoverCategories     = "discover_categories"
	FnCategorySpending       = "category_spending"
	FnRunReadOnlyQuery       = "run_read_only_query"
	FnCounterpartySummary    = "counterparty_summary"
	FnDetectAnomalies        = "detect_anomalies"
)

// Function is one invocable catalog entry.
type Function struct {
	Spec   FunctionSpec
	Invoke func(ctx context.Context, args Args) (report.Result, error)
}

// Catalog is the fixed set of functions offered to the model.
type Catalog struct {
	funcs map[string]Function
	specs []FunctionSpec
}

// Lookup resolves a function by name.
func (c *Catalog) Lookup(name string) (Function, bool) {
	f, ok := c.funcs[name]
	return f, ok
}

// Specs lists every function in a stable order.
func (c *Catalog) Specs() []FunctionSpec { return c.specs }

func (c *Catalog) add(f Function) {
	c.funcs[f.Spec.Name] = f
	c.specs = append(c.specs, f.Spec)
}

// JSON Schema fragments.
var (
	periodProps = map[string]any{
		"year": prop("integer", "Calendar year, e.g. 2025. Defaults to the current year."),
		"from": prop("string", "First day included, YYYY-MM-DD."),
		"to":   prop("string", "Last day included, YYYY-MM-DD."),
	}
	limitProp = prop("integer", "Maximum rows to return (1-100).")
)

func prop(typ, desc string) map[string]any {
	return map[string]any{"type": typ, "description": desc}
}

func object(required []string, groups ...map[string]any) map[string]any {
	props := map[string]any{}
	for _, g := range groups {
		for k, v := range g {
			props[k] = v
		}
	}
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// NewCatalog wires the catalog to its backends. now resolves default periods.
func NewCatalog(searcher Searcher, analytics Analytics, now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	c := &Catalog{funcs: map[string]Function{}}

	c.add(Function{
		Spec: FunctionSpec{
			Name: FnSearchTransactions,
			Description: "Semantic search over transactions by free text. Use for questions about specific " +
				"payments, descriptions, amounts or dates that no structured function covers.",
			Parameters: object([]string{"query"}, map[string]any{
				"query":        prop("string", "The question in natural language."),
				"top_n":        prop("integer", "Number of matches (1-100, default 10)."),
				"counterparty": prop("string", "Exact customer or vendor name."),
			}, periodProps),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			text := a.String("query", "")
			if text == "" {
				return nil, fmt.Errorf("query: %w", domain.ErrInvalidArgument)
			}
			res, err := searcher.Search(ctx, text, a.Int("top_n", 0), searchFilters(a))
			if err != nil {
				return nil, err
			}
			return report.FromSearchHits(res.Hits), nil
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnTopExpenseCategories,
			Description: "Rank expense categories by total spend in a period.",
			Parameters:  object(nil, periodProps, map[string]any{"limit": limitProp}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.TopExpenseCategories(ctx, a.Period(now()), a.Int("limit", 0))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnTransactionsByCategory,
			Description: "List the most recent transactions of one category (code or name) in a period.",
			Parameters: object([]string{"category"}, periodProps, map[string]any{
				"category": prop("string", "Category code or name, e.g. 6100 or marketing."),
				"limit":    limitProp,
			}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.TransactionsByCategory(ctx, a.String("category", ""), a.Period(now()), a.Int("limit", 0))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnDiscoverCategories,
			Description: "List every category with activity in a period, busiest first.",
			Parameters:  object(nil, periodProps),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.DiscoverCategories(ctx, a.Period(now()))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnCategorySpending,
			Description: "Total, average, largest and monthly spending of one category in a period.",
			Parameters: object([]string{"category"}, periodProps, map[string]any{
				"category": prop("string", "Category code or name."),
			}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.CategorySpending(ctx, a.String("category", ""), a.Period(now()))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name: FnRunReadOnlyQuery,
			Description: "Run one read-only SQL SELECT against tables transactions(id, entity_id, description, " +
				"amount, currency, transaction_date, counterparty, account_number, category_code) and " +
				"category_mappings(code, description, short_description). Expenses have negative amounts.",
			Parameters: object([]string{"sql"}, map[string]any{
				"sql": prop("string", "A single SELECT or WITH statement."),
			}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.RunReadOnlyQuery(ctx, a.String("sql", ""))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnCounterpartySummary,
			Description: "Per customer/vendor totals in a period: transaction count, net amount, volume, last date.",
			Parameters: object(nil, periodProps, map[string]any{
				"counterparty": prop("string", "Optional name filter (substring)."),
				"limit":        limitProp,
			}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.CounterpartySummary(ctx, a.String("counterparty", ""), a.Period(now()), a.Int("limit", 0))
		},
	})

	c.add(Function{
		Spec: FunctionSpec{
			Name:        FnDetectAnomalies,
			Description: "Find expenses that are unusually large for their category in a period.",
			Parameters: object(nil, periodProps, map[string]any{
				"z_threshold": prop("number", "Standard deviations above the category mean (default 3)."),
				"limit":       limitProp,
			}),
		},
		Invoke: func(ctx context.Context, a Args) (report.Result, error) {
			return analytics.DetectAnomalies(ctx, a.Period(now()), a.Float("z_threshold", 0), a.Int("limit", 0))
		},
	})

	return c
}

// searchFilters applies only the filters the model supplied; search has no default period.
func searchFilters(a Args) domain.SearchFilters {
	f := domain.SearchFilters{Counterparty: a.String("counterparty", "")}
	if from, ok := a.Date("from"); ok {
		f.From = from
	}
	if to, ok := a.Date("to"); ok {
		f.To = to.AddDate(0, 0, 1)
	}
	if y := a.Int("year", 0); y >= 1900 && y <= 2100 {
		f.Year = y
	}
	return f
}
