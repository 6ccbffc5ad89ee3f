package chat

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
	"github.com/kailas-cloud/finrag/internal/domain/report"
	"github.com/kailas-cloud/finrag/internal/usecase/search"
)

// Decider is the chat model. Decide may pick a function; Answer never does.
type Decider interface {
	Decide(ctx context.Context, messages []Message, functions []FunctionSpec) (Decision, error)
	Answer(ctx context.Context, messages []Message) (string, error)
}

// Sessions is the conversation state the loop reads and updates.
type Sessions interface {
	AppendTurn(ctx context.Context, id string, role conversation.Role, text string) error
	Turns(ctx context.Context, id string) ([]conversation.Turn, error)
	Context(ctx context.Context, id string) (conversation.FinancialContext, error)
	Summary(ctx context.Context, id string) (string, error)
	UpdateSummary(ctx context.Context, id, query, response string) error
}

// Searcher runs similarity search over transactions.
type Searcher interface {
	Search(ctx context.Context, text string, topN int, filters domain.SearchFilters) (search.Result, error)
}

// Analytics runs the structured analysis functions.
type Analytics interface {
	TopExpenseCategories(ctx context.Context, p domain.Period, limit int) (report.CategoryList, error)
	DiscoverCategories(ctx context.Context, p domain.Period) (report.CategoryList, error)
	TransactionsByCategory(ctx context.Context, category string, p domain.Period, limit int) (report.TransactionList, error)
	CategorySpending(ctx context.Context, category string, p domain.Period) (report.SpendingBreakdown, error)
	CounterpartySummary(ctx context.Context, counterparty string, p domain.Period, limit int) (report.RawTable, error)
	DetectAnomalies(ctx context.Context, p domain.Period, z float64, limit int) (report.TransactionList, error)
	RunReadOnlyQuery(ctx context.Context, sql string) (report.RawTable, error)
}
