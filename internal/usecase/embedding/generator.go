package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// Texts are the five source strings embedded for one transaction.
type Texts struct {
	Content  string
	Amount   string
	Date     string
	Category string
	Combined string
}

// For returns the text that feeds col.
func (t Texts) For(col domain.EmbeddingColumn) string {
	switch col {
	case domain.ColumnContent:
		return t.Content
	case domain.ColumnAmount:
		return t.Amount
	case domain.ColumnDate:
		return t.Date
	case domain.ColumnCategory:
		return t.Category
	case domain.ColumnCombined:
		return t.Combined
	}
	return ""
}

// SourceTexts builds the five texts from the record fields. Same input, same bytes.
func SourceTexts(tx domain.Transaction, mapping domain.CategoryMapping) Texts {
	t := Texts{
		Content:  contentText(tx),
		Amount:   amountText(tx),
		Date:     dateText(tx),
		Category: categoryText(tx, mapping),
	}
	t.Combined = strings.Join([]string{t.Content, t.Amount, t.Date, t.Category}, " | ")
	return t
}

func contentText(tx domain.Transaction) string {
	parts := []string{strings.TrimSpace(tx.Description)}
	if tx.Counterparty != "" {
		parts = append(parts, "Counterparty: "+tx.Counterparty)
	}
	if tx.AccountNumber != "" {
		parts = append(parts, "Account: "+tx.AccountNumber)
	}
	return strings.Join(parts, ". ")
}

func amountText(tx domain.Transaction) string {
	amount := decimal.NewFromFloat(tx.Amount)
	abs := amount.Abs()
	direction := "Income"
	if amount.IsNegative() {
		direction = "Expense"
	}
	currency := tx.Currency
	if currency == "" {
		currency = "EUR"
	}
	return fmt.Sprintf("Amount: %s %s. %s of %s %s. Size: %s",
		amount.StringFixed(2), currency, direction, abs.StringFixed(2), currency, magnitude(abs))
}

var (
	smallAmount  = decimal.NewFromInt(100)
	mediumAmount = decimal.NewFromInt(1000)
	largeAmount  = decimal.NewFromInt(10000)
)

func magnitude(abs decimal.Decimal) string {
	switch {
	case abs.LessThan(smallAmount):
		return "small"
	case abs.LessThan(mediumAmount):
		return "medium"
	case abs.LessThan(largeAmount):
		return "large"
	default:
		return "very large"
	}
}

func dateText(tx domain.Transaction) string {
	d := tx.Date.UTC()
	quarter := (int(d.Month())-1)/3 + 1
	return fmt.Sprintf("Date: %s. %s, %s %d, %d. Q%d %d. Month: %s %d",
		d.Format("2006-01-02"), d.Weekday(), d.Month(), d.Day(), d.Year(),
		quarter, d.Year(), d.Month(), d.Year())
}

func categoryText(tx domain.Transaction, m domain.CategoryMapping) string {
	code := tx.CategoryCode
	if code == "" {
		code = m.Code
	}
	if code == "" && m.Description == "" {
		return "Category: uncategorized"
	}
	text := "Category: " + strings.TrimSpace(code+" "+m.Description)
	if m.ShortDescription != "" {
		text += " (" + m.ShortDescription + ")"
	}
	return text
}

// Generator turns one transaction into its five embeddings.
type Generator struct {
	embedder  domain.Embedder
	dimension int
	logger    *zap.Logger
}

// NewGenerator creates a generator. A positive dimension enforces vector length.
func NewGenerator(embedder domain.Embedder, dimension int, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{embedder: embedder, dimension: dimension, logger: logger}
}

// Generate embeds the five texts sequentially. The first failure aborts the record;
// retries belong to the caller.
func (g *Generator) Generate(
	ctx context.Context, tx domain.Transaction, mapping domain.CategoryMapping,
) (domain.EmbeddingSet, error) {
	texts := SourceTexts(tx, mapping)
	usage := domain.UsageFromContext(ctx)

	var set domain.EmbeddingSet
	for _, col := range domain.EmbeddingColumns {
		res, err := g.embedder.Embed(ctx, texts.For(col))
		if err != nil {
			return domain.EmbeddingSet{}, fmt.Errorf("generate %s for %s: %w", col, tx.ID, err)
		}
		if g.dimension > 0 && len(res.Embedding) != g.dimension {
			return domain.EmbeddingSet{}, fmt.Errorf("generate %s for %s: got %d dimensions, want %d: %w",
				col, tx.ID, len(res.Embedding), g.dimension, domain.ErrVectorDimMismatch)
		}
		usage.AddTokens(res.TotalTokens)
		set.Set(col, res.Embedding)
	}

	g.logger.Debug("Embeddings generated", zap.String("id", tx.ID))
	return set, nil
}
