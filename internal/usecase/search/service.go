// Package search answers free-text questions by classifying them, embedding
// them, and ranking transactions against the matching embedding column.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/query"
)

// DefaultTopN applies when the caller passes a non-positive limit.
const DefaultTopN = 10

// Result is one answered search.
type Result struct {
	Query query.Classified
	Hits  []domain.SearchHit
}

// Service runs classify, embed, execute.
type Service struct {
	repo  Repository
	embed Embedder
}

// New creates a search service.
func New(repo Repository, embed Embedder) *Service {
	return &Service{repo: repo, embed: embed}
}

// Search embeds text once and ranks transactions. Provider errors surface as-is,
// without retry.
func (s *Service) Search(
	ctx context.Context, text string, topN int, filters domain.SearchFilters,
) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("empty query: %w", domain.ErrInvalidArgument)
	}
	if topN <= 0 {
		topN = DefaultTopN
	}

	classified := query.NewClassified(text)

	embResult, err := s.embed.Embed(ctx, text)
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	domain.UsageFromContext(ctx).AddTokens(embResult.TotalTokens)

	hits, err := s.repo.Search(ctx, classified.Type, embResult.Embedding, topN, filters)
	if err != nil {
		return Result{}, fmt.Errorf("search %s: %w", classified.Column, err)
	}
	return Result{Query: classified, Hits: hits}, nil
}
