package search

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/query"
)

// Repository executes similarity searches.
type Repository interface {
	Search(
		ctx context.Context, queryType query.Type,
		vector []float32, topN int, filters domain.SearchFilters,
	) ([]domain.SearchHit, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
