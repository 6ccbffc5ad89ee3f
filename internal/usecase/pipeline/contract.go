package pipeline

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// RecordStore pages incomplete records and writes their vectors back.
type RecordStore interface {
	PendingPage(ctx context.Context, q domain.PendingQuery) ([]domain.PendingRecord, error)
	SaveEmbeddings(ctx context.Context, id string, set domain.EmbeddingSet) error
	Status(ctx context.Context, entityID string) (domain.EmbeddingStatus, error)
}

// Generator computes the five embeddings of one record.
type Generator interface {
	Generate(ctx context.Context, tx domain.Transaction, mapping domain.CategoryMapping) (domain.EmbeddingSet, error)
}
