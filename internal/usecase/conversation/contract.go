package conversation

import (
	"context"

	"github.com/kailas-cloud/finrag/internal/domain/conversation"
)

// Snapshotter persists sessions outside the process.
type Snapshotter interface {
	Load(ctx context.Context, id string) (conversation.Snapshot, error)
	Save(ctx context.Context, snap conversation.Snapshot) error
	Delete(ctx context.Context, id string) error
}
