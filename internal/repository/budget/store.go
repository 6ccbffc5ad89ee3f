// Package budget persists embedding token counters in Redis.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/finrag/internal/db"
)

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps one counter per budget window key.
type Store struct {
	store store
}

// New creates a budget store.
func New(s store) *Store {
	return &Store{store: s}
}

// Add increments the counter at key and arms its expiry on first write.
// The TTL is never extended afterwards (EXPIRE NX), so a window counter
// dies a fixed time after the window opened.
func (s *Store) Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error {
	if err := s.store.IncrBy(ctx, key, tokens); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}
	if ttl <= 0 {
		return nil
	}
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// Load returns the counter at key, 0 when absent.
func (s *Store) Load(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}
