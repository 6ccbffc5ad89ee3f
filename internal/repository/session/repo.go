// Package session persists conversation snapshots in Redis so that a session
// survives a process restart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
)

var keyPrefix = domain.KeyPrefix + "session:"

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Repo stores one JSON snapshot per session id.
type Repo struct {
	store store
	ttl   time.Duration
}

// New creates a session repository. ttl bounds how long an idle session is kept.
func New(s store, ttl time.Duration) *Repo {
	return &Repo{store: s, ttl: ttl}
}

// Load returns the snapshot for id or domain.ErrNotFound.
func (r *Repo) Load(ctx context.Context, id string) (conversation.Snapshot, error) {
	data, err := r.store.Get(ctx, key(id))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return conversation.Snapshot{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		return conversation.Snapshot{}, fmt.Errorf("load session %s: %w", id, err)
	}

	var snap conversation.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return conversation.Snapshot{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return snap, nil
}

// Save overwrites the snapshot and refreshes its TTL.
func (r *Repo) Save(ctx context.Context, snap conversation.Snapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("session id: %w", domain.ErrInvalidArgument)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", snap.ID, err)
	}
	if err := r.store.SetWithTTL(ctx, key(snap.ID), data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", snap.ID, err)
	}
	return nil
}

// Delete removes the snapshot. Deleting a missing session is not an error.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, key(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func key(id string) string { return keyPrefix + id }
