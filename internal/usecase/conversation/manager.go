// Package conversation keeps per-session turn history and summaries and
// derives the financial context used to reframe follow-up questions.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
)

// Defaults for Config zero values.
const (
	DefaultMaxSessions = 10000
	DefaultTTL         = 24 * time.Hour
	DefaultMaxTurns    = 50
)

// Config bounds the in-process session map.
type Config struct {
	MaxSessions int
	TTL         time.Duration // idle sessions expire after this
	WindowTurns int           // turns scanned by context extraction
	MaxTurns    int           // stored turns per session; oldest dropped
}

func (c Config) withDefaults() Config {
	if c.MaxSessions <= 0 {
		c.MaxSessions = DefaultMaxSessions
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.WindowTurns <= 0 {
		c.WindowTurns = conversation.DefaultWindow
	}
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	return c
}

type session struct {
	mu      sync.Mutex
	id      string
	loaded  bool
	turns   []conversation.Turn
	summary conversation.Summary
	updated time.Time
}

func (s *session) snapshot() conversation.Snapshot {
	return conversation.Snapshot{
		ID:        s.id,
		Turns:     append([]conversation.Turn(nil), s.turns...),
		Summary:   s.summary,
		UpdatedAt: s.updated,
	}
}

// Manager owns every live session. Operations on one session are serialized;
// different sessions never block each other.
type Manager struct {
	mu       sync.Mutex
	sessions *expirable.LRU[string, *session]
	store    Snapshotter
	cfg      Config
	now      func() time.Time
	logger   *zap.Logger
}

// NewManager creates a manager. store may be nil for memory-only sessions.
func NewManager(cfg Config, store Snapshotter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Manager{
		sessions: expirable.NewLRU[string, *session](cfg.MaxSessions, nil, cfg.TTL),
		store:    store,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// acquire returns the locked session for id, creating and loading it on first touch.
// The caller must unlock it.
func (m *Manager) acquire(ctx context.Context, id string) (*session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id: %w", domain.ErrInvalidArgument)
	}

	m.mu.Lock()
	s, ok := m.sessions.Get(id)
	if !ok {
		s = &session{id: id}
		m.sessions.Add(id, s)
	}
	m.mu.Unlock()

	s.mu.Lock()
	if !s.loaded {
		m.load(ctx, s)
		s.loaded = true
	}
	return s, nil
}

func (m *Manager) load(ctx context.Context, s *session) {
	if m.store == nil {
		return
	}
	snap, err := m.store.Load(ctx, s.id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return
	case err != nil:
		m.logger.Warn("Session load failed, starting empty", zap.String("session_id", s.id), zap.Error(err))
		return
	}
	s.turns = snap.Turns
	s.summary = snap.Summary
	s.updated = snap.UpdatedAt
}

// persist refreshes the session TTL and writes it behind. Store failures are logged only.
// A session evicted or cleared while in use stays out of memory.
func (m *Manager) persist(ctx context.Context, s *session) {
	m.mu.Lock()
	if live, ok := m.sessions.Peek(s.id); ok && live == s {
		m.sessions.Add(s.id, s)
	}
	m.mu.Unlock()

	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, s.snapshot()); err != nil {
		m.logger.Warn("Session save failed", zap.String("session_id", s.id), zap.Error(err))
	}
}

// AppendTurn adds a turn. Turn timestamps strictly increase within a session.
func (m *Manager) AppendTurn(ctx context.Context, id string, role conversation.Role, text string) error {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	at := m.now()
	if n := len(s.turns); n > 0 && !at.After(s.turns[n-1].At) {
		at = s.turns[n-1].At.Add(time.Nanosecond)
	}
	s.turns = append(s.turns, conversation.Turn{Role: role, Text: text, At: at})
	if over := len(s.turns) - m.cfg.MaxTurns; over > 0 {
		s.turns = append([]conversation.Turn(nil), s.turns[over:]...)
	}
	s.updated = at

	m.persist(ctx, s)
	return nil
}

// Turns returns a copy of the session history, oldest first.
func (m *Manager) Turns(ctx context.Context, id string) ([]conversation.Turn, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	return append([]conversation.Turn(nil), s.turns...), nil
}

// Context extracts entities from the recent window, falling back to the
// summary for fields the window does not mention.
func (m *Manager) Context(ctx context.Context, id string) (conversation.FinancialContext, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return conversation.FinancialContext{}, err
	}
	defer s.mu.Unlock()
	return conversation.Extract(s.turns, m.cfg.WindowTurns).WithFallback(s.summary), nil
}

// Summary returns the rendered summary, "" for a fresh session.
func (m *Manager) Summary(ctx context.Context, id string) (string, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	return s.summary.String(), nil
}

// UpdateSummary merges the entities of one query/response exchange into the summary.
func (m *Manager) UpdateSummary(ctx context.Context, id, query, response string) error {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer s.mu.Unlock()

	exchange := []conversation.Turn{
		{Role: conversation.RoleUser, Text: query},
		{Role: conversation.RoleAssistant, Text: response},
	}
	newer := conversation.SummaryFrom(conversation.Extract(exchange, len(exchange)))
	if newer.Empty() {
		return nil
	}
	s.summary = s.summary.Merge(newer)
	s.updated = m.now()

	m.persist(ctx, s)
	return nil
}

// Snapshot returns the session state or domain.ErrNotFound when it holds nothing.
func (m *Manager) Snapshot(ctx context.Context, id string) (conversation.Snapshot, error) {
	s, err := m.acquire(ctx, id)
	if err != nil {
		return conversation.Snapshot{}, err
	}
	defer s.mu.Unlock()

	if len(s.turns) == 0 && s.summary.Empty() {
		return conversation.Snapshot{}, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return s.snapshot(), nil
}

// Clear drops the session from memory and from the store.
func (m *Manager) Clear(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("session id: %w", domain.ErrInvalidArgument)
	}

	m.mu.Lock()
	s, ok := m.sessions.Peek(id)
	m.sessions.Remove(id)
	m.mu.Unlock()

	if ok {
		s.mu.Lock()
		s.turns, s.summary, s.updated = nil, conversation.Summary{}, time.Time{}
		s.mu.Unlock()
	}

	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions.Len()
}
