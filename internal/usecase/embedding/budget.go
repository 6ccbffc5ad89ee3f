package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// BudgetStore persists window counters. Add must arm the key TTL only on first write.
type BudgetStore interface {
	Add(ctx context.Context, key string, tokens int64, ttl time.Duration) error
	Load(ctx context.Context, key string) (int64, error)
}

// Counter keys outlive their window so a late reader still sees the total.
const (
	dailyKeyTTL   = 48 * time.Hour
	monthlyKeyTTL = 32 * 24 * time.Hour
)

// window is one rolling budget period (calendar day or month, UTC).
type window struct {
	name     string
	layout   string
	ttl      time.Duration
	limit    int64
	used     int64
	start    time.Time
	truncate func(time.Time) time.Time
}

func (w *window) roll(now time.Time) {
	if cur := w.truncate(now); cur.After(w.start) {
		w.used = 0
		w.start = cur
	}
}

func (w *window) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

// remaining returns tokens left, -1 when unlimited.
func (w *window) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	if r := w.limit - w.used; r > 0 {
		return r
	}
	return 0
}

// BudgetTracker is an in-memory token budget tracker with optional persistence.
// Check never leaves the process; Record updates memory first, then writes behind to the store.
type BudgetTracker struct {
	mu       sync.Mutex
	daily    window
	monthly  window
	action   BudgetAction
	provider string
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a budget tracker with the given limits. Zero means unlimited.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &BudgetTracker{
		daily: window{
			name: "daily", layout: "2006-01-02", ttl: dailyKeyTTL,
			limit: dailyLimit, truncate: truncateToDay,
		},
		monthly: window{
			name: "monthly", layout: "2006-01", ttl: monthlyKeyTTL,
			limit: monthlyLimit, truncate: truncateToMonth,
		},
		action:   action,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	now := b.now()
	b.daily.start = truncateToDay(now)
	b.monthly.start = truncateToMonth(now)
	return b
}

// WithStore attaches a persistence store and loads current counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store
	b.loadFromStore(ctx)
	return b
}

func (b *BudgetTracker) loadFromStore(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	for _, w := range []*window{&b.daily, &b.monthly} {
		w.roll(now)
		val, err := b.store.Load(ctx, b.key(w, now))
		if err != nil {
			b.logger.Warn("Failed to load budget from store",
				zap.String("window", w.name), zap.Error(err))
			continue
		}
		w.used = val
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("monthly_used", b.monthly.used),
	)
}

// key formats finrag:budget:<provider>:<window>:<period>.
func (b *BudgetTracker) key(w *window, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, b.provider, w.name, t.Format(w.layout))
}

// Check verifies the budget allows a new request.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.roll()
	if !b.daily.exceeded() && !b.monthly.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.daily.used),
		zap.Int64("daily_limit", b.daily.limit),
		zap.Int64("monthly_used", b.monthly.used),
		zap.Int64("monthly_limit", b.monthly.limit),
	)
	return nil
}

// Record registers consumed tokens after a request.
func (b *BudgetTracker) Record(tokens int64) {
	b.mu.Lock()
	b.roll()
	b.daily.used += tokens
	b.monthly.used += tokens
	store := b.store
	now := b.now()
	writes := []struct {
		key string
		ttl time.Duration
	}{
		{b.key(&b.daily, now), b.daily.ttl},
		{b.key(&b.monthly, now), b.monthly.ttl},
	}
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Store writes must not hang on the caller's deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, w := range writes {
		if err := store.Add(ctx, w.key, tokens, w.ttl); err != nil {
			b.logger.Warn("Failed to persist budget", zap.String("key", w.key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left in the daily budget (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.daily.remaining()
}

// RemainingMonthly returns tokens left in the monthly budget (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.monthly.remaining()
}

// DailyLimit returns the daily token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.daily.limit }

// MonthlyLimit returns the monthly token cap.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.monthly.limit }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.daily.used
}

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.monthly.used
}

// Action returns the configured over-budget behavior.
func (b *BudgetTracker) Action() BudgetAction { return b.action }

func (b *BudgetTracker) roll() {
	now := b.now()
	b.daily.roll(now)
	b.monthly.roll(now)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
