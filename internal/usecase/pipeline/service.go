// Package pipeline backfills transaction embeddings page by page with
// bounded concurrency and per-record retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/batch"
	"github.com/kailas-cloud/finrag/internal/metrics"
)

// Defaults for Config zero values.
const (
	DefaultPageSize           = 200
	DefaultSmallConcurrency   = 8
	DefaultLargeConcurrency   = 20
	DefaultLargePageThreshold = 500
	DefaultMaxAttempts        = 3
	DefaultInitialBackoff     = time.Second
)

// Config tunes a pipeline run.
type Config struct {
	PageSize           int
	SmallConcurrency   int
	LargeConcurrency   int
	LargePageThreshold int // pages above this size use LargeConcurrency
	MaxAttempts        int
	InitialBackoff     time.Duration
	RequestsPerSecond  float64 // provider calls per second, 0 = unlimited
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SmallConcurrency <= 0 {
		c.SmallConcurrency = DefaultSmallConcurrency
	}
	if c.LargeConcurrency <= 0 {
		c.LargeConcurrency = DefaultLargeConcurrency
	}
	if c.LargePageThreshold <= 0 {
		c.LargePageThreshold = DefaultLargePageThreshold
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	return c
}

// Concurrency returns the gate size for the configured page size.
func (c Config) Concurrency() int {
	c = c.withDefaults()
	if c.PageSize > c.LargePageThreshold {
		return c.LargeConcurrency
	}
	return c.SmallConcurrency
}

// Service runs full and incremental embedding backfills.
type Service struct {
	records RecordStore
	gen     Generator
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a pipeline service.
func New(records RecordStore, gen Generator, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	s := &Service{records: records, gen: gen, cfg: cfg, logger: logger}
	if cfg.RequestsPerSecond > 0 {
		burst := max(int(cfg.RequestsPerSecond), len(domain.EmbeddingColumns))
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s
}

// RunFull embeds every incomplete record of entity.
func (s *Service) RunFull(ctx context.Context, entity string) (Report, error) {
	return s.run(ctx, ModeFull, entity, time.Time{})
}

// RunIncremental embeds incomplete records of entity dated on or after since.
func (s *Service) RunIncremental(ctx context.Context, entity string, since time.Time) (Report, error) {
	if since.IsZero() {
		return Report{}, fmt.Errorf("incremental run needs a since date: %w", domain.ErrInvalidArgument)
	}
	return s.run(ctx, ModeIncremental, entity, since)
}

// Status reports how many records of entity still lack embeddings.
func (s *Service) Status(ctx context.Context, entity string) (domain.EmbeddingStatus, error) {
	if entity == "" {
		return domain.EmbeddingStatus{}, fmt.Errorf("entity is required: %w", domain.ErrInvalidArgument)
	}
	st, err := s.records.Status(ctx, entity)
	if err != nil {
		return domain.EmbeddingStatus{}, fmt.Errorf("embedding status: %w", err)
	}
	return st, nil
}

func (s *Service) run(ctx context.Context, mode Mode, entity string, since time.Time) (Report, error) {
	rep := Report{Mode: mode, Entity: entity, Since: since}
	if entity == "" {
		return rep, fmt.Errorf("entity is required: %w", domain.ErrInvalidArgument)
	}

	start := time.Now()
	defer func() {
		metrics.PipelineRunDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	sem := semaphore.NewWeighted(int64(s.cfg.Concurrency()))
	s.logger.Info("Embedding run started",
		zap.String("mode", string(mode)),
		zap.String("entity", entity),
		zap.Time("since", since),
		zap.Int("page_size", s.cfg.PageSize),
		zap.Int("concurrency", s.cfg.Concurrency()),
	)

	after := ""
	for {
		if err := ctx.Err(); err != nil {
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("embedding run canceled: %w", err)
		}

		page, err := s.records.PendingPage(ctx, domain.PendingQuery{
			EntityID: entity, AfterID: after, Since: since, Limit: s.cfg.PageSize,
		})
		if err != nil {
			rep.Duration = time.Since(start)
			return rep, fmt.Errorf("fetch page %d: %w", rep.Pages+1, err)
		}
		if len(page) == 0 {
			break
		}

		rep.Pages++
		rep.Fetched += len(page)
		metrics.PipelinePagesTotal.WithLabelValues(string(mode)).Inc()

		pageStart := time.Now()
		results := s.processPage(ctx, mode, sem, page)
		before := rep.Failed
		rep.add(results)

		s.logger.Info("Embedding page done",
			zap.String("entity", entity),
			zap.Int("page", rep.Pages),
			zap.Int("records", len(page)),
			zap.Int("failed", rep.Failed-before),
			zap.Duration("duration", time.Since(pageStart)),
		)

		after = page[len(page)-1].ID
		if mode == ModeFull && len(page) < s.cfg.PageSize {
			break
		}
	}

	rep.Duration = time.Since(start)
	s.logger.Info("Embedding run finished",
		zap.String("mode", string(mode)),
		zap.String("entity", entity),
		zap.Int("pages", rep.Pages),
		zap.Int("succeeded", rep.Succeeded),
		zap.Int("failed", rep.Failed),
		zap.Duration("duration", rep.Duration),
	)
	return rep, nil
}

// processPage fans out one task per record and waits for the whole page.
func (s *Service) processPage(
	ctx context.Context, mode Mode, sem *semaphore.Weighted, page []domain.PendingRecord,
) []batch.Result {
	results := make([]batch.Result, len(page))
	var wg sync.WaitGroup

	for i, rec := range page {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(page); j++ {
				results[j] = batch.NewError(page[j].ID, 0, err)
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = s.processRecord(ctx, rec)

			label := "embedded"
			if !results[i].OK() {
				label = "failed"
			}
			metrics.PipelineRecordsTotal.WithLabelValues(string(mode), label).Inc()
		}()
	}

	wg.Wait()
	return results
}

// processRecord generates with retries, then saves. A failed save is not retried;
// the record stays incomplete and is picked up by the next run.
func (s *Service) processRecord(ctx context.Context, rec domain.PendingRecord) batch.Result {
	attempts := 0
	set, err := backoff.Retry(ctx, func() (domain.EmbeddingSet, error) {
		attempts++
		if s.limiter != nil {
			if err := s.limiter.WaitN(ctx, len(domain.EmbeddingColumns)); err != nil {
				return domain.EmbeddingSet{}, backoff.Permanent(err)
			}
		}
		set, err := s.gen.Generate(ctx, rec.Transaction, rec.Category)
		if err != nil && (ctx.Err() != nil || !retryable(err)) {
			return domain.EmbeddingSet{}, backoff.Permanent(err)
		}
		return set, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)), //nolint:gosec // validated positive
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.PipelineRetriesTotal.Inc()
			s.logger.Debug("Retrying record",
				zap.String("id", rec.ID), zap.Int("attempt", attempts),
				zap.Duration("wait", wait), zap.Error(err))
		}),
	)
	if err != nil {
		s.logger.Warn("Record embedding failed",
			zap.String("id", rec.ID), zap.Int("attempts", attempts), zap.Error(err))
		return batch.NewError(rec.ID, attempts, err)
	}

	if err := s.records.SaveEmbeddings(ctx, rec.ID, set); err != nil {
		s.logger.Warn("Record save failed", zap.String("id", rec.ID), zap.Error(err))
		return batch.NewError(rec.ID, attempts, fmt.Errorf("save: %w", err))
	}
	return batch.NewOK(rec.ID, attempts)
}

// newBackOff waits InitialBackoff, then doubles. No jitter.
func (s *Service) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = s.cfg.InitialBackoff * 8
	return bo
}

// retryable excludes failures a second attempt cannot fix.
func retryable(err error) bool {
	return !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) &&
		!errors.Is(err, domain.ErrVectorDimMismatch)
}
