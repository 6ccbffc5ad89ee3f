// Package app wires the storage backends, the embedder chain and the batch
// pipeline shared by the API server and the admin CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/config"
	"github.com/kailas-cloud/finrag/internal/db"
	"github.com/kailas-cloud/finrag/internal/db/postgres"
	dbRedis "github.com/kailas-cloud/finrag/internal/db/redis"
	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/metrics"
	budgetrepo "github.com/kailas-cloud/finrag/internal/repository/budget"
	"github.com/kailas-cloud/finrag/internal/repository/embcache"
	txrepo "github.com/kailas-cloud/finrag/internal/repository/transaction"
	openaiTransport "github.com/kailas-cloud/finrag/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/finrag/internal/usecase/embedding"
	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
)

// App holds the long-lived dependencies built from one Config.
type App struct {
	Config config.Config
	Logger *zap.Logger

	Pool  *pgxpool.Pool
	Store db.Store // nil when Redis is not configured

	Provider      *openaiTransport.Embedder
	Budget        *embeddinguc.BudgetTracker // nil when no limit is set
	DocEmbedder   domain.Embedder
	QueryEmbedder domain.Embedder
	Pipeline      *pipeline.Service
}

// New connects to Postgres and, when configured, Redis, then assembles the
// embedder chain and the pipeline. Metrics must be registered by the caller.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	pool, err := postgres.NewPool(ctx, postgres.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeSec) * time.Second,
		MaxConnIdleTime: time.Duration(cfg.Database.MaxConnIdleSec) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.Pool = pool
	logger.Info("Connected to postgres")

	if cfg.Redis.Enabled() {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Store = store
		if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			a.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
	} else {
		logger.Warn("Redis not configured: embedding cache, budget persistence and session snapshots disabled")
	}

	a.buildEmbedders(ctx)

	gen := embeddinguc.NewGenerator(a.DocEmbedder, cfg.Embedding.Dimensions, logger)
	a.Pipeline = pipeline.New(txrepo.New(pool), gen, pipeline.Config{
		PageSize:           cfg.Pipeline.PageSize,
		SmallConcurrency:   cfg.Pipeline.SmallConcurrency,
		LargeConcurrency:   cfg.Pipeline.LargeConcurrency,
		LargePageThreshold: cfg.Pipeline.LargePageThreshold,
		MaxAttempts:        cfg.Pipeline.MaxAttempts,
		InitialBackoff:     cfg.Pipeline.InitialBackoff(),
		RequestsPerSecond:  cfg.Pipeline.RequestsPerSecond,
	}, logger)

	return a, nil
}

// buildEmbedders assembles provider -> cache -> instrumented, plus an
// instruction prefix on the query side when one is configured.
func (a *App) buildEmbedders(ctx context.Context) {
	cfg := a.Config.Embedding

	a.Provider = openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		Dimensions: cfg.Dimensions,
		Provider:   cfg.Provider,
		Logger:     a.Logger,
	})

	var embedder domain.Embedder = a.Provider
	if a.Store != nil {
		embedder = embcache.New(a.Provider, a.Store, cfg.Model, a.Logger,
			embcache.WithTTL(time.Duration(cfg.CacheTTLHours)*time.Hour),
			embcache.WithMetrics(metrics.EmbeddingCacheTotal),
		)
	}

	// A typed nil *BudgetTracker inside the interface would not compare equal to nil.
	var checker embeddinguc.BudgetChecker
	if cfg.Budget.Enabled() {
		action := embeddinguc.BudgetActionWarn
		if cfg.Budget.Action == string(embeddinguc.BudgetActionReject) {
			action = embeddinguc.BudgetActionReject
		}
		a.Budget = embeddinguc.NewBudgetTracker(
			cfg.Provider, cfg.Budget.DailyTokenLimit, cfg.Budget.MonthlyTokenLimit, action, a.Logger,
		)
		if a.Store != nil {
			a.Budget.WithStore(ctx, budgetrepo.New(a.Store))
		}
		checker = a.Budget
	}

	a.DocEmbedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider, cfg.Model, checker, a.Logger)
	a.QueryEmbedder = a.DocEmbedder
	if cfg.QueryInstruction != "" {
		a.QueryEmbedder = domain.NewInstructionEmbedder(a.DocEmbedder, cfg.QueryInstruction)
	}

	a.Logger.Info("Embedders created",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", cfg.Dimensions),
		zap.Bool("cache", a.Store != nil),
		zap.Bool("budget", a.Budget != nil),
	)
}

// RedisPinger returns the Redis store as a health probe target, or nil.
func (a *App) RedisPinger() db.Pinger {
	if a.Store == nil {
		return nil
	}
	return a.Store
}

// Close releases every backend connection.
func (a *App) Close() {
	if a.Store != nil {
		a.Store.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
