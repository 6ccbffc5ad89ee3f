package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/app"
	"github.com/kailas-cloud/finrag/internal/config"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/metrics"
	analyticsrepo "github.com/kailas-cloud/finrag/internal/repository/analytics"
	searchrepo "github.com/kailas-cloud/finrag/internal/repository/search"
	sessionrepo "github.com/kailas-cloud/finrag/internal/repository/session"
	chiTransport "github.com/kailas-cloud/finrag/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/finrag/internal/transport/openai"
	chatuc "github.com/kailas-cloud/finrag/internal/usecase/chat"
	convuc "github.com/kailas-cloud/finrag/internal/usecase/conversation"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	searchuc "github.com/kailas-cloud/finrag/internal/usecase/search"
	usageuc "github.com/kailas-cloud/finrag/internal/usecase/usage"
	"github.com/kailas-cloud/finrag/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting finrag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("chat_model", cfg.Chat.Model),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()
	metrics.RegisterChatMetrics()
	metrics.RegisterHTTPMetrics()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize backends", zap.Error(err))
	}
	defer a.Close()

	// Sessions: in-process LRU, snapshotted to Redis when available
	var snapshots convuc.Snapshotter
	if a.Store != nil {
		snapshots = sessionrepo.New(a.Store, cfg.Session.TTL())
	}
	sessions := convuc.NewManager(convuc.Config{
		MaxSessions: cfg.Session.MaxSessions,
		TTL:         cfg.Session.TTL(),
		WindowTurns: cfg.Session.WindowTurns,
		MaxTurns:    cfg.Session.MaxTurns,
	}, snapshots, logger)

	searchSvc := searchuc.New(searchrepo.New(a.Pool), a.QueryEmbedder)
	catalog := chatuc.NewCatalog(searchSvc, analyticsrepo.New(a.Pool), nil)

	decider := openaiTransport.NewChatDecider(&openaiTransport.ChatConfig{
		Config: openaiTransport.Config{
			APIKey:   cfg.Chat.APIKey,
			BaseURL:  cfg.Chat.BaseURL,
			Model:    cfg.Chat.Model,
			Provider: cfg.Embedding.Provider,
			Logger:   logger,
		},
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.MaxTokens,
	})
	chatSvc := chatuc.New(decider, catalog, sessions, chatuc.Config{
		MaxIterations:   cfg.Chat.MaxIterations,
		DecisionTimeout: cfg.Chat.DecisionTimeout(),
		ToolTimeout:     cfg.Chat.ToolTimeout(),
		RequestTimeout:  cfg.Chat.RequestTimeout(),
		HistoryTurns:    cfg.Chat.HistoryTurns,
	}, logger)

	// Usage service reads from the shared BudgetTracker
	var budgetReader usageuc.BudgetReader
	if a.Budget != nil {
		budgetReader = a.Budget
	}
	usageSvc := usageuc.New(budgetReader, cfg.Embedding.Provider)

	healthSvc := healthuc.New(a.Pool, a.RedisPinger(), a.Provider)

	server := chiTransport.NewServer(chatSvc, sessions, a.Pipeline, usageSvc, healthSvc, logger)
	defer server.Close()

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
