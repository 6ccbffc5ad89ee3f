// Package chi exposes the engine over HTTP: chat, session inspection,
// embedding runs, usage and health.
package chi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/domain"
	"github.com/kailas-cloud/finrag/internal/domain/conversation"
	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
	"github.com/kailas-cloud/finrag/internal/metrics"
	"github.com/kailas-cloud/finrag/internal/usecase/chat"
	healthuc "github.com/kailas-cloud/finrag/internal/usecase/health"
	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
)

// ChatService answers one question within a session.
type ChatService interface {
	Process(ctx context.Context, sessionID, query string) chat.Reply
}

// SessionService inspects and clears sessions.
type SessionService interface {
	Snapshot(ctx context.Context, id string) (conversation.Snapshot, error)
	Clear(ctx context.Context, id string) error
}

// EmbeddingRunner runs the batch embedding pipeline.
type EmbeddingRunner interface {
	RunFull(ctx context.Context, entity string) (pipeline.Report, error)
	RunIncremental(ctx context.Context, entity string, since time.Time) (pipeline.Report, error)
	Status(ctx context.Context, entity string) (domain.EmbeddingStatus, error)
}

// UsageReporter reports embedding budget consumption.
type UsageReporter interface {
	GetReport(ctx context.Context, period domusage.Period) domusage.Report
}

// HealthChecker aggregates dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server holds the HTTP handlers.
type Server struct {
	chat     ChatService
	sessions SessionService
	runner   EmbeddingRunner
	usage    UsageReporter
	health   HealthChecker
	logger   *zap.Logger

	// Background embedding runs outlive their request; Close cancels them.
	runCtx    context.Context
	cancelRun context.CancelFunc
	runsMu    sync.Mutex
	running   map[string]struct{}
	runsWG    sync.WaitGroup

	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	chatSvc ChatService,
	sessions SessionService,
	runner EmbeddingRunner,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		chat:      chatSvc,
		sessions:  sessions,
		runner:    runner,
		usage:     usage,
		health:    health,
		logger:    logger,
		runCtx:    runCtx,
		cancelRun: cancel,
		running:   make(map[string]struct{}),
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeVectorDimMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, CodeEmbeddingQuotaExceeded),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeEmbeddingProviderError),
		sentinelHandler(domain.ErrModelProviderError, http.StatusBadGateway, CodeModelProviderError),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrStore, http.StatusServiceUnavailable, CodeStoreError),
	}
	return s
}

// Routes builds the router with the standard middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.Chat)
		r.Get("/sessions/{id}", s.GetSession)
		r.Delete("/sessions/{id}", s.DeleteSession)
		r.Get("/usage", s.GetUsage)

		r.Post("/admin/embeddings", s.StartEmbeddingRun)
		r.Get("/admin/embeddings/status", s.EmbeddingStatus)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})
	return r
}

// Close cancels background embedding runs and waits for them to stop.
func (s *Server) Close() {
	s.cancelRun()
	s.runsWG.Wait()
}
