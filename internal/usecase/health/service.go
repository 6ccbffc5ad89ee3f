package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the relational store is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names in Report.Checks.
const (
	ComponentDatabase  = "database"
	ComponentRedis     = "redis"
	ComponentEmbedding = "embedding"
)

// checkTimeout bounds each probe.
const checkTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	redis     DBPinger
	embedding EmbeddingChecker
}

// New creates a Service. redis and embedding can be nil.
func New(db, redis DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, redis: redis, embedding: embedding}
}

// Check runs health checks against all components. Postgres failing makes
// the service unhealthy; any other failure only degrades it.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks[ComponentDatabase] = probe(ctx, s.db.Ping)
	if s.redis != nil {
		checks[ComponentRedis] = probe(ctx, s.redis.Ping)
	}
	if s.embedding != nil {
		checks[ComponentEmbedding] = probe(ctx, s.embedding.HealthCheck)
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}
	if checks[ComponentDatabase] == CheckError {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
