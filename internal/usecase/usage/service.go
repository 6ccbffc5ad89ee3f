// Package usage reports embedding token consumption against the configured budgets.
package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/finrag/internal/domain/usage"
)

// Service handles usage reporting.
type Service struct {
	br       BudgetReader
	provider string
	now      func() time.Time
}

// New creates a Service. br can be nil (unlimited mode).
func New(br BudgetReader, provider string) *Service {
	return &Service{br: br, provider: provider, now: time.Now}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := s.now().UTC()
	r := domusage.Report{Period: period, Provider: s.provider}

	var limit, used int64
	switch period {
	case domusage.PeriodMonth:
		r.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 1, 0)
		if s.br != nil {
			limit, used = s.br.MonthlyLimit(), s.br.MonthlyUsed()
		}
	default:
		r.Period = domusage.PeriodDay
		r.Start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		r.End = r.Start.AddDate(0, 0, 1)
		if s.br != nil {
			limit, used = s.br.DailyLimit(), s.br.DailyUsed()
		}
	}

	r.Budget = domusage.NewBudget(limit, used)
	return r
}
