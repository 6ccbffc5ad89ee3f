package pipeline

import (
	"time"

	"github.com/kailas-cloud/finrag/internal/domain/batch"
)

// Mode selects which records a run considers.
type Mode string

// Run modes.
const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
)

// MaxReportedFailures bounds Report.Failures; Failed keeps the full count.
const MaxReportedFailures = 100

// Report summarizes one run.
type Report struct {
	Mode      Mode
	Entity    string
	Since     time.Time
	Pages     int
	Fetched   int
	Succeeded int
	Failed    int
	Failures  []batch.Result
	Duration  time.Duration
}

func (r *Report) add(results []batch.Result) {
	for _, res := range results {
		if res.OK() {
			r.Succeeded++
			continue
		}
		r.Failed++
		if len(r.Failures) < MaxReportedFailures {
			r.Failures = append(r.Failures, res)
		}
	}
}
