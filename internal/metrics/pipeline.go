package metrics

import "github.com/prometheus/client_golang/prometheus"

// Batch embedding pipeline metrics.
var (
	PipelineRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_records_total",
			Help:      "Records processed by the embedding pipeline",
		},
		[]string{"mode", "result"}, // result: "embedded" / "failed"
	)

	PipelinePagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_pages_total",
			Help:      "Pages fetched by the embedding pipeline",
		},
		[]string{"mode"},
	)

	PipelineRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_retries_total",
			Help:      "Per-record generation retries",
		},
	)

	PipelineRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_run_duration_seconds",
			Help:      "Wall time of a full or incremental run",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 10800},
		},
		[]string{"mode"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Safe to call more than once.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRecordsTotal)
	prometheus.MustRegister(PipelinePagesTotal)
	prometheus.MustRegister(PipelineRetriesTotal)
	prometheus.MustRegister(PipelineRunDuration)
	pipelineMetricsRegistered = true
}
