package metrics

import "github.com/prometheus/client_golang/prometheus"

// Chat orchestration metrics.
var (
	ChatRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by terminal outcome",
		},
		[]string{"outcome"},
	)

	ChatIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_iterations",
			Help:      "Decision iterations per chat request",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
	)

	ChatFunctionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_function_calls_total",
			Help:      "Catalog function invocations",
		},
		[]string{"function", "status"}, // status: "ok" / "empty" / "error" / "timeout"
	)

	ChatFunctionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_function_duration_seconds",
			Help:      "Catalog function latency",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
		},
		[]string{"function"},
	)

	ChatModelRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_model_requests_total",
			Help:      "Chat completion requests to the model provider",
		},
		[]string{"model", "kind", "status"}, // kind: "decide" / "answer"
	)

	ChatModelRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_model_request_duration_seconds",
			Help:      "Chat completion latency",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"model", "kind"},
	)

	ChatModelTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_model_tokens_total",
			Help:      "Chat completion tokens consumed",
		},
		[]string{"model", "type"}, // type: "prompt" / "completion"
	)
)

var chatMetricsRegistered bool

// RegisterChatMetrics registers chat metrics. Safe to call more than once.
func RegisterChatMetrics() {
	if chatMetricsRegistered {
		return
	}
	prometheus.MustRegister(ChatRequestsTotal)
	prometheus.MustRegister(ChatIterations)
	prometheus.MustRegister(ChatFunctionCallsTotal)
	prometheus.MustRegister(ChatFunctionDuration)
	prometheus.MustRegister(ChatModelRequestsTotal)
	prometheus.MustRegister(ChatModelRequestDuration)
	prometheus.MustRegister(ChatModelTokensTotal)
	chatMetricsRegistered = true
}
