package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sqlchat_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_questions_total",
			Help: "Questions answered, by outcome (answer, empty, error).",
		},
		[]string{"outcome"},
	)
	generationLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_generation_latency_ms",
			Help:    "Language model round trip latency in milliseconds.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)
	sanitizeRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sqlchat_sanitize_rejections_total",
			Help: "Generated outputs rejected by the SQL sanitizer, by reason.",
		},
		[]string{"reason"},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_execution_latency_ms",
			Help:    "Query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
	)
	resultRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sqlchat_result_rows",
			Help:    "Rows returned per executed query.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 10000},
		},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sqlchat_sessions_active",
			Help: "Conversation sessions currently held in memory.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		questionsTotal,
		generationLatencyMs,
		sanitizeRejectionsTotal,
		executionLatencyMs,
		resultRows,
		sessionsActive,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveGeneration(elapsed time.Duration) {
	generationLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func IncrementSanitizeRejection(reason string) {
	sanitizeRejectionsTotal.WithLabelValues(reason).Inc()
}

func ObserveExecution(elapsed time.Duration, rows int) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if rows >= 0 {
		resultRows.Observe(float64(rows))
	}
}

func SetSessionsActive(n int) {
	if n < 0 {
		n = 0
	}
	sessionsActive.Set(float64(n))
}
