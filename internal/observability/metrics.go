package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "handover"

// Metrics exposes Prometheus counters for requests, transitions and sweeps.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	requestCount  *prometheus.CounterVec
	requestTime   *prometheus.HistogramVec
	errorCount    *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	tokenAttempts *prometheus.CounterVec
	sweepItems    *prometheus.CounterVec
	sweepDuration *prometheus.HistogramVec
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Assignment state transitions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		tokenAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_issue_attempts_total",
			Help:      "Signing token generation attempts by outcome.",
		}, []string{"outcome"}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Assignments handled by background sweeps by outcome.",
		}, []string{"sweep", "outcome"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one sweep tick.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"sweep"}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestTime,
		m.errorCount,
		m.transitions,
		m.tokenAttempts,
		m.sweepItems,
		m.sweepDuration,
	)
	return m
}

// Registry returns the gatherer backing /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordTransition counts a sign, dispute or expire attempt.
func (m *Metrics) RecordTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, outcome).Inc()
}

// RecordTokenAttempt counts one token generation attempt.
func (m *Metrics) RecordTokenAttempt(outcome string) {
	if m == nil {
		return
	}
	m.tokenAttempts.WithLabelValues(outcome).Inc()
}

// RecordSweepItems adds n handled assignments to a sweep outcome.
func (m *Metrics) RecordSweepItems(sweep, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepItems.WithLabelValues(sweep, outcome).Add(float64(n))
}

// ObserveSweep records how long a sweep tick took.
func (m *Metrics) ObserveSweep(sweep string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.WithLabelValues(sweep).Observe(duration.Seconds())
}
