package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry         *prometheus.Registry
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  prometheus.Histogram
	MatchedNodes     prometheus.Counter
	SelectorCompiles *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	matched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_matched_nodes_total",
			Help: "Total number of nodes matched across all selectors.",
		},
	)
	compiles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_selector_compiles_total",
			Help: "Selector compilations by outcome.",
		},
		[]string{"outcome"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, matched, compiles, errorsTotal)

	return &Metrics{
		Registry:         registry,
		RequestsTotal:    requests,
		RequestDuration:  requestDuration,
		MatchedNodes:     matched,
		SelectorCompiles: compiles,
		ErrorsTotal:      errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddMatches adds n matched nodes.
func (m *Metrics) AddMatches(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.MatchedNodes.Add(float64(n))
}

// IncCompile counts a selector compilation with outcome "ok" or "invalid".
func (m *Metrics) IncCompile(outcome string) {
	if m == nil {
		return
	}
	m.SelectorCompiles.WithLabelValues(outcome).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
