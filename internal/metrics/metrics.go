// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway
type Metrics struct {
	// HTTP edge
	RequestTotal    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Search engine
	SearchTotal     *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	FallbackTotal   prometheus.Counter
	EmptyPageTotal  prometheus.Counter

	// Cache
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Background pipeline
	ClassificationsQueued prometheus.Counter
	TrustRebuildDuration  prometheus.Histogram
	TrustRebuildTotal     *prometheus.CounterVec

	// MCP / OAuth edge
	MCPCalls    *prometheus.CounterVec
	OAuthGrants *prometheus.CounterVec

	// Dependencies
	BreakerState *prometheus.GaugeVec
}

// New creates and registers all gateway metrics
func New() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),

		SearchTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_search_total",
				Help: "Search executions by mode (vector, filter, fallback, merged)",
			},
			[]string{"mode"},
		),

		SearchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_search_duration_seconds",
				Help:    "Search engine latency by mode",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"mode"},
		),

		FallbackTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_search_fallback_total",
				Help: "Listings served from the chain SDK after an empty index result",
			},
		),

		EmptyPageTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_search_empty_pages_total",
				Help: "Pages returned with no items",
			},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_hits_total",
				Help: "Cache hits by namespace",
			},
			[]string{"namespace"},
		),

		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_misses_total",
				Help: "Cache misses by namespace",
			},
			[]string{"namespace"},
		),

		ClassificationsQueued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_classifications_queued_total",
				Help: "Agent ids handed to the classification queue",
			},
		),

		TrustRebuildDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_trust_rebuild_duration_seconds",
				Help:    "Full trust graph rebuild duration",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),

		TrustRebuildTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_trust_rebuild_total",
				Help: "Trust graph rebuilds by outcome (completed, failed, rejected)",
			},
			[]string{"outcome"},
		),

		MCPCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_mcp_calls_total",
				Help: "JSON-RPC method invocations by method and outcome",
			},
			[]string{"method", "outcome"},
		),

		OAuthGrants: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_oauth_grants_total",
				Help: "Token issuances by grant type and outcome",
			},
			[]string{"grant_type", "outcome"},
		),

		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_state",
				Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
			},
			[]string{"dependency"},
		),
	}
}

// RecordRequest records one served HTTP request
func (m *Metrics) RecordRequest(route, method, status string, seconds float64) {
	m.RequestTotal.WithLabelValues(route, method, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordSearch records one engine execution
func (m *Metrics) RecordSearch(mode string, seconds float64, items int) {
	m.SearchTotal.WithLabelValues(mode).Inc()
	m.SearchDuration.WithLabelValues(mode).Observe(seconds)
	if mode == "fallback" {
		m.FallbackTotal.Inc()
	}
	if items == 0 {
		m.EmptyPageTotal.Inc()
	}
}

// RecordCache records a lookup outcome for one key namespace
func (m *Metrics) RecordCache(namespace string, hit bool) {
	if hit {
		m.CacheHits.WithLabelValues(namespace).Inc()
		return
	}
	m.CacheMisses.WithLabelValues(namespace).Inc()
}

// SetBreakerState exports a dependency's breaker state
func (m *Metrics) SetBreakerState(dependency string, state int) {
	m.BreakerState.WithLabelValues(dependency).Set(float64(state))
}
