// Package metrics registers the Prometheus instruments PazPaz exposes,
// following the Metrics-struct-plus-Record*-methods pattern the
// teacher repo uses in its escrow package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument PazPaz records.
type Metrics struct {
	RAGCacheHits       *prometheus.CounterVec
	RAGCacheMisses     *prometheus.CounterVec
	RAGQueryDuration   *prometheus.HistogramVec
	RAGQueryFailures   *prometheus.CounterVec
	BreakerTrips       *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
	RateLimitDenied    *prometheus.CounterVec
	WebhookProcessed   *prometheus.CounterVec
	WebhookIdempotent  *prometheus.CounterVec
	PaymentTransitions *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	return &Metrics{
		RAGCacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_agent_cache_hits_total",
				Help: "Total RAG answer-cache hits",
			},
			[]string{"cache_layer"},
		),
		RAGCacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ai_agent_cache_misses_total",
				Help: "Total RAG answer-cache misses",
			},
			[]string{"cache_layer"},
		),
		RAGQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_query_duration_seconds",
				Help:    "Duration of retrieval-and-synthesis queries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"workspace_id", "outcome"},
		),
		RAGQueryFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_query_failures_total",
				Help: "Total RAG query failures by failure kind",
			},
			[]string{"kind"},
		),
		BreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "circuit_breaker_trips_total",
				Help: "Total times a named circuit breaker opened",
			},
			[]string{"breaker"},
		),
		BreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "0=closed 1=open 2=half_open",
			},
			[]string{"breaker"},
		),
		RateLimitDenied: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_limit_denied_total",
				Help: "Total requests denied by a sliding-window rate limiter",
			},
			[]string{"limiter"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhook_processed_total",
				Help: "Total payment webhooks processed by outcome",
			},
			[]string{"provider", "outcome"},
		),
		WebhookIdempotent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_webhook_idempotent_hits_total",
				Help: "Total payment webhooks short-circuited by the idempotency key",
			},
			[]string{"provider"},
		),
		PaymentTransitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_transaction_transitions_total",
				Help: "Total payment transaction status transitions",
			},
			[]string{"to_status"},
		),
	}
}

// RecordCacheHit records a RAG answer-cache hit for the given layer.
func (m *Metrics) RecordCacheHit(layer string) { m.RAGCacheHits.WithLabelValues(layer).Inc() }

// RecordCacheMiss records a RAG answer-cache miss for the given layer.
func (m *Metrics) RecordCacheMiss(layer string) { m.RAGCacheMisses.WithLabelValues(layer).Inc() }

// RecordBreakerState updates the gauge for a named breaker: 0 closed,
// 1 open, 2 half-open.
func (m *Metrics) RecordBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
