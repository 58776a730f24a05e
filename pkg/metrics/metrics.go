// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsTotal tracks inbound events by outcome.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_events_total",
			Help: "Inbound events by processing outcome",
		},
		[]string{"outcome"},
	)

	// DecisionsTotal tracks engagement decisions by kind and reason.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_decisions_total",
			Help: "Engagement decisions by kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// DuplicateEventsTotal tracks events dropped by the deduplicator.
	DuplicateEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_duplicate_events_total",
			Help: "Events dropped as duplicates",
		},
	)

	// DedupFailuresTotal tracks deduplicator backend failures (fail-open path).
	DedupFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_dedup_failures_total",
			Help: "Deduplicator backend failures handled fail-open",
		},
	)

	// ClassifierFallbacksTotal tracks semantic classifier timeouts and errors.
	ClassifierFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_classifier_fallbacks_total",
			Help: "Semantic classification calls that fell back to heuristics",
		},
		[]string{"cause"},
	)

	// ClassifierDuration tracks semantic classification call duration.
	ClassifierDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "engage_classifier_duration_seconds",
			Help:    "Semantic classification call duration",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
	)

	// LanesActive tracks the number of live per-chat lanes.
	LanesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "engage_lanes_active",
			Help: "Number of active per-chat processing lanes",
		},
	)

	// SummaryJobsTotal tracks emitted summary jobs.
	SummaryJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_summary_jobs_total",
			Help: "Summary jobs emitted by period and trigger",
		},
		[]string{"period", "trigger"},
	)

	// DispatchesTotal tracks context windows handed to the responder.
	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engage_dispatches_total",
			Help: "Responder dispatches by trigger kind",
		},
		[]string{"trigger"},
	)

	// StoreFailuresTotal tracks state store failures that NACK an event.
	StoreFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "engage_store_failures_total",
			Help: "State store failures that prevented a decision",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordDecision records an engagement decision.
func RecordDecision(kind, reason string) {
	DecisionsTotal.WithLabelValues(kind, reason).Inc()
}

// RecordClassifierFallback records a semantic classification fallback.
func RecordClassifierFallback(cause string) {
	ClassifierFallbacksTotal.WithLabelValues(cause).Inc()
}
