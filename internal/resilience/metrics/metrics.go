package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FailuresTotal tracks reported failures per category and severity
	FailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_failures_total",
			Help: "Total number of failure reports handled",
		},
		[]string{"category", "severity"},
	)

	// DecisionsTotal tracks classifier decisions per category
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_decisions_total",
			Help: "Total number of classifier decisions by reason",
		},
		[]string{"category", "reason"},
	)

	// RetryAttemptsTotal tracks individual attempts made by the retry executor
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_retry_attempts_total",
			Help: "Total number of operation attempts made by the retry executor",
		},
		[]string{"category", "result"},
	)

	// RetryExhaustedTotal tracks operations that failed every permitted attempt
	RetryExhaustedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_retry_exhausted_total",
			Help: "Total number of operations that exhausted their retry policy",
		},
		[]string{"category"},
	)

	// RetryBackoffSeconds tracks computed backoff delays
	RetryBackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultkeeper_retry_backoff_seconds",
			Help:    "Backoff delay applied between retry attempts",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"category"},
	)

	// RecoveryAttemptsTotal tracks recovery strategy invocations
	RecoveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_recovery_attempts_total",
			Help: "Total number of recovery strategy invocations",
		},
		[]string{"component", "result"},
	)

	// ComponentHealthy is 1 when the component is healthy, 0 otherwise
	ComponentHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "faultkeeper_component_healthy",
			Help: "Whether a component is currently healthy",
		},
		[]string{"component"},
	)

	// SystemHealthLevel is 0 healthy, 1 degraded, 2 critical, 3 emergency
	SystemHealthLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultkeeper_system_health_level",
			Help: "Current system health level (0=healthy, 3=emergency)",
		},
	)

	// EventsDroppedTotal tracks events discarded by saturated sinks
	EventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_events_dropped_total",
			Help: "Total number of events dropped because a sink was full",
		},
		[]string{"sink"},
	)

	// EventsPublishedTotal tracks events delivered to external sinks
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultkeeper_events_published_total",
			Help: "Total number of events published to external sinks",
		},
		[]string{"sink"},
	)

	// AdminRejectedTotal tracks admin requests rejected by the rate limiter
	AdminRejectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "faultkeeper_admin_rejected_total",
			Help: "Total number of admin requests rejected by rate limiting",
		},
	)
)
