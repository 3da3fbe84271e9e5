// Package metrics exposes the gateway's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/calleq/calleq/pkg/core/types"
)

// Metrics holds all Prometheus metrics for the call gateway.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	TurnsTotal      *prometheus.CounterVec
	TurnDuration    prometheus.Histogram
	StageDegraded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
}

// New creates a Metrics instance with all collectors registered.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "calleq"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of currently active call sessions",
	})

	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of call sessions started",
	})

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of processed turns",
		},
		[]string{"outcome"}, // "ok", "degraded", "cancelled", "rejected"
	)

	turnDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "End-to-end turn processing duration in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	stageDegraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_degraded_total",
			Help:      "Total number of pipeline stage fallbacks",
		},
		[]string{"stage"},
	)

	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Call session lifetime in seconds",
		Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
	})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		turnsTotal,
		turnDuration,
		stageDegraded,
		sessionDuration,
	)

	return &Metrics{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		StageDegraded:   stageDegraded,
		SessionDuration: sessionDuration,
	}
}

// ObserveTurn records one completed turn.
func (m *Metrics) ObserveTurn(result types.TurnResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if len(result.Degraded) > 0 {
		outcome = "degraded"
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(elapsed.Seconds())
	for _, stage := range result.Degraded {
		m.StageDegraded.WithLabelValues(string(stage)).Inc()
	}
}

// Handler serves the /metrics endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
