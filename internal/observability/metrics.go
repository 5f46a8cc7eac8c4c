// Package observability holds the Prometheus instruments for the
// service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing, so tests and the
// one-shot CLI path can skip registration.
type Metrics struct {
	TurnDuration   prometheus.Histogram
	TurnOutcomes   *prometheus.CounterVec
	ModelRounds    prometheus.Histogram
	ToolCalls      *prometheus.CounterVec
	ProviderCalls  *prometheus.CounterVec
	MemoryFailures *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		TurnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn handling latency in seconds.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		}),
		TurnOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed turns by outcome.",
		}, []string{"outcome"}),
		ModelRounds: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_rounds_per_turn",
			Help:      "Model round-trips taken per turn.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
		ToolCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "External provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		MemoryFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_failures_total",
			Help:      "Memory backend failures by tier.",
		}, []string{"tier"}),
	}
}

func (m *Metrics) ObserveTurn(d time.Duration, outcome string, rounds int) {
	if m == nil {
		return
	}
	m.TurnDuration.Observe(d.Seconds())
	m.TurnOutcomes.WithLabelValues(outcome).Inc()
	m.ModelRounds.Observe(float64(rounds))
}

func (m *Metrics) RecordToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) RecordProviderCall(provider, outcome string) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
}

func (m *Metrics) RecordMemoryFailure(tier string) {
	if m == nil {
		return
	}
	m.MemoryFailures.WithLabelValues(tier).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
