// Package observability provides Prometheus metrics and OpenTelemetry
// tracing for chat turns.
//
// Metrics are exposed on /metrics by the server. Tracing is off unless
// enabled, in which case spans are written to stdout.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "akashchat"
	turnSubsystem    = "turn"
)

// Turn outcome label values.
const (
	OutcomeCommitted = "committed"
	OutcomeAborted   = "aborted"
	OutcomeRejected  = "rejected"
)

// TurnMetrics holds the Prometheus collectors for chat turns.
// A nil *TurnMetrics is valid and records nothing.
type TurnMetrics struct {
	// TurnsTotal counts finished turns. Labels: outcome
	TurnsTotal *prometheus.CounterVec

	// TurnErrorsTotal counts turn failures. Labels: kind
	TurnErrorsTotal *prometheus.CounterVec

	// FragmentsTotal counts streamed fragments. Labels: model
	FragmentsTotal *prometheus.CounterVec

	// TimeToFirstFragmentSeconds measures completion latency to the first fragment. Labels: model
	TimeToFirstFragmentSeconds *prometheus.HistogramVec

	// TurnDurationSeconds measures whole-turn latency. Labels: outcome
	TurnDurationSeconds *prometheus.HistogramVec

	// SearchDurationSeconds measures search adapter latency. Labels: status
	SearchDurationSeconds *prometheus.HistogramVec

	// ActiveTurns tracks turns currently running.
	ActiveTurns prometheus.Gauge
}

// NewTurnMetrics creates the turn collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	factory := promauto.With(reg)

	return &TurnMetrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "turns_total",
				Help:      "Total number of chat turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "turn_errors_total",
				Help:      "Total number of turn failures by error kind",
			},
			[]string{"kind"},
		),
		FragmentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "fragments_total",
				Help:      "Total number of streamed completion fragments by model",
			},
			[]string{"model"},
		),
		TimeToFirstFragmentSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "time_to_first_fragment_seconds",
				Help:      "Time from completion request to first fragment in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"model"},
		),
		TurnDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "Total turn duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		SearchDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "search_duration_seconds",
				Help:      "Web search latency in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 15},
			},
			[]string{"status"},
		),
		ActiveTurns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: turnSubsystem,
				Name:      "active_turns",
				Help:      "Number of turns currently in progress",
			},
		),
	}
}

// TurnStarted increments the active turn gauge.
func (m *TurnMetrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

// TurnFinished records the outcome and duration of a turn and decrements the gauge.
func (m *TurnMetrics) TurnFinished(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDurationSeconds.WithLabelValues(outcome).Observe(duration.Seconds())
}

// TurnRejected counts a submission refused before a turn started.
func (m *TurnMetrics) TurnRejected(kind string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(OutcomeRejected).Inc()
	m.TurnErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordError counts a turn failure by kind.
func (m *TurnMetrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.TurnErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordFragment counts one streamed fragment.
func (m *TurnMetrics) RecordFragment(model string) {
	if m == nil {
		return
	}
	m.FragmentsTotal.WithLabelValues(model).Inc()
}

// ObserveFirstFragment records time to first fragment.
func (m *TurnMetrics) ObserveFirstFragment(model string, d time.Duration) {
	if m == nil {
		return
	}
	m.TimeToFirstFragmentSeconds.WithLabelValues(model).Observe(d.Seconds())
}

// ObserveSearch records a search call. status is "ok" or "error".
func (m *TurnMetrics) ObserveSearch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}
