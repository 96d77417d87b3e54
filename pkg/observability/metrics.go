package observability

import (
	"context"
	"errors"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for finished turns.
const (
	OutcomeOK             = "ok"
	OutcomeEmpty          = "empty"
	OutcomeSchema         = "schema_error"
	OutcomeUnknownHandler = "unknown_handler"
	OutcomeHandlerError   = "handler_error"
	OutcomeRemoteError    = "remote_error"
	OutcomeError          = "error"
)

// Outcome maps a turn error to a low-cardinality label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrEmptyTurn):
		return OutcomeEmpty
	case errors.Is(err, domain.ErrClassificationSchema):
		return OutcomeSchema
	case errors.Is(err, domain.ErrUnknownHandler):
		return OutcomeUnknownHandler
	case errors.Is(err, domain.ErrHandlerRuntime):
		return OutcomeHandlerError
	case errors.Is(err, domain.ErrRemoteService):
		return OutcomeRemoteError
	default:
		return OutcomeError
	}
}

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	Turns        *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec
	StepDuration *prometheus.HistogramVec
	PhaseVisits  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_turns_total",
				Help: "Total number of finished turns",
			},
			[]string{"handler", "outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_turn_duration_seconds",
				Help:    "Duration of a full turn, classification included",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"handler"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parley_step_duration_seconds",
				Help:    "Duration of classifier and handler calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"phase", "handler", "error"},
		),
		PhaseVisits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parley_phase_visits_total",
				Help: "Total number of routing phase entries",
			},
			[]string{"phase"},
		),
	}

	for _, c := range []prometheus.Collector{m.Turns, m.TurnDuration, m.StepDuration, m.PhaseVisits} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *domain.PhaseEvent) {
			m.PhaseVisits.WithLabelValues(string(e.Phase)).Inc()
		},
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			isErr := "false"
			if e.IsError {
				isErr = "true"
			}
			m.StepDuration.WithLabelValues(string(e.Phase), e.Handler, isErr).Observe(e.Duration.Seconds())
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			m.Turns.WithLabelValues(e.Handler, Outcome(e.Err)).Inc()
			m.TurnDuration.WithLabelValues(e.Handler).Observe(e.Duration.Seconds())
		},
	}
}
