package domain

import (
	"context"
	"time"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// PhaseEvent is emitted when the routing graph enters a phase.
type PhaseEvent struct {
	EventBase
	Phase   Phase  `json:"phase"`
	Handler string `json:"handler,omitempty"`
}

// TurnEvent is emitted once per turn, when the graph reaches Terminal.
type TurnEvent struct {
	EventBase
	Handler  string        `json:"handler,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// StepEvent is emitted after each remote call (classification or dispatch).
type StepEvent struct {
	EventBase
	Phase    Phase         `json:"phase"`
	Handler  string        `json:"handler"`
	Duration time.Duration `json:"duration"`
	IsError  bool          `json:"is_error,omitempty"`
}

// LifecycleHooks defines callbacks for orchestrator observability.
type LifecycleHooks struct {
	OnPhaseEnter func(context.Context, *PhaseEvent)
	OnStep       func(context.Context, *StepEvent)
	OnTurnEnd    func(context.Context, *TurnEvent)
}

// ChainHooks combines several hook sets; each callback fans out in order.
func ChainHooks(hooks ...LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *PhaseEvent) {
			for _, h := range hooks {
				if h.OnPhaseEnter != nil {
					h.OnPhaseEnter(ctx, e)
				}
			}
		},
		OnStep: func(ctx context.Context, e *StepEvent) {
			for _, h := range hooks {
				if h.OnStep != nil {
					h.OnStep(ctx, e)
				}
			}
		},
		OnTurnEnd: func(ctx context.Context, e *TurnEvent) {
			for _, h := range hooks {
				if h.OnTurnEnd != nil {
					h.OnTurnEnd(ctx, e)
				}
			}
		},
	}
}
