package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/parley/pkg/domain"
)

// LogHooks returns lifecycle hooks that emit one structured record per event.
// Phase entries are logged at debug level, finished turns at info (or warn on error).
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnPhaseEnter: func(ctx context.Context, e *domain.PhaseEvent) {
			logger.DebugContext(ctx, "phase_enter",
				"session_id", e.SessionID,
				"phase", e.Phase,
				"handler", e.Handler,
			)
		},
		OnStep: func(ctx context.Context, e *domain.StepEvent) {
			logger.DebugContext(ctx, "step",
				"session_id", e.SessionID,
				"phase", e.Phase,
				"handler", e.Handler,
				"duration_ms", e.Duration.Milliseconds(),
				"is_error", e.IsError,
			)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			attrs := []any{
				"session_id", e.SessionID,
				"handler", e.Handler,
				"duration_ms", e.Duration.Milliseconds(),
				"outcome", Outcome(e.Err),
			}
			if e.Err != nil {
				logger.WarnContext(ctx, "turn_end", append(attrs, "err", e.Err)...)
				return
			}
			logger.InfoContext(ctx, "turn_end", attrs...)
		},
	}
}
