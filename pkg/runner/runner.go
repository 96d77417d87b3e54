package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/session"
	"github.com/google/uuid"
)

// Greeting is the conversational framing of an interactive chat.
type Greeting struct {
	// AskName is shown first; the next line is taken as the user's name.
	AskName string
	// Welcome is formatted with the user's name.
	Welcome string
	// Hint is shown after the welcome.
	Hint string
	// Farewell is shown when the loop ends.
	Farewell string
	// Interrupted is shown when Ctrl+C cancels an in-flight turn.
	Interrupted string
}

// DefaultGreeting is the Cthulhu Dark assistant framing.
var DefaultGreeting = Greeting{
	AskName:     "¿Cómo quieres que te llame?",
	Welcome:     "¡Hola %s! Soy tu asistente de Cthulhu Dark. ¿En qué te puedo ayudar?",
	Hint:        `En cualquier momento puedes escribir "/exit" para terminar.`,
	Farewell:    "¡Hasta pronto! 👋",
	Interrupted: "(interrumpido)",
}

// Runner drives repeated single-turn executions for one session: read an utterance,
// route it, present the result, until the user exits or the input ends.
type Runner struct {
	// Handler is the strategy for IO. Defaults to a TextHandler on Stdin/Stdout.
	Handler IOHandler

	// Orchestrator runs each turn.
	Orchestrator session.TurnRunner

	// Sessions persists the history. If nil, the history is kept in memory.
	Sessions  *session.Manager
	SessionID string

	// Greeting enables the greeting flow when set.
	Greeting *Greeting

	// ExitCommands end the loop. Defaults to "/exit".
	ExitCommands []string

	// Logger is used for internal debug logging.
	// If nil, a no-op logger is used.
	Logger *slog.Logger

	interceptors []InputInterceptor
	state        *domain.DialogueState
}

// NewRunner creates a new Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the chat loop until the user exits, the input ends or ctx is done.
// Ctrl+C during a turn cancels that turn only; during input it ends the loop.
// Routing failures are presented to the user; only IO and session storage failures
// are returned.
func (r *Runner) Run(ctx context.Context) error {
	// 1. Setup Phase
	if r.Orchestrator == nil {
		return errors.New("runner: orchestrator is required")
	}
	handler := r.resolveHandler()
	logger := r.resolveLogger()
	if r.SessionID == "" {
		r.SessionID = uuid.NewString()
	}
	if r.Sessions == nil {
		r.state = domain.NewDialogueState(r.SessionID)
	}
	intercept := r.resolveInterceptor(handler)

	signals := NewSignalManager(ctx)
	defer signals.Stop()

	logger.Debug("chat started", "session_id", r.SessionID, "persistent", r.Sessions != nil)

	if r.Greeting != nil {
		if done, err := r.greet(signals, handler); done || err != nil {
			return err
		}
	}

	// 2. Execution Loop
	for {
		input, err := handler.Input(signals.Context())
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) {
				return r.farewell(ctx, handler)
			}
			signals.CheckRace()
			if signals.Context().Err() != nil {
				return r.farewell(ctx, handler)
			}
			return fmt.Errorf("input error: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		clean, err := SanitizeInput(input)
		if err != nil {
			_ = handler.SystemOutput(ctx, fmt.Sprintf("Error: %v. Please try again.", err))
			continue
		}

		proceed, err := intercept(ctx, clean)
		if errors.Is(err, ErrExit) {
			return r.farewell(ctx, handler)
		}
		if err != nil {
			_ = handler.SystemOutput(ctx, fmt.Sprintf("Error: %v", err))
			continue
		}
		if !proceed {
			continue
		}

		_ = handler.Signal(ctx, "thinking", map[string]any{"session_id": r.SessionID})
		res, err := r.runTurn(signals.Context(), clean)
		if err != nil {
			return err
		}

		if signals.Interrupted() {
			logger.Debug("turn interrupted", "session_id", r.SessionID)
			if r.Greeting != nil && r.Greeting.Interrupted != "" {
				_ = handler.SystemOutput(ctx, r.Greeting.Interrupted)
			}
			signals.Reset()
			continue
		}
		if ctx.Err() != nil {
			return r.farewell(ctx, handler)
		}

		if err := handler.Reply(ctx, res); err != nil {
			return fmt.Errorf("output error: %w", err)
		}
	}
}

func (r *Runner) runTurn(ctx context.Context, text string) (domain.RunResult, error) {
	if r.Sessions != nil {
		res, err := r.Sessions.RunTurn(ctx, r.Orchestrator, r.SessionID, text)
		if err != nil {
			return res, fmt.Errorf("session error: %w", err)
		}
		return res, nil
	}
	return r.Orchestrator.RunTurn(ctx, r.state, text), nil
}

// History returns the current transcript.
func (r *Runner) History(ctx context.Context) ([]domain.Message, error) {
	if r.Sessions == nil {
		return r.state.History(), nil
	}
	state, err := r.Sessions.Load(ctx, r.SessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return state.History(), nil
}

// greet runs the greeting flow. done reports that the input ended before the chat began.
func (r *Runner) greet(signals *SignalManager, handler IOHandler) (done bool, err error) {
	ctx := signals.Context()
	if r.Greeting.AskName != "" {
		if err := handler.SystemOutput(ctx, r.Greeting.AskName); err != nil {
			return true, err
		}
		name, err := handler.Input(ctx)
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) {
				return true, r.farewell(ctx, handler)
			}
			return true, fmt.Errorf("input error: %w", err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = "Tú"
		}
		if p, ok := handler.(Prompter); ok {
			p.SetUserName(name)
		}
		if r.Greeting.Welcome != "" {
			_ = handler.SystemOutput(ctx, fmt.Sprintf(r.Greeting.Welcome, name))
		}
	}
	if r.Greeting.Hint != "" {
		_ = handler.SystemOutput(ctx, r.Greeting.Hint)
	}
	return false, nil
}

func (r *Runner) farewell(ctx context.Context, handler IOHandler) error {
	if r.Greeting != nil && r.Greeting.Farewell != "" {
		return handler.SystemOutput(context.WithoutCancel(ctx), r.Greeting.Farewell)
	}
	return nil
}

func (r *Runner) resolveHandler() IOHandler {
	if r.Handler != nil {
		return r.Handler
	}
	return NewTextHandler(os.Stdin, os.Stdout)
}

func (r *Runner) resolveLogger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (r *Runner) resolveInterceptor(handler IOHandler) InputInterceptor {
	chain := append([]InputInterceptor{ExitCommand(r.ExitCommands...)}, r.interceptors...)
	chain = append(chain, HistoryCommand(handler, r.History))
	return MultiInterceptor(chain...)
}
