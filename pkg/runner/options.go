package runner

import (
	"log/slog"

	"github.com/aretw0/parley/pkg/session"
)

// Option defines a functional option for configuring the Runner.
type Option func(*Runner)

// WithOrchestrator sets the turn runner (typically *parley.Orchestrator).
func WithOrchestrator(o session.TurnRunner) Option {
	return func(r *Runner) {
		r.Orchestrator = o
	}
}

// WithSessions persists the conversation through the session manager.
// Without it the history lives in memory for the lifetime of Run.
func WithSessions(m *session.Manager) Option {
	return func(r *Runner) {
		r.Sessions = m
	}
}

// WithSessionID sets the session to resume or create.
// Empty generates a random one.
func WithSessionID(id string) Option {
	return func(r *Runner) {
		r.SessionID = id
	}
}

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.Logger = logger
	}
}

// WithInputHandler configures a custom IOHandler.
func WithInputHandler(handler IOHandler) Option {
	return func(r *Runner) {
		r.Handler = handler
	}
}

// WithInterceptor adds an input middleware. Interceptors run in the order added,
// after the exit command.
func WithInterceptor(interceptor InputInterceptor) Option {
	return func(r *Runner) {
		r.interceptors = append(r.interceptors, interceptor)
	}
}

// WithGreeting enables the greeting flow (ask the user's name, welcome, farewell).
func WithGreeting(g Greeting) Option {
	return func(r *Runner) {
		r.Greeting = &g
	}
}

// WithExitCommands overrides the commands that end the loop.
func WithExitCommands(commands ...string) Option {
	return func(r *Runner) {
		r.ExitCommands = commands
	}
}
