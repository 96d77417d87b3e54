package runner

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// IOHandler defines the strategy for interacting with the user.
// This allows switching between Text (CLI/TUI) and JSON (Structured) modes.
type IOHandler interface {
	// Input reads the next utterance. It returns io.EOF when the input is exhausted.
	Input(ctx context.Context) (string, error)

	// Reply presents the terminal result of a turn, successful or not.
	Reply(ctx context.Context, res domain.RunResult) error

	// SystemOutput presents a meta-message (greeting, command output, notices).
	// This is distinct from handler responses.
	SystemOutput(ctx context.Context, msg string) error

	// Signal notifies the handler of an event (e.g. "thinking") for visual feedback.
	Signal(ctx context.Context, name string, args map[string]any) error
}

// Prompter is implemented by handlers that label the input prompt with the user's name.
type Prompter interface {
	SetUserName(name string)
}
