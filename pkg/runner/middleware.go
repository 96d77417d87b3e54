package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
)

// ErrExit is returned by an interceptor to end the chat loop.
var ErrExit = errors.New("exit requested")

// InputInterceptor is a middleware that inspects an utterance before it is routed.
// It returns true if the utterance should proceed to the orchestrator, or false
// if it was consumed (e.g. a slash command).
type InputInterceptor func(ctx context.Context, input string) (bool, error)

// MultiInterceptor chains multiple interceptors. The first to consume the input wins.
func MultiInterceptor(interceptors ...InputInterceptor) InputInterceptor {
	return func(ctx context.Context, input string) (bool, error) {
		for _, interceptor := range interceptors {
			if interceptor == nil {
				continue
			}
			proceed, err := interceptor(ctx, input)
			if err != nil {
				return false, err
			}
			if !proceed {
				return false, nil
			}
		}
		return true, nil
	}
}

func isCommand(input string, names ...string) bool {
	input = strings.ToLower(strings.TrimSpace(input))
	for _, name := range names {
		if input == name {
			return true
		}
	}
	return false
}

// ExitCommand ends the loop when the input is one of commands (case-insensitive).
// Defaults to "/exit".
func ExitCommand(commands ...string) InputInterceptor {
	if len(commands) == 0 {
		commands = []string{"/exit"}
	}
	return func(ctx context.Context, input string) (bool, error) {
		if isCommand(input, commands...) {
			return false, ErrExit
		}
		return true, nil
	}
}

// HandlersCommand answers "/handlers" with the routable handlers.
func HandlersCommand(handler IOHandler, descriptors func() []domain.HandlerDescriptor) InputInterceptor {
	return func(ctx context.Context, input string) (bool, error) {
		if !isCommand(input, "/handlers") {
			return true, nil
		}
		var b strings.Builder
		for _, d := range descriptors() {
			fmt.Fprintf(&b, "\n  - %s: %s", d.Name, d.Description)
		}
		return false, handler.SystemOutput(ctx, "Handlers:"+b.String())
	}
}

// HistoryCommand answers "/history" with the session transcript.
func HistoryCommand(handler IOHandler, history func(ctx context.Context) ([]domain.Message, error)) InputInterceptor {
	return func(ctx context.Context, input string) (bool, error) {
		if !isCommand(input, "/history") {
			return true, nil
		}
		msgs, err := history(ctx)
		if err != nil {
			return false, err
		}
		if len(msgs) == 0 {
			return false, handler.SystemOutput(ctx, "(empty history)")
		}
		var b strings.Builder
		for _, m := range msgs {
			who := string(m.Role)
			if m.Handler != "" {
				who = m.Handler
			}
			fmt.Fprintf(&b, "\n  %d. %s: %s", m.Position, who, m.Content)
		}
		return false, handler.SystemOutput(ctx, "History:"+b.String())
	}
}
