// Package process runs local commands as dialogue handlers.
//
// The command receives the dialogue on stdin as JSON:
//
//	{"handler": "Dice", "history": [{"role": "user", "content": "..."}]}
//
// and replies on stdout, either as plain text or as {"output": "..."}.
// The last user message is also exported as PARLEY_USER_TEXT.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var _ ports.Handler = (*Handler)(nil)

// ErrEmptyCommand is returned by NewHandler when no command is given.
var ErrEmptyCommand = errors.New("process: empty command")

// Handler executes a registered command once per turn.
// Only the configured command and args are ever executed; dialogue content
// travels through stdin and the environment, never as flags.
type Handler struct {
	name    string
	command string
	args    []string
	dir     string
	env     []string
}

// Option configures the handler.
type Option func(*Handler)

// WithDir sets the working directory of the process.
func WithDir(dir string) Option {
	return func(h *Handler) {
		h.dir = dir
	}
}

// WithEnv adds KEY=VALUE pairs to the process environment.
func WithEnv(env ...string) Option {
	return func(h *Handler) {
		h.env = append(h.env, env...)
	}
}

// NewHandler creates a handler named name that runs command with args.
func NewHandler(name, command string, args []string, opts ...Option) (*Handler, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}
	h := &Handler{
		name:    name,
		command: command,
		args:    append([]string(nil), args...),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type request struct {
	Handler string           `json:"handler"`
	History []domain.Message `json:"history"`
}

type reply struct {
	Output *string `json:"output"`
}

// Respond runs the command with the history on stdin and returns its reply.
func (h *Handler) Respond(ctx context.Context, history []domain.Message) (string, error) {
	payload, err := json.Marshal(request{Handler: h.name, History: history})
	if err != nil {
		return "", fmt.Errorf("failed to encode history: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.command, h.args...)
	cmd.Dir = h.dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(), h.env...)
	cmd.Env = append(cmd.Env,
		"PARLEY_HANDLER="+h.name,
		"PARLEY_USER_TEXT="+lastUserText(history),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%s: execution failed: %w: %s", h.name, err, strings.TrimSpace(stderr.String()))
	}

	return parseReply(stdout.String()), nil
}

func parseReply(out string) string {
	trimmed := strings.TrimSpace(out)
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var r reply
		if err := json.Unmarshal([]byte(trimmed), &r); err == nil && r.Output != nil {
			return *r.Output
		}
	}
	return trimmed
}

func lastUserText(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleUser {
			return history[i].Content
		}
	}
	return ""
}
