package parley

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/parley/internal/routing"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
)

// Orchestrator is the high-level entry point for the parley library.
// It wraps the routing graph and provides a simplified API for consumers.
// An Orchestrator holds no per-session data and is safe for concurrent use.
type Orchestrator struct {
	registry    *registry.Registry
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
	stepTimeout time.Duration
}

// Option defines a functional option for configuring the Orchestrator.
type Option func(*Orchestrator)

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *Orchestrator) {
		o.hooks = hooks
	}
}

// WithLogger sets a custom structured logger for the orchestrator.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithStepTimeout bounds each classifier and handler call.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.stepTimeout = d
	}
}

// New initializes an Orchestrator over a validated registry.
func New(reg *registry.Registry, opts ...Option) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry is required")
	}

	o := &Orchestrator{registry: reg}
	for _, opt := range opts {
		opt(o)
	}

	// Ensure logger is initialized (so we don't pass nil to the graph, which would overwrite its default)
	if o.logger == nil {
		o.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	if unreachable := reg.Unreachable(); len(unreachable) > 0 {
		o.logger.Warn("handlers registered but outside the classifier domain", "handlers", unreachable)
	}

	return o, nil
}

// RunTurn appends userText to state as a user message and runs one turn.
// Empty or whitespace-only input is rejected without touching state.
func (o *Orchestrator) RunTurn(ctx context.Context, state *domain.DialogueState, userText string) domain.RunResult {
	if strings.TrimSpace(userText) == "" {
		return domain.Failed(state, fmt.Errorf("%w: input is blank", domain.ErrEmptyTurn))
	}
	if state == nil {
		return domain.Failed(nil, fmt.Errorf("%w: no dialogue state", domain.ErrEmptyTurn))
	}
	state.Append(domain.RoleUser, "", userText)
	return o.Run(ctx, state)
}

// Run executes the routing graph over state as-is. Callers that manage their
// own history append the user message first.
func (o *Orchestrator) Run(ctx context.Context, state *domain.DialogueState) domain.RunResult {
	return o.graph().Run(ctx, state)
}

// Handlers lists the registered handlers in registration order.
func (o *Orchestrator) Handlers() []domain.HandlerDescriptor {
	return o.registry.Descriptors()
}

// Registry returns the underlying handler registry.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// graph builds a fresh routing graph for a single turn.
func (o *Orchestrator) graph() *routing.Graph {
	return routing.New(o.registry,
		routing.WithLogger(o.logger),
		routing.WithLifecycleHooks(o.hooks),
		routing.WithStepTimeout(o.stepTimeout),
	)
}
