package routing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
)

// Graph is the per-turn routing state machine:
//
//	Start -> Classifying -> Dispatching(handler) -> Terminal(output|error)
//
// A Graph carries no per-session field; all persistent state lives in the
// DialogueState passed to Run. Build one per incoming message.
type Graph struct {
	registry    *registry.Registry
	logger      *slog.Logger
	hooks       domain.LifecycleHooks
	stepTimeout time.Duration
}

// Option configures the Graph.
type Option func(*Graph)

// WithLogger sets a custom structured logger for the graph.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(g *Graph) {
		g.hooks = hooks
	}
}

// WithStepTimeout bounds each remote call (classification and dispatch).
// Zero means the caller's context is the only bound.
func WithStepTimeout(d time.Duration) Option {
	return func(g *Graph) {
		g.stepTimeout = d
	}
}

// New creates a graph over the given registry.
func New(reg *registry.Registry, opts ...Option) *Graph {
	g := &Graph{
		registry: reg,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run executes one turn over state, mutating it in place by appending the
// classifier exchange and the handler response. It always returns a terminal result.
func (g *Graph) Run(ctx context.Context, state *domain.DialogueState) domain.RunResult {
	t := &turn{
		graph:   g,
		state:   state,
		visited: make(map[domain.Phase]bool, 4),
		logger:  g.logger,
	}
	if state != nil {
		t.logger = g.logger.With("session_id", state.SessionID)
	}

	start := time.Now()
	t.enter(ctx, domain.PhaseStart)
	for t.phase != domain.PhaseTerminal {
		next := t.step(ctx)
		if next != domain.PhaseTerminal && t.visited[next] {
			// Each transition fires at most once per turn.
			t.err = fmt.Errorf("routing: phase %s re-entered", next)
			next = domain.PhaseTerminal
		}
		t.enter(ctx, next)
	}

	if g.hooks.OnTurnEnd != nil {
		g.hooks.OnTurnEnd(ctx, &domain.TurnEvent{
			EventBase: t.event(),
			Handler:   t.handler,
			Duration:  time.Since(start),
			Err:       t.err,
		})
	}

	if t.err != nil {
		t.logger.Debug("turn failed", "handler", t.handler, "err", t.err)
		return domain.RunResult{Handler: t.handler, Err: t.err, State: state, Trace: t.trace}
	}
	t.logger.Debug("turn completed", "handler", t.handler, "duration_ms", time.Since(start).Milliseconds())
	return domain.RunResult{Output: t.output, Handler: t.handler, State: state, Trace: t.trace}
}

// turn holds the mutable bookkeeping of a single Run.
type turn struct {
	graph   *Graph
	state   *domain.DialogueState
	logger  *slog.Logger
	phase   domain.Phase
	visited map[domain.Phase]bool
	trace   []domain.Phase
	handler string
	output  string
	err     error
}

func (t *turn) event() domain.EventBase {
	base := domain.EventBase{Timestamp: time.Now()}
	if t.state != nil {
		base.SessionID = t.state.SessionID
	}
	return base
}

func (t *turn) enter(ctx context.Context, phase domain.Phase) {
	t.phase = phase
	t.visited[phase] = true
	t.trace = append(t.trace, phase)
	if t.graph.hooks.OnPhaseEnter != nil {
		t.graph.hooks.OnPhaseEnter(ctx, &domain.PhaseEvent{
			EventBase: t.event(),
			Phase:     phase,
			Handler:   t.handler,
		})
	}
}

func (t *turn) step(ctx context.Context) domain.Phase {
	switch t.phase {
	case domain.PhaseStart:
		return t.start()
	case domain.PhaseClassifying:
		return t.classify(ctx)
	case domain.PhaseDispatching:
		return t.dispatch(ctx)
	default:
		t.err = fmt.Errorf("routing: no transition from phase %q", t.phase)
		return domain.PhaseTerminal
	}
}

func (t *turn) start() domain.Phase {
	if t.state.Len() == 0 {
		t.err = fmt.Errorf("%w: dialogue has no messages", domain.ErrEmptyTurn)
		return domain.PhaseTerminal
	}
	return domain.PhaseClassifying
}

func (t *turn) classify(ctx context.Context) domain.Phase {
	reg := t.graph.registry
	history := t.state.History()

	began := time.Now()
	res, err := call(ctx, t.graph.stepTimeout, func(ctx context.Context) (domain.ClassificationResult, error) {
		return reg.Classifier().Classify(ctx, history)
	})
	t.observeStep(ctx, domain.PhaseClassifying, reg.ClassifierName(), began, err)

	// The classification becomes visible history, including malformed output kept for audit.
	if record := classificationRecord(res); record != "" {
		t.state.Append(domain.RoleHandler, reg.ClassifierName(), record)
	}

	if err != nil {
		err = normalize(err)
		switch {
		case errors.Is(err, domain.ErrClassificationSchema):
			t.err = fmt.Errorf("classify: %w", err)
			t.logger.Warn("classifier output rejected", "raw", res.Raw, "err", err)
		case errors.Is(err, domain.ErrRemoteService):
			t.err = fmt.Errorf("classify: %w", err)
			t.logger.Warn("classifier failed", "err", err)
		default:
			t.err = fmt.Errorf("classify: %w: %s: %w", domain.ErrHandlerRuntime, reg.ClassifierName(), err)
			t.logger.Warn("classifier failed", "err", err)
		}
		return domain.PhaseTerminal
	}

	// Only names in the classifier domain are dispatchable, whatever the classifier returned.
	if allowed := reg.Classifier().Domain(); !slices.Contains(allowed, res.Handler) {
		t.err = fmt.Errorf("classify: %w: %q not in %v", domain.ErrClassificationSchema, res.Handler, allowed)
		t.logger.Warn("classifier output rejected", "raw", res.Raw, "err", t.err)
		return domain.PhaseTerminal
	}

	if _, err := reg.Lookup(res.Handler); err != nil {
		t.err = fmt.Errorf("%w: %q", domain.ErrUnknownHandler, res.Handler)
		t.logger.Error("classifier selected an unregistered handler; classifier domain and registry are out of sync",
			"handler", res.Handler,
			"domain", reg.Classifier().Domain(),
		)
		return domain.PhaseTerminal
	}

	t.handler = res.Handler
	return domain.PhaseDispatching
}

func (t *turn) dispatch(ctx context.Context) domain.Phase {
	handler, err := t.graph.registry.Lookup(t.handler)
	if err != nil {
		t.err = fmt.Errorf("%w: %w", domain.ErrUnknownHandler, err)
		return domain.PhaseTerminal
	}

	history := t.state.History()
	began := time.Now()
	text, err := call(ctx, t.graph.stepTimeout, func(ctx context.Context) (string, error) {
		return handler.Respond(ctx, history)
	})
	t.observeStep(ctx, domain.PhaseDispatching, t.handler, began, err)

	if err != nil {
		// Nothing was appended: a failed dispatch never leaves a partial response.
		t.err = fmt.Errorf("%w: %s: %w", domain.ErrHandlerRuntime, t.handler, normalize(err))
		t.logger.Warn("handler failed", "handler", t.handler, "err", err)
		return domain.PhaseTerminal
	}

	t.state.Append(domain.RoleHandler, t.handler, text)
	t.output = text
	return domain.PhaseTerminal
}

func (t *turn) observeStep(ctx context.Context, phase domain.Phase, name string, began time.Time, err error) {
	if t.graph.hooks.OnStep == nil {
		return
	}
	t.graph.hooks.OnStep(ctx, &domain.StepEvent{
		EventBase: t.event(),
		Phase:     phase,
		Handler:   name,
		Duration:  time.Since(began),
		IsError:   err != nil,
	})
}

func classificationRecord(res domain.ClassificationResult) string {
	if res.Raw != "" {
		return res.Raw
	}
	return res.Handler
}

// normalize maps deadline expiry to a remote timeout while preserving the cause.
func normalize(err error) error {
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewRemoteError(domain.RemoteTimeout, err)
	}
	return err
}
