package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// Handler is a response-generating capability.
// It receives a copy of the history and returns the response text; the routing core
// is the only writer of the DialogueState.
type Handler interface {
	Respond(ctx context.Context, history []domain.Message) (string, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, history []domain.Message) (string, error)

// Respond calls f(ctx, history).
func (f HandlerFunc) Respond(ctx context.Context, history []domain.Message) (string, error) {
	return f(ctx, history)
}

// Classifier is the entry-point capability of every turn.
type Classifier interface {
	// Classify selects exactly one handler name from Domain().
	// Structurally invalid output must be reported with domain.ErrClassificationSchema;
	// the returned result still carries Raw so the exchange can be audited.
	Classify(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error)

	// Domain returns the enumerated set of handler names the classifier may emit.
	Domain() []string
}
