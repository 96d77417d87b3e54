package testutils

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/stretchr/testify/require"
)

// Names of the narrative handlers used across tests.
const (
	StoryTeller    = "StoryTeller"
	StoryGuider    = "StoryGuider"
	CharacterMaker = "CharacterMaker"
)

// ClassifyFunc decides the classification for a history.
type ClassifyFunc func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error)

// FakeClassifier is a scriptable ports.Classifier.
type FakeClassifier struct {
	Names []string
	Fn    ClassifyFunc
	Calls atomic.Int32
}

// Domain returns the configured names.
func (c *FakeClassifier) Domain() []string { return c.Names }

// Classify records the call and delegates to Fn.
func (c *FakeClassifier) Classify(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
	c.Calls.Add(1)
	return c.Fn(ctx, history)
}

// Always returns a ClassifyFunc that selects name for every history.
func Always(name string) ClassifyFunc {
	return func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
		return domain.ClassificationResult{Handler: name, Raw: `{"agent":"` + name + `"}`}, nil
	}
}

// FakeHandler is a scriptable ports.Handler that counts invocations.
type FakeHandler struct {
	Reply string
	Err   error
	Delay time.Duration
	Calls atomic.Int32
	// Seen is the history length observed on the last call.
	Seen atomic.Int32
}

// Respond waits Delay (honoring ctx), then returns Reply or Err.
func (h *FakeHandler) Respond(ctx context.Context, history []domain.Message) (string, error) {
	h.Calls.Add(1)
	h.Seen.Store(int32(len(history)))
	if h.Delay > 0 {
		select {
		case <-time.After(h.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if h.Err != nil {
		return "", h.Err
	}
	return h.Reply, nil
}

// Narrative bundles the three narrative handlers and their classifier.
type Narrative struct {
	Registry       *registry.Registry
	Classifier     *FakeClassifier
	StoryTeller    *FakeHandler
	StoryGuider    *FakeHandler
	CharacterMaker *FakeHandler
}

// Handler returns the fake registered under name.
func (n *Narrative) Handler(name string) *FakeHandler {
	switch name {
	case StoryTeller:
		return n.StoryTeller
	case StoryGuider:
		return n.StoryGuider
	case CharacterMaker:
		return n.CharacterMaker
	}
	return nil
}

// NewNarrative builds a registry with StoryTeller, StoryGuider and CharacterMaker.
// It fails the test immediately on error.
func NewNarrative(t *testing.T, classify ClassifyFunc) *Narrative {
	t.Helper()

	n := &Narrative{
		Classifier: &FakeClassifier{
			Names: []string{StoryTeller, StoryGuider, CharacterMaker},
			Fn:    classify,
		},
		StoryTeller:    &FakeHandler{Reply: "Érase una vez, en Arkham..."},
		StoryGuider:    &FakeHandler{Reply: "Podrías investigar la biblioteca."},
		CharacterMaker: &FakeHandler{Reply: "Tu investigador es un bibliotecario."},
	}

	reg, err := registry.New(n.Classifier, []registry.Entry{
		{HandlerDescriptor: domain.HandlerDescriptor{Name: StoryTeller, Description: "Agent to create Cthulhu Dark Stories"}, Handler: n.StoryTeller},
		{HandlerDescriptor: domain.HandlerDescriptor{Name: StoryGuider, Description: "Agent that helps the game master and the players to continue the story"}, Handler: n.StoryGuider},
		{HandlerDescriptor: domain.HandlerDescriptor{Name: CharacterMaker, Description: "Agent to help players create characters for Cthulhu Dark games"}, Handler: n.CharacterMaker},
	})
	require.NoError(t, err, "Failed to build narrative registry")
	n.Registry = reg

	return n
}
