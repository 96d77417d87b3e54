package tests

import (
	"context"
	"slices"
	"testing"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// HandlerContractTest is a reusable test suite that verifies if an adapter complies with ports.Handler.
// history must contain at least one user message.
func HandlerContractTest(t *testing.T, handler ports.Handler, history []domain.Message) {
	t.Helper()

	t.Run("Respond_Success", func(t *testing.T) {
		before := slices.Clone(history)
		text, err := handler.Respond(context.Background(), history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text == "" {
			t.Error("expected non-empty response text")
		}
		if !slices.Equal(before, history) {
			t.Error("handler must not modify the history it receives")
		}
	})

	t.Run("Respond_Canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := handler.Respond(ctx, history); err == nil {
			t.Error("expected error for canceled context, got nil")
		}
	})
}

// ClassifierContractTest verifies that a ports.Classifier only emits values from its domain.
func ClassifierContractTest(t *testing.T, classifier ports.Classifier, history []domain.Message) {
	t.Helper()

	t.Run("Domain_NotEmpty", func(t *testing.T) {
		if len(classifier.Domain()) == 0 {
			t.Fatal("classifier domain must not be empty")
		}
	})

	t.Run("Classify_InDomain", func(t *testing.T) {
		res, err := classifier.Classify(context.Background(), history)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Contains(classifier.Domain(), res.Handler) {
			t.Errorf("classification %q is outside domain %v", res.Handler, classifier.Domain())
		}
	})
}
