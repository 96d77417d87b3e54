package parley_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/registry"
)

// keywordClassifier routes on a keyword in the last user message.
type keywordClassifier struct{}

func (keywordClassifier) Domain() []string { return []string{"Greeter", "Helper"} }

func (keywordClassifier) Classify(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
	last := history[len(history)-1].Content
	if strings.Contains(strings.ToLower(last), "help") {
		return registry.ValidateClassification(keywordClassifier{}.Domain(), "Helper")
	}
	return registry.ValidateClassification(keywordClassifier{}.Domain(), "Greeter")
}

// ExampleNew demonstrates how to route turns with in-process handlers.
// This is useful for testing or embedded scenarios where no model backend is involved.
func ExampleNew() {
	reg, err := registry.New(keywordClassifier{}, []registry.Entry{
		{
			HandlerDescriptor: domain.HandlerDescriptor{Name: "Greeter", Description: "Says hello"},
			Handler: ports.HandlerFunc(func(ctx context.Context, history []domain.Message) (string, error) {
				return "Hello there!", nil
			}),
		},
		{
			HandlerDescriptor: domain.HandlerDescriptor{Name: "Helper", Description: "Offers help"},
			Handler: ports.HandlerFunc(func(ctx context.Context, history []domain.Message) (string, error) {
				return fmt.Sprintf("You have said %d thing(s) so far.", len(history)/3+1), nil
			}),
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	orch, err := parley.New(reg)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	state := domain.NewDialogueState("example")

	for _, input := range []string{"hi", "I need help"} {
		res := orch.RunTurn(ctx, state, input)
		if res.Err != nil {
			log.Fatal(res.Err)
		}
		fmt.Printf("%s: %s\n", res.Handler, res.Output)
	}
	fmt.Println("messages:", state.Len())

	// Output:
	// Greeter: Hello there!
	// Helper: You have said 2 thing(s) so far.
	// messages: 6
}
