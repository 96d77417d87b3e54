package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/openai/openai-go"
)

// Generator is a ports.Handler that answers with a single chat completion.
type Generator struct {
	backend      *Backend
	name         string
	instructions string
}

// NewGenerator creates a handler driven by instructions as its system prompt.
func NewGenerator(backend *Backend, name, instructions string) *Generator {
	return &Generator{backend: backend, name: name, instructions: instructions}
}

// Name returns the handler name used in logs.
func (g *Generator) Name() string {
	return g.name
}

// Respond sends the history and returns the model's reply.
func (g *Generator) Respond(ctx context.Context, history []domain.Message) (string, error) {
	b := g.backend
	params := openai.ChatCompletionNewParams{
		Model:               b.model,
		Messages:            b.convertHistory(g.instructions, history),
		MaxCompletionTokens: openai.Int(int64(b.maxTokens)),
	}

	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s completion: %w", g.name, remoteError(err))
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewRemoteError(domain.RemoteUnavailable, errors.New("no choices in response"))
	}

	b.logger.DebugContext(ctx, "handler completion",
		"handler", g.name,
		"model", b.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason,
	)

	return resp.Choices[0].Message.Content, nil
}
