package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// routeDecision is the structured output requested from the model.
type routeDecision struct {
	Agent string `json:"agent" jsonschema_description:"Name of the agent that should answer next"`
}

// Classifier is a ports.Classifier that asks the model to pick one handler
// through a JSON schema whose enum is the set of handler names.
type Classifier struct {
	backend      *Backend
	names        []string
	instructions string
	schema       *jsonschema.Schema
}

// NewClassifier builds a classifier over the given handlers. Every descriptor
// becomes a "-Name: description" line in the routing instructions.
func NewClassifier(backend *Backend, handlers []domain.HandlerDescriptor) (*Classifier, error) {
	if len(handlers) == 0 {
		return nil, fmt.Errorf("classifier needs at least one handler")
	}

	names := make([]string, len(handlers))
	enum := make([]any, len(handlers))
	for i, h := range handlers {
		names[i] = h.Name
		enum[i] = h.Name
	}

	schema := generateSchema[routeDecision]()
	agent, ok := schema.Properties.Get("agent")
	if !ok {
		return nil, fmt.Errorf("route decision schema has no agent property")
	}
	agent.Enum = enum

	return &Classifier{
		backend:      backend,
		names:        names,
		instructions: RouterInstructions(handlers),
		schema:       schema,
	}, nil
}

// RouterInstructions renders the system prompt that lists every handler.
func RouterInstructions(handlers []domain.HandlerDescriptor) string {
	var sb strings.Builder
	sb.WriteString("Decide which agent is more helpful to continue with the process. ")
	sb.WriteString("You have to choose one of following agents and you have to return the name of the agent. ")
	sb.WriteString("Return only the name of the agent without any additional text and characters.\n")
	sb.WriteString("Agents:\n")
	for _, h := range handlers {
		fmt.Fprintf(&sb, "-%s: %s\n", h.Name, h.Description)
	}
	return sb.String()
}

// Domain returns the handler names the classifier can select.
func (c *Classifier) Domain() []string {
	return c.names
}

// Schema returns the JSON schema sent as the response format.
func (c *Classifier) Schema() *jsonschema.Schema {
	return c.schema
}

// Classify asks the model for a route decision. Output that is not valid JSON, or
// names something outside Domain, is reported as domain.ErrClassificationSchema
// with the raw content kept on the result.
func (c *Classifier) Classify(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
	b := c.backend
	params := openai.ChatCompletionNewParams{
		Model:               b.model,
		Messages:            b.convertHistory(c.instructions, history),
		MaxCompletionTokens: openai.Int(256),
		Temperature:         openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "route_decision",
					Description: openai.String("The agent that should handle the conversation next"),
					Schema:      c.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	start := time.Now()
	resp, err := b.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("router completion: %w", remoteError(err))
	}
	if len(resp.Choices) == 0 {
		return domain.ClassificationResult{}, domain.NewRemoteError(domain.RemoteUnavailable, errors.New("no choices in response"))
	}

	content := resp.Choices[0].Message.Content
	b.logger.DebugContext(ctx, "router completion",
		"model", b.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"raw", content,
	)

	var decision routeDecision
	if err := json.Unmarshal([]byte(content), &decision); err != nil {
		return domain.ClassificationResult{Raw: content},
			domain.NewRemoteError(domain.RemoteSchema, fmt.Errorf("unmarshal route decision: %w", err))
	}

	res, err := registry.ValidateClassification(c.names, decision.Agent)
	res.Raw = content
	return res, err
}

func generateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
