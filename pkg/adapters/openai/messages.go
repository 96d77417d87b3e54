package openai

import (
	"github.com/aretw0/parley/pkg/domain"
	"github.com/openai/openai-go"
)

// convertHistory maps the dialogue to chat messages, led by the system instructions.
// User turns become user messages and handler replies become assistant messages;
// classifier records are skipped.
func (b *Backend) convertHistory(instructions string, history []domain.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if instructions != "" {
		result = append(result, openai.SystemMessage(instructions))
	}

	for _, msg := range history {
		switch {
		case msg.Role == domain.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case msg.Handler == b.routerName:
			continue
		default:
			result = append(result, openai.AssistantMessage(msg.Content))
		}
	}

	return result
}
