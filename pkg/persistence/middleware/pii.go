package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Mask replaces every redacted span.
const Mask = "***"

type piiMiddleware struct {
	passthrough
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks message content matching any of the patterns before it
// reaches the store. The live dialogue keeps the original text, so handlers still see
// it for the rest of the process; only what is persisted is redacted.
func NewPIIMiddleware(patterns []string) (Middleware, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid PII pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return func(next ports.DialogueStore) ports.DialogueStore {
		return &piiMiddleware{passthrough: passthrough{next: next}, patterns: compiled}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, sessionID string, state *domain.DialogueState) error {
	masked := state.Snapshot()
	if masked != nil {
		for i := range masked.Messages {
			for _, re := range m.patterns {
				masked.Messages[i].Content = re.ReplaceAllString(masked.Messages[i].Content, Mask)
			}
		}
	}
	return m.next.Save(ctx, sessionID, masked)
}
