package ports

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
)

// DialogueStore defines the interface for persisting session histories.
// Implementations must preserve message order; the core never rewrites history.
type DialogueStore interface {
	// Save persists the state for a given session ID.
	Save(ctx context.Context, sessionID string, state *domain.DialogueState) error

	// Load retrieves the state for a given session ID.
	// Returns domain.ErrSessionNotFound if the session does not exist.
	Load(ctx context.Context, sessionID string) (*domain.DialogueState, error)

	// Delete removes the state for a given session ID.
	Delete(ctx context.Context, sessionID string) error

	// List returns the IDs of the stored sessions.
	List(ctx context.Context) ([]string, error)
}
