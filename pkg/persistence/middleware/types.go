// Package middleware decorates a ports.DialogueStore with masking and encryption.
package middleware

import (
	"context"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// Middleware allows wrapping a DialogueStore to add behavior.
type Middleware func(ports.DialogueStore) ports.DialogueStore

// Chain applies middlewares so that the first one listed is the outermost.
// Chain(store, pii, enc) masks, then seals, then writes.
func Chain(store ports.DialogueStore, mws ...Middleware) ports.DialogueStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// passthrough forwards every call to next; decorators embed it and override what they change.
type passthrough struct {
	next ports.DialogueStore
}

func (p passthrough) Save(ctx context.Context, sessionID string, state *domain.DialogueState) error {
	return p.next.Save(ctx, sessionID, state)
}

func (p passthrough) Load(ctx context.Context, sessionID string) (*domain.DialogueState, error) {
	return p.next.Load(ctx, sessionID)
}

func (p passthrough) Delete(ctx context.Context, sessionID string) error {
	return p.next.Delete(ctx, sessionID)
}

func (p passthrough) List(ctx context.Context) ([]string, error) {
	return p.next.List(ctx)
}
