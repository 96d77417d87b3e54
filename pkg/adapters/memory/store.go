// Package memory keeps dialogues in process memory. Sessions live until Delete
// or process exit; it is the default store of the chat command.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

var _ ports.DialogueStore = (*Store)(nil)

// Store implements ports.DialogueStore. Safe for concurrent use.
// States are copied on the way in and out, so neither side can mutate the other's history.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*domain.DialogueState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*domain.DialogueState)}
}

// Save stores a snapshot of state under sessionID.
func (s *Store) Save(ctx context.Context, sessionID string, state *domain.DialogueState) error {
	snap := state.Snapshot()
	if snap == nil {
		snap = domain.NewDialogueState(sessionID)
	}

	s.mu.Lock()
	s.sessions[sessionID] = snap
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the stored history, or domain.ErrSessionNotFound.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.DialogueState, error) {
	s.mu.RLock()
	state, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return state.Snapshot(), nil
}

// Delete forgets the session. Deleting an unknown session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// List returns the stored session IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sessions)), nil
}
