package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunDialogueStoreContract runs a suite of tests to verify that a DialogueStore implementation
// adheres to the defined interface contract.
func RunDialogueStoreContract(t *testing.T, store DialogueStore) {
	ctx := context.Background()
	sessionID := "contract-test-session-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		state := domain.NewDialogueState(sessionID)
		state.Append(domain.RoleUser, "", "cuéntame una historia")
		state.Append(domain.RoleHandler, "Router", "StoryTeller")
		state.Append(domain.RoleHandler, "StoryTeller", "Érase una vez en Arkham...")

		err := store.Save(ctx, sessionID, state)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err, "Load should not return error")
		require.Equal(t, 3, loaded.Len())
		assert.Equal(t, sessionID, loaded.SessionID)
		for i, msg := range loaded.Messages {
			assert.Equal(t, i, msg.Position, "message order must be preserved")
			assert.Equal(t, state.Messages[i].Content, msg.Content)
			assert.Equal(t, state.Messages[i].Role, msg.Role)
			assert.Equal(t, state.Messages[i].Handler, msg.Handler)
		}
	})

	t.Run("Load Is Isolated", func(t *testing.T) {
		loaded, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		loaded.Append(domain.RoleUser, "", "not saved")

		again, err := store.Load(ctx, sessionID)
		require.NoError(t, err)
		assert.Equal(t, 3, again.Len(), "mutating a loaded state must not change the store")
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, sessionID, domain.NewDialogueState(sessionID))
		require.NoError(t, err)

		err = store.Delete(ctx, sessionID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, sessionID)
		assert.ErrorIs(t, err, domain.ErrSessionNotFound, "Load after Delete should return ErrSessionNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := sessionID + "-1"
		id2 := sessionID + "-2"
		_ = store.Save(ctx, id1, domain.NewDialogueState(id1))
		_ = store.Save(ctx, id2, domain.NewDialogueState(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		sessions, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, sessions, id1)
		assert.Contains(t, sessions, id2)
	})
}
