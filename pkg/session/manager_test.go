package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/testutils"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/registry"
	"github.com/aretw0/parley/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
// It stores snapshots so callers never share the saved value.
type SlowStore struct {
	data    map[string]*domain.DialogueState
	mu      sync.Mutex
	saves   int
	saveErr error
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, state *domain.DialogueState) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	if s.data == nil {
		s.data = make(map[string]*domain.DialogueState)
	}
	s.data[sessionID] = state.Snapshot()
	s.saves++
	return nil
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.DialogueState, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if state, ok := s.data[sessionID]; ok {
		return state.Snapshot(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func newOrchestrator(t *testing.T, classify testutils.ClassifyFunc) (*parley.Orchestrator, *testutils.Narrative) {
	t.Helper()
	n := testutils.NewNarrative(t, classify)
	orch, err := parley.New(n.Registry)
	require.NoError(t, err)
	return orch, n
}

func TestManager_RunTurn_CreatesAndPersists(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	orch, _ := newOrchestrator(t, testutils.Always(testutils.StoryGuider))
	ctx := context.Background()

	res, err := manager.RunTurn(ctx, orch, "new-session", "ayúdame a decidir qué hacer")
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, testutils.StoryGuider, res.Handler)

	saved, err := manager.Load(ctx, "new-session")
	require.NoError(t, err)
	assert.Equal(t, 3, saved.Len())
	assert.Equal(t, "new-session", saved.SessionID)
}

func TestManager_RunTurn_BlankInput(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	orch, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))

	res, err := manager.RunTurn(context.Background(), orch, "s", "  ")
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, domain.ErrEmptyTurn)
	assert.Zero(t, n.Classifier.Calls.Load())
	assert.Zero(t, store.saves, "blank input must not touch the store")
}

func TestManager_RunTurn_PersistsClassifierAuditOnFailure(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	allowed := []string{testutils.StoryTeller, testutils.StoryGuider, testutils.CharacterMaker}
	orch, _ := newOrchestrator(t, func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
		return registry.ValidateClassification(allowed, "Weather")
	})
	ctx := context.Background()

	res, err := manager.RunTurn(ctx, orch, "s", "¿qué tiempo hace?")
	require.NoError(t, err, "routing failures are not transport errors")
	assert.ErrorIs(t, res.Err, domain.ErrClassificationSchema)

	saved, err := manager.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Len(), "user message and classifier output are kept")
}

func TestManager_RunTurn_StoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &SlowStore{saveErr: boom}
	manager := session.NewManager(store)
	orch, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))

	_, err := manager.RunTurn(context.Background(), orch, "s", "hola")
	assert.ErrorIs(t, err, boom)
}

func TestManager_RunTurn_SerializesSameSession(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	orch, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))
	ctx := context.Background()
	id := "race-test"
	turns := 10

	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			res, err := manager.RunTurn(ctx, orch, id, fmt.Sprintf("turn %d", val))
			assert.NoError(t, err)
			assert.NoError(t, res.Err)
		}(i)
	}
	wg.Wait()

	// Without serialization, Read-Modify-Write would lose turns.
	state, err := manager.Load(ctx, id)
	require.NoError(t, err)
	require.Equal(t, turns*3, state.Len())
	for i := 0; i < turns; i++ {
		base := i * 3
		assert.Equal(t, domain.RoleUser, state.Messages[base].Role)
		assert.Equal(t, "Router", state.Messages[base+1].Handler)
		assert.Equal(t, testutils.StoryTeller, state.Messages[base+2].Handler)
	}
	assert.Equal(t, int32(turns), n.StoryTeller.Calls.Load())
}

func TestManager_RunTurn_IndependentSessions(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	orch, _ := newOrchestrator(t, func(ctx context.Context, history []domain.Message) (domain.ClassificationResult, error) {
		if history[len(history)-1].Content == "crea un personaje" {
			return domain.ClassificationResult{Handler: testutils.CharacterMaker}, nil
		}
		return domain.ClassificationResult{Handler: testutils.StoryTeller}, nil
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, tc := range []struct{ id, text string }{{"a", "crea un personaje"}, {"b", "cuéntame una historia"}} {
		wg.Add(1)
		go func(id, text string) {
			defer wg.Done()
			_, err := manager.RunTurn(ctx, orch, id, text)
			assert.NoError(t, err)
		}(tc.id, tc.text)
	}
	wg.Wait()

	a, err := manager.Load(ctx, "a")
	require.NoError(t, err)
	b, err := manager.Load(ctx, "b")
	require.NoError(t, err)

	require.Equal(t, 3, a.Len())
	require.Equal(t, 3, b.Len())
	assert.Equal(t, testutils.CharacterMaker, a.Messages[2].Handler)
	assert.Equal(t, testutils.StoryTeller, b.Messages[2].Handler)
}

func TestManager_LoadOrCreate(t *testing.T) {
	// Verify atomic creation
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "atomic-init"

	var wg sync.WaitGroup
	// Launch 2 routines trying to init same session
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state, err := manager.LoadOrCreate(ctx, id)
			assert.NoError(t, err)
			assert.NotNil(t, state)
		}()
	}
	wg.Wait()

	state, err := manager.Load(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, id, state.SessionID)
	assert.Equal(t, 1, store.saves, "only the first caller initializes the session")
}

// fakeLocker records lock usage and can be made to fail.
type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
	ttl      time.Duration
	err      error
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.locked = append(l.locked, key)
	l.ttl = ttl
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &fakeLocker{}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker), session.WithLockTTL(5*time.Second))
	orch, _ := newOrchestrator(t, testutils.Always(testutils.StoryTeller))

	_, err := manager.RunTurn(context.Background(), orch, "s1", "hola")
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, locker.locked)
	assert.Equal(t, 1, locker.released)
	assert.Equal(t, 5*time.Second, locker.ttl)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := &fakeLocker{err: errors.New("lock held elsewhere")}
	store := &SlowStore{}
	manager := session.NewManager(store, session.WithLocker(locker))
	orch, n := newOrchestrator(t, testutils.Always(testutils.StoryTeller))

	_, err := manager.RunTurn(context.Background(), orch, "s1", "hola")
	assert.Error(t, err)
	assert.Zero(t, n.Classifier.Calls.Load())
	assert.Zero(t, store.saves)
}
