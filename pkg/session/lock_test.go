package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/parley/pkg/adapters/memory"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoRunner appends the input and a canned reply without routing.
type echoRunner struct{}

func (echoRunner) RunTurn(ctx context.Context, state *domain.DialogueState, userText string) domain.RunResult {
	state.Append(domain.RoleUser, "", userText)
	msg := state.Append(domain.RoleHandler, "Echo", userText)
	return domain.RunResult{Output: msg.Content, Handler: "Echo", State: state}
}

func TestManager_LockEntriesAreReleased(t *testing.T) {
	mgr := NewManager(memory.NewStore())
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		sid := fmt.Sprintf("session-%d", i)
		_, err := mgr.RunTurn(ctx, echoRunner{}, sid, "ping")
		require.NoError(t, err)
		require.NoError(t, mgr.Delete(ctx, sid))
	}

	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	assert.Empty(t, mgr.locks, "per-session lock entries must not outlive their users")
}

func TestManager_DistributedLockWrapsEveryTurn(t *testing.T) {
	var held, maxHeld, acquired atomic.Int32
	locker := ports.LockerFunc(func(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
		n := held.Add(1)
		for {
			m := maxHeld.Load()
			if n <= m || maxHeld.CompareAndSwap(m, n) {
				break
			}
		}
		acquired.Add(1)
		return func(ctx context.Context) error {
			held.Add(-1)
			return nil
		}, nil
	})

	mgr := NewManager(memory.NewStore(), WithLocker(locker), WithLockTTL(time.Second))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := mgr.RunTurn(ctx, echoRunner{}, "mesa", "ping")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, maxHeld.Load(), "turns of one session never overlap")
	assert.EqualValues(t, 20, acquired.Load())

	state, err := mgr.Load(ctx, "mesa")
	require.NoError(t, err)
	assert.Equal(t, 40, state.Len())
}

func TestManager_DistributedLockFailure(t *testing.T) {
	boom := errors.New("redis down")
	locker := ports.LockerFunc(func(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
		return nil, boom
	})
	mgr := NewManager(memory.NewStore(), WithLocker(locker))

	_, err := mgr.RunTurn(context.Background(), echoRunner{}, "mesa", "ping")
	assert.ErrorIs(t, err, boom)
}
