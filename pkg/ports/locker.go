package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a lock returned by DistributedLocker.Lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes turns of one session across replicas.
// The session Manager holds its in-process lock first and this one second,
// so a locker only has to arbitrate between processes.
type DistributedLocker interface {
	// Lock blocks until the lock on key is held or ctx is done.
	// ttl bounds how long a crashed holder can keep the session blocked.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

// LockerFunc adapts a plain function to DistributedLocker.
type LockerFunc func(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)

// Lock calls f(ctx, key, ttl).
func (f LockerFunc) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	return f(ctx, key, ttl)
}
