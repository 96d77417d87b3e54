package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepThreshold is the number of tracked keys above which idle ones are evicted.
const sweepThreshold = 1024

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Memory is a per-process token bucket limiter keyed by caller.
// Safe for concurrent use.
type Memory struct {
	limit Limit
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

// NewMemory creates an in-memory limiter. The bucket holds limit.Requests tokens
// and refills evenly across limit.Window. Non-positive fields are clamped.
func NewMemory(limit Limit) *Memory {
	return &Memory{
		limit:    limit.normalize(),
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Allow consumes a token for key if one is available.
func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	v, ok := m.visitors[key]
	if !ok {
		every := rate.Every(m.limit.Window / time.Duration(m.limit.Requests))
		v = &visitor{limiter: rate.NewLimiter(every, m.limit.Requests)}
		m.visitors[key] = v
	}
	v.lastSeen = now
	if len(m.visitors) > sweepThreshold {
		m.sweep(now)
	}
	m.mu.Unlock()

	r := v.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}

	return Decision{Allowed: true, Remaining: int(v.limiter.TokensAt(now))}, nil
}

// sweep drops keys idle for longer than a full window. Caller holds m.mu.
func (m *Memory) sweep(now time.Time) {
	for key, v := range m.visitors {
		if now.Sub(v.lastSeen) > m.limit.Window {
			delete(m.visitors, key)
		}
	}
}
