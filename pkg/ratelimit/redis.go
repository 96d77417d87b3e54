package ratelimit

import (
	"context"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// Redis is a fixed-window limiter shared by every replica pointing at the same server.
type Redis struct {
	client *backend.Client
	limit  Limit
	prefix string
}

// NewRedis creates a Redis-backed limiter. Keys are namespaced by prefix.
func NewRedis(client *backend.Client, limit Limit, prefix string) *Redis {
	if prefix == "" {
		prefix = "parley:ratelimit:"
	}
	return &Redis{client: client, limit: limit.normalize(), prefix: prefix}
}

// Allow counts the request in the current window and rejects it once the budget is spent.
func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key

	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}
	if count == 1 {
		if err := r.client.PExpire(ctx, k, r.limit.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("rate limit window: %w", err)
		}
	}

	if count <= int64(r.limit.Requests) {
		return Decision{Allowed: true, Remaining: r.limit.Requests - int(count)}, nil
	}

	ttl, err := r.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit ttl: %w", err)
	}
	if ttl <= 0 {
		// Counter lost its expiry; start a fresh window so the key cannot stay blocked.
		_ = r.client.PExpire(ctx, k, r.limit.Window).Err()
		ttl = r.limit.Window
	}
	return Decision{Allowed: false, RetryAfter: ttl.Round(time.Millisecond)}, nil
}
