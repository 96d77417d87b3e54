// Package ratelimit admits or rejects requests per key within a fixed budget.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limit is a request budget over a window, e.g. 5 per minute.
type Limit struct {
	Requests int
	Window   time.Duration
}

// String renders the limit as "N/unit".
func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.Requests, l.Window)
}

// normalize clamps a hand-built limit to at least one request per second-long window.
func (l Limit) normalize() Limit {
	if l.Requests < 1 {
		l.Requests = 1
	}
	if l.Window <= 0 {
		l.Window = time.Second
	}
	return l
}

// Decision is the outcome of a single admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseLimit parses "5/minute", "100/hour" or "10/30s".
func ParseLimit(s string) (Limit, error) {
	count, per, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Limit{}, fmt.Errorf("invalid rate limit %q: want N/unit", s)
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("invalid rate limit %q: count must be a positive integer", s)
	}

	per = strings.ToLower(strings.TrimSpace(per))
	window, ok := units[strings.TrimSuffix(per, "s")]
	if !ok {
		window, err = time.ParseDuration(per)
		if err != nil || window <= 0 {
			return Limit{}, fmt.Errorf("invalid rate limit %q: unknown unit %q", s, per)
		}
	}

	return Limit{Requests: n, Window: window}, nil
}
