package routing

import (
	"context"
	"fmt"
	"time"
)

type outcome[T any] struct {
	value T
	err   error
}

// call runs fn under an optional timeout and returns as soon as either fn
// completes or ctx is done, so a capability that ignores its context cannot
// leave the turn pending. Panics are converted into errors.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("capability panicked: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil && ctx.Err() != nil {
			// Completed after cancellation: discard so no late output is appended.
			return zero, ctx.Err()
		}
		return res.value, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
