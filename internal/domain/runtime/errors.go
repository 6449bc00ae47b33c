package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoHandle    = errors.New("loader returned no application")
	ErrTimeout     = errors.New("application call timed out")
	ErrPanic       = errors.New("application call panicked")
	ErrAppRejected = errors.New("application reported failure")
)

// bounded runs fn with a deadline and converts panics into errors. If fn
// outlives the deadline its eventual result is handed to late (when set) and
// otherwise dropped; the caller has already failed closed by then.
func bounded[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error), late func(T)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		var out outcome
		defer func() {
			if r := recover(); r != nil {
				out.err = fmt.Errorf("%w: %v", ErrPanic, r)
			}
			done <- out
		}()
		out.val, out.err = fn(ctx)
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		if late != nil {
			go func() {
				if out := <-done; out.err == nil {
					late(out.val)
				}
			}()
		}
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
}
