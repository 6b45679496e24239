// Package boundary bounds calls into external collaborators.
//
// Decentralized reads can be slow without being wrong, so a timeout is a
// distinct, retryable failure (relstate.ErrTimeout) and never a denial.
package boundary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/unkn0wn-root/relstate"
)

// Policy bounds one logical call. Zero Timeout disables the bound.
type Policy struct {
	Timeout  time.Duration // per attempt
	Attempts uint          // total attempts on timeout; 0 => 1
	Delay    time.Duration // backoff base between attempts; 0 => 100ms
}

// Do runs fn under p. Only timeouts are retried; any other error returns at once.
//
// The per-attempt deadline is enforced even when fn ignores its context: Do
// stops waiting and fn's goroutine is left to finish on its own.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	delay := p.Delay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	return retry.DoWithData(
		func() (T, error) { return attempt(ctx, p.Timeout, fn) },
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(8*delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsTimeout),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)
}

// IsTimeout reports whether err is a bounded-call timeout.
func IsTimeout(err error) bool { return errors.Is(err, relstate.ErrTimeout) }

type result[T any] struct {
	v   T
	err error
}

func attempt[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(cctx)
		done <- result[T]{v: v, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return r.v, fmt.Errorf("%w after %s: %v", relstate.ErrTimeout, timeout, r.err)
		}
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		if ctx.Err() != nil {
			// caller gave up; not a boundary timeout
			return zero, retry.Unrecoverable(ctx.Err())
		}
		return zero, fmt.Errorf("%w after %s", relstate.ErrTimeout, timeout)
	}
}
