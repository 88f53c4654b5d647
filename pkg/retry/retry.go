// Package retry executes operations that may fail transiently.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	defaultAttempts = 5
	defaultInitial  = 10 * time.Millisecond
	defaultMax      = time.Second
)

// Policy bounds retries of an operation.
type Policy struct {
	// MaxAttempts counts the first call. Values below one mean a single call.
	MaxAttempts int
	// BackOff returns a fresh strategy for one Do call. Nil means no delay.
	BackOff func() backoff.BackOff
	// Retryable reports whether err is worth another attempt. Nil retries
	// every error.
	Retryable func(err error) bool
}

// Default retries up to five times with exponential backoff from 10ms to 1s.
func Default() Policy {
	return Exponential(defaultAttempts, defaultInitial, defaultMax)
}

func Fixed(attempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		BackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(delay)
		},
	}
}

func Exponential(attempts int, initial, max time.Duration) Policy {
	return Policy{
		MaxAttempts: attempts,
		BackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			b.MaxInterval = max
			return b
		},
	}
}

// Immediate retries without delay. Useful in tests.
func Immediate(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BackOff: func() backoff.BackOff {
			return &backoff.ZeroBackOff{}
		},
	}
}

func (p Policy) attempts() int {
	return max(p.MaxAttempts, 1)
}

func (p Policy) retryable(err error) bool {
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p Policy) strategy() backoff.BackOff {
	if p.BackOff == nil {
		return &backoff.ZeroBackOff{}
	}
	return p.BackOff()
}

// ExhaustedError is returned when every attempt failed with a retryable
// error. It wraps the last one.
type ExhaustedError struct {
	Label    string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Label, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Do calls op until it succeeds, fails with a non-retryable error, runs out
// of attempts or ctx is done. Attempts are numbered from one. The loop and
// its delays are run by backoff.Retry.
func Do[T any](ctx context.Context, p Policy, label string, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	attempt := 0
	v, err := backoff.Retry(ctx, func() (T, error) {
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}
		attempt++
		v, err := op(ctx, attempt)
		switch {
		case err == nil:
			return v, nil
		case ctx.Err() != nil:
			return zero, backoff.Permanent(ctx.Err())
		case !p.retryable(err):
			return zero, backoff.Permanent(err)
		}
		return zero, err
	},
		backoff.WithBackOff(p.strategy()),
		backoff.WithMaxTries(uint(p.attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, delay time.Duration) {
			slog.Debug("retrying", "label", label, "attempt", attempt, "delay", delay, "error", err)
		}),
	)
	if err == nil {
		return v, nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return zero, perm.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	return zero, &ExhaustedError{Label: label, Attempts: attempt, Err: err}
}
