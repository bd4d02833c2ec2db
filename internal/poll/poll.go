// Package poll implements the synchronous waits between restore steps:
// constant-interval retry bounded by a timeout, retrying transient errors
// and stopping on terminal ones.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultInterval = 30 * time.Second
	DefaultTimeout  = 60 * time.Minute
)

var errNotReady = errors.New("condition not yet met")

// Condition observes external state and reports whether the awaited state
// has been reached. A returned error is retried unless marked Terminal.
type Condition func(ctx context.Context) (done bool, err error)

// Terminal marks err as non-retryable; the wait stops immediately and
// surfaces err.
func Terminal(err error) error {
	return backoff.Permanent(err)
}

// Waiter runs conditions to completion at a fixed interval.
type Waiter struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewWaiter returns a Waiter with defaults filled in for zero values.
func NewWaiter(interval, timeout time.Duration) Waiter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return Waiter{Interval: interval, Timeout: timeout}
}

// Until polls cond at the waiter's interval until it reports done, returns a
// terminal error, or the timeout elapses.
func (w Waiter) Until(ctx context.Context, cond Condition) error {
	ctx, cancel := context.WithTimeout(ctx, w.Timeout)
	defer cancel()

	operation := func() error {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if !done {
			return errNotReady
		}
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.NewConstantBackOff(w.Interval), ctx))
	if err != nil {
		if errors.Is(err, errNotReady) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("timed out after %s waiting for condition: %w", w.Timeout, err)
		}
		return err
	}
	return nil
}
