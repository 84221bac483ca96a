package transfer

import (
	"context"
	"errors"
	"time"

	// Packages
	backoff "github.com/cenkalti/backoff/v4"
)

///////////////////////////////////////////////////////////////////////////////
// TYPES

// RetryPolicy bounds the sends of a single chunk. After failed attempt n
// (starting at 1) the next attempt waits Unit * 2^n, so with the defaults the
// waits are 2s and then 4s before the third and final attempt.
type RetryPolicy struct {
	MaxAttempts int           // total attempts, including the first
	Unit        time.Duration // base of the exponential delay
}

// policyBackOff adapts a RetryPolicy to backoff.BackOff
type policyBackOff struct {
	policy  RetryPolicy
	attempt int
}

var _ backoff.BackOff = (*policyBackOff)(nil)

///////////////////////////////////////////////////////////////////////////////
// GLOBALS

const (
	DefaultMaxAttempts = 3
	DefaultRetryUnit   = time.Second
)

///////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// DefaultRetryPolicy returns three attempts with 2^attempt second delays
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		Unit:        DefaultRetryUnit,
	}
}

///////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

// Delay returns the wait after failed attempt n, where n starts at 1
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.Unit * time.Duration(uint64(1)<<uint(attempt))
}

// Exhausted returns true when no further attempt is permitted after attempt n
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= max(p.MaxAttempts, 1)
}

// Do calls fn until it succeeds, the policy is exhausted or the context is
// done. fn receives the attempt number, starting at 1. notify, which may be
// nil, is called after each failed attempt which will be retried. The error
// returned is the last error from fn, or the context error.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error, notify func(attempt int, err error, delay time.Duration)) error {
	var attempt int
	operation := func() error {
		attempt++
		err := fn(attempt)
		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(errors.Join(err, ctx.Err()))
		}
		return err
	}
	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, delay time.Duration) {
			notify(attempt, err, delay)
		}
	}
	return backoff.RetryNotify(operation, backoff.WithContext(&policyBackOff{policy: p}, ctx), onRetry)
}

///////////////////////////////////////////////////////////////////////////////
// BACKOFF

func (b *policyBackOff) NextBackOff() time.Duration {
	b.attempt++
	if b.policy.Exhausted(b.attempt) {
		return backoff.Stop
	}
	return b.policy.Delay(b.attempt)
}

func (b *policyBackOff) Reset() {
	b.attempt = 0
}
