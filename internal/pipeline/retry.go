package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultMaxAttempts is used when a policy is configured without an attempt bound.
const DefaultMaxAttempts = 3

// RetryPolicy bounds the number of attempts of a stage and decides how long to wait between them.
type RetryPolicy struct {
	MaxAttempts int
	// NewBackOff returns a fresh backoff sequence for one run. Nil means retry immediately.
	NewBackOff func() backoff.BackOff
}

// ImmediateRetryPolicy retries without delay.
func ImmediateRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts}
}

// ExponentialRetryPolicy waits an exponentially growing, jittered delay between attempts.
func ExponentialRetryPolicy(maxAttempts int, initial, maxInterval time.Duration) RetryPolicy {
	if initial <= 0 {
		return ImmediateRetryPolicy(maxAttempts)
	}
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = initial
			if maxInterval > 0 {
				b.MaxInterval = maxInterval
			}
			b.Reset()
			return b
		},
	}
}

// Attempts returns the effective attempt bound.
func (p RetryPolicy) Attempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

// Start returns the backoff sequence for a new run.
func (p RetryPolicy) Start() backoff.BackOff {
	if p.NewBackOff == nil {
		return &backoff.ZeroBackOff{}
	}
	return p.NewBackOff()
}

// Wait blocks for the next delay of seq or until ctx is done.
func (p RetryPolicy) Wait(ctx context.Context, seq backoff.BackOff) error {
	delay := seq.NextBackOff()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
