// Copyright 2026 Peter Edge
//
// All rights reserved.

// Package backoff retries operations that fail with transient errors.
//
// An operation marks an error as transient by wrapping it with Retryable.
// Any other error stops the loop immediately.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Policy controls how many times and how quickly an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of calls, including the first one.
	MaxAttempts int
	// InitialDelay is the delay before the second call.
	InitialDelay time.Duration
	// MaxDelay caps the delay between calls.
	MaxDelay time.Duration
}

// NoRetry calls the operation exactly once.
var NoRetry = Policy{MaxAttempts: 1}

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err or any error it wraps was marked with Retryable.
func IsRetryable(err error) bool {
	var retryableErr *retryableError
	return errors.As(err, &retryableErr)
}

// Delay returns the upper bound of the wait after the given zero-based attempt.
//
// The bound doubles with every attempt and never exceeds MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.InitialDelay
	for range attempt {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return min(delay, p.MaxDelay)
}

// Do calls f until it succeeds, fails with an error not marked Retryable, or
// the policy runs out of attempts.
//
// Between calls Do sleeps for a random duration between half of Delay and
// Delay. onRetry, if non-nil, is called before each sleep with the attempt
// that just failed.
func Do[T any](
	ctx context.Context,
	policy Policy,
	onRetry func(attempt int, err error),
	f func(ctx context.Context) (T, error),
) (T, error) {
	var zero T
	maxAttempts := max(policy.MaxAttempts, 1)
	for attempt := range maxAttempts {
		result, err := f(ctx)
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == maxAttempts-1 {
			if maxAttempts == 1 {
				return zero, err
			}
			return zero, fmt.Errorf("failed after %d attempts: %w", maxAttempts, err)
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		delay := policy.Delay(attempt)
		jittered := delay/2 + time.Duration(rand.Int64N(int64(delay/2)+1))
		timer := time.NewTimer(jittered)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return zero, fmt.Errorf("failed after %d attempts", maxAttempts)
}

// *** PRIVATE ***

type retryableError struct {
	err error
}

func (r *retryableError) Error() string {
	return r.err.Error()
}

func (r *retryableError) Unwrap() error {
	return r.err
}
