package search

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryPolicy is an explicit retry configuration passed into retrieval
// adapters. Keeping the policy in one value (instead of per-call-site retry
// wrappers) means every backend call in an adapter retries the same way.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay seeds the jittered exponential backoff between attempts.
	BaseDelay time.Duration
	// Retryable decides whether an error is worth another attempt.
	// Context cancellation is never retried regardless of this predicate.
	Retryable func(error) bool
}

// DefaultRetryPolicy retries transient failures up to 3 attempts with
// jittered exponential backoff starting at 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		Retryable:   IsTransient,
	}
}

// IsTransient is the default retryable-error predicate: network-level
// failures and upstream overload, but never context cancellation or
// client-side mistakes.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unavailable", "connection refused", "connection reset", "timeout", "too many requests", "status 429", "status 502", "status 503"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Do executes fn under the policy. The last error is returned after
// exhausting attempts; a nil or non-retryable error returns immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := p.BaseDelay

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		jitter := time.Duration(0)
		if delay > 0 {
			jitter = time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
