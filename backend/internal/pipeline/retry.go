package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"audiobook-forge/backend/internal/tts"
)

// RetryPolicy wraps provider calls in exponential backoff. Non-retryable
// errors abort immediately.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		InitialInterval: 2 * time.Second,
		MaxInterval:     60 * time.Second,
	}
}

// Do runs op until it succeeds, exhausts the attempt budget, or fails with a
// non-retryable error. The context cancels waits between attempts.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !tts.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	return backoff.Retry(wrapped,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1)), ctx))
}
