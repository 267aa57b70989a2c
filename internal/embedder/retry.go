package embedder

import (
	"context"
	"time"
)

// RetryConfig bounds the retry loop around provider calls.
type RetryConfig struct {
	MaxRetries int           // Total attempts, not retries after the first
	BaseDelay  time.Duration // Delay before the second attempt
	MaxDelay   time.Duration // Backoff growth cap
	Multiplier float64       // Delay growth factor per attempt
}

// DefaultRetryConfig matches the provider constants: a handful of attempts
// with capped exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// retryWithBackoff runs fn up to MaxRetries times, sleeping a growing,
// capped delay between attempts. Cancellation cuts the loop short both
// between attempts and after a failed call; when every attempt fails the
// last error is returned.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	delay := config.BaseDelay
	for attempt := 0; attempt < config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * config.Multiplier)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, lastErr
}
