package util

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ShouldRetryFunc func(error) bool
}

// DefaultRetryConfig provides sensible defaults for retry operations
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      5,
		BaseDelay:       10 * time.Millisecond,
		MaxDelay:        1 * time.Second,
		ShouldRetryFunc: nil, // No retry by default
	}
}

// Backoff returns the delay before the given retry attempt (1-based),
// doubling from BaseDelay and capped at MaxDelay. Jitter is not included.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := c.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func (c RetryConfig) retriable(err error) bool {
	return c.ShouldRetryFunc != nil && c.ShouldRetryFunc(err)
}

// Retry runs operation until it succeeds, returns an error ShouldRetryFunc
// rejects, MaxRetries is exhausted, or ctx is done.
func Retry(ctx context.Context, config RetryConfig, operation func() error) error {
	_, err := RetryValue(ctx, config, func() (struct{}, error) {
		return struct{}{}, operation()
	})
	return err
}

// RetryValue is Retry for operations that produce a value.
func RetryValue[T any](ctx context.Context, config RetryConfig, operation func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := config.Backoff(attempt)
			// 10% jitter so that parallel writers do not wake together
			delay += time.Duration(rand.Float64() * float64(delay) * 0.1)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		v, err := operation()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !config.retriable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d retries, last error: %w", config.MaxRetries, lastErr)
}
