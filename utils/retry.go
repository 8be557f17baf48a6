package utils

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Logger      *slog.Logger

	// Retryable decides whether an error is worth another attempt. When nil
	// every error is retried.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)

	sleep func(context.Context, time.Duration) error
}

// Do executes fn with exponential back-off retry logic. Errors that are not
// retryable are returned on the spot, unwrapped.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(context.Context) error) error {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		delay := r.Backoff(attempt)
		if r.Logger != nil {
			r.Logger.Warn("retrying operation",
				slog.String("operation", operationName),
				slog.Int("attempt", attempt),
				slog.Int("max_attempts", attempts),
				slog.Duration("delay", delay),
				slog.Any("error", lastErr),
			)
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, lastErr)
		}
		if err := r.wait(ctx, delay); err != nil {
			return fmt.Errorf("%s interrupted after %d attempts: %w", operationName, attempt, lastErr)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, attempts, lastErr)
}

// Backoff returns the delay after the given attempt, doubling from
// BaseDelay and capped at MaxDelay.
func (r *RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := r.BaseDelay
	if base <= 0 {
		return 0
	}
	delay := base * time.Duration(1<<(attempt-1))
	if r.MaxDelay > 0 && delay > r.MaxDelay {
		delay = r.MaxDelay
	}
	return delay
}

func (r *RetryConfig) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WithSleep swaps the sleep function; tests use it to skip real delays.
func (r *RetryConfig) WithSleep(fn func(context.Context, time.Duration) error) *RetryConfig {
	r.sleep = fn
	return r
}
