package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func noSleep(context.Context, time.Duration) error { return nil }

func TestRetrySucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	r := (&RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   10 * time.Millisecond,
		Logger:      NopLogger(),
	}).WithSleep(func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	})

	calls := 0
	err := r.Do(context.Background(), "insert", func(context.Context) error {
		calls++
		if calls < 4 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("constraint violation")
	r := (&RetryConfig{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}).WithSleep(noSleep)

	calls := 0
	err := r.Do(context.Background(), "insert", func(context.Context) error {
		calls++
		return fatal
	})

	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	retries := 0
	r := (&RetryConfig{
		MaxAttempts: 3,
		OnRetry:     func(int, error) { retries++ },
	}).WithSleep(noSleep)

	err := r.Do(context.Background(), "insert", func(context.Context) error { return errFlaky })

	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 2, retries)
}

func TestRetryInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour}

	calls := 0
	err := r.Do(ctx, "insert", func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestRetryBackoffCapped(t *testing.T) {
	r := &RetryConfig{BaseDelay: 200 * time.Millisecond, MaxDelay: 500 * time.Millisecond}

	assert.Equal(t, 200*time.Millisecond, r.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, r.Backoff(2))
	assert.Equal(t, 500*time.Millisecond, r.Backoff(4))
}
