package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errTransient = errors.New("transient")

func fastConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithExponentialBackoff(t *testing.T) {
	t.Run("succeeds on a later attempt", func(t *testing.T) {
		calls := 0
		result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
			calls++
			if attempt < 3 {
				return errTransient
			}
			return nil
		})

		assert.True(t, result.Success)
		assert.Equal(t, 3, result.Attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at max attempts", func(t *testing.T) {
		result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
			return errTransient
		})

		assert.False(t, result.Success)
		assert.True(t, result.Exhausted)
		assert.Equal(t, 3, result.Attempts)
		assert.ErrorIs(t, result.LastError, errTransient)
	})

	t.Run("non retryable error stops immediately", func(t *testing.T) {
		permanent := errors.New("permanent")
		cfg := fastConfig(5)
		cfg.ShouldRetry = func(err error) bool { return errors.Is(err, errTransient) }

		result := WithExponentialBackoff(context.Background(), cfg, func(ctx context.Context, attempt int) error {
			return permanent
		})

		assert.False(t, result.Success)
		assert.False(t, result.Exhausted)
		assert.Equal(t, 1, result.Attempts)
		assert.ErrorIs(t, result.LastError, permanent)
	})

	t.Run("cancelled context ends the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cfg := fastConfig(10)
		cfg.InitialDelay = time.Hour
		cfg.MaxDelay = time.Hour

		result := WithExponentialBackoff(ctx, cfg, func(ctx context.Context, attempt int) error {
			cancel()
			return errTransient
		})

		assert.False(t, result.Success)
		assert.Equal(t, 1, result.Attempts)
		assert.ErrorIs(t, result.LastError, context.Canceled)
	})
}

func TestCalculateDelay(t *testing.T) {
	cfg := &RetryConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}

	assert.Equal(t, 10*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 20*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, 40*time.Millisecond, calculateDelay(cfg, 3))
	assert.Equal(t, 50*time.Millisecond, calculateDelay(cfg, 4))
}

func TestWithExponentialBackoff_ZeroAttempts(t *testing.T) {
	called := false
	result := WithExponentialBackoff(context.Background(), &RetryConfig{}, func(ctx context.Context, attempt int) error {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.False(t, result.Success)
	assert.Equal(t, 0, result.Attempts)
	assert.ErrorIs(t, result.LastError, ErrNoAttempts)
}

func TestWithRetry(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context reports the attempts made", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := WithRetry(ctx, func(ctx context.Context, attempt int) error {
			cancel()
			return errTransient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "after 1 attempts")
	})
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 60*time.Second, cfg.MaxDelay)
}
