package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("connection refused")

func fail() error    { return errBackend }
func succeed() error { return nil }

func newTestBreaker(threshold uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	return New(Config{Name: "test", FailureThreshold: threshold, Cooldown: cooldown, HalfOpenRequests: 1}, nil)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := newTestBreaker(3, time.Minute)

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, Do(cb, fail), errBackend)
	}
	assert.NoError(t, Do(cb, succeed), "a success resets the count")

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, Do(cb, fail), errBackend)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	called := false
	err := Do(cb, func() error { called = true; return nil })
	assert.True(t, IsOpen(err))
	assert.False(t, called)
}

func TestBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := newTestBreaker(1, 20*time.Millisecond)

	require.Error(t, Do(cb, fail))
	require.Equal(t, gobreaker.StateOpen, cb.State())
	assert.True(t, IsOpen(Do(cb, succeed)), "still cooling down")

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, gobreaker.StateHalfOpen, cb.State())
	assert.NoError(t, Do(cb, succeed))
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreakerReopensOnFailedTrialCall(t *testing.T) {
	cb := newTestBreaker(1, 20*time.Millisecond)

	require.Error(t, Do(cb, fail))
	time.Sleep(40 * time.Millisecond)

	assert.ErrorIs(t, Do(cb, fail), errBackend)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
	assert.True(t, IsOpen(Do(cb, succeed)))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("redis-version-cache")
	assert.Equal(t, uint32(5), cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Cooldown)

	cb := New(Config{Name: "clamped"}, nil)
	assert.Equal(t, "clamped", cb.Name())
	require.Error(t, Do(cb, fail))
	assert.Equal(t, gobreaker.StateOpen, cb.State(), "a zero threshold trips on the first failure")
}
