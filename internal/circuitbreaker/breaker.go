// Package circuitbreaker stops calling a failing dependency for a cooldown
// period so that callers fall back immediately instead of waiting on it.
package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/portfolio-versioning/internal/logging"
)

// Config configures a circuit breaker
type Config struct {
	Name string
	// FailureThreshold is the number of consecutive failures that opens the circuit
	FailureThreshold uint32
	// Cooldown is how long the circuit stays open before letting trial calls through
	Cooldown time.Duration
	// HalfOpenRequests is the number of successful trial calls that close the circuit
	HalfOpenRequests uint32
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenRequests: 1,
	}
}

// New creates a closed circuit breaker that trips on consecutive failures
// and logs every state change.
func New(cfg Config, logger *logging.Logger) *gobreaker.CircuitBreaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 1
	}
	if cfg.HalfOpenRequests < 1 {
		cfg.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithField("circuitBreaker", cfg.Name)

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry := logger.WithFields(map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
			if to == gobreaker.StateOpen {
				entry.Warn("Circuit breaker opened")
				return
			}
			entry.Info("Circuit breaker state changed")
		},
	})
}

// Do runs fn through cb. Errors returned by fn count as failures.
func Do(cb *gobreaker.CircuitBreaker, fn func() error) error {
	_, err := cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	return err
}

// IsOpen reports whether err is a call rejected without reaching the dependency
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
