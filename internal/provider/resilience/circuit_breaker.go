// Package resilience wraps outbound provider calls in a gobreaker circuit
// with optional backoff retries, and tracks provider health in a Registry.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

const (
	// tripMinRequests and tripFailureRatio drive TripOnFailureRatio.
	tripMinRequests  = 5
	tripFailureRatio = 0.5

	defaultOpenFor = 60 * time.Second
)

// CircuitBreakerConfig configures the breaker in front of a provider client.
type CircuitBreakerConfig struct {
	// Name labels the breaker in state-change callbacks.
	Name string

	// HalfOpenRequests is the number of requests let through while half-open.
	HalfOpenRequests uint32

	// CountWindow clears closed-state counts periodically. Zero keeps them
	// until the next state change.
	CountWindow time.Duration

	// OpenFor is how long the circuit stays open before letting requests through again.
	OpenFor time.Duration

	// ReadyToTrip decides when a closed circuit opens. Nil means
	// TripOnFailureRatio.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is called on every transition (optional).
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns a breaker that opens for a minute once
// half of at least five requests have failed.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		OpenFor:          defaultOpenFor,
		ReadyToTrip:      TripOnFailureRatio,
	}
}

// ObserveOnlyCircuitBreakerConfig returns a breaker that counts outcomes for
// health reporting but never opens, so every call reaches the upstream.
func ObserveOnlyCircuitBreakerConfig(name string) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig(name)
	cfg.ReadyToTrip = NeverTrip
	return cfg
}

// TripOnFailureRatio opens the circuit once at least five requests were made
// and half or more of them failed.
func TripOnFailureRatio(counts gobreaker.Counts) bool {
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRatio
}

// NeverTrip keeps the circuit closed whatever the counts.
func NeverTrip(gobreaker.Counts) bool {
	return false
}

// NewCircuitBreaker builds a gobreaker circuit from cfg.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	readyToTrip := cfg.ReadyToTrip
	if readyToTrip == nil {
		readyToTrip = TripOnFailureRatio
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.CountWindow,
		Timeout:       cfg.OpenFor,
		ReadyToTrip:   readyToTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
