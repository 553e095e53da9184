// Package health tracks per-provider circuit state so the router can stop
// sending requests to providers that are failing repeatedly. Each provider
// gets its own circuit breaker: after enough consecutive failures the
// circuit opens and requests are refused until the open timeout elapses,
// at which point a single trial request decides whether it closes again.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

const (
	// DefaultTripThreshold is the number of consecutive failures that opens
	// a provider's circuit.
	DefaultTripThreshold = 3

	// DefaultOpenTimeout is how long an open circuit refuses requests before
	// letting a trial request through.
	DefaultOpenTimeout = 300 * time.Second
)

// Registry holds one circuit breaker per provider. Breakers are created
// lazily on first use, so the registry does not need to know the provider
// set up front.
type Registry struct {
	mu            sync.Mutex
	breakers      map[string]*gobreaker.TwoStepCircuitBreaker
	tripThreshold uint32
	openTimeout   time.Duration
	onTransition  func(provider, from, to string)
}

// NewRegistry creates a registry with the default trip threshold and
// open timeout.
func NewRegistry() *Registry {
	return NewRegistryWithSettings(DefaultTripThreshold, DefaultOpenTimeout)
}

// NewRegistryWithSettings creates a registry whose circuits open after
// tripThreshold consecutive failures and stay open for openTimeout.
// Non-positive values fall back to the defaults.
func NewRegistryWithSettings(tripThreshold int, openTimeout time.Duration) *Registry {
	if tripThreshold <= 0 {
		tripThreshold = DefaultTripThreshold
	}
	if openTimeout <= 0 {
		openTimeout = DefaultOpenTimeout
	}

	return &Registry{
		breakers:      make(map[string]*gobreaker.TwoStepCircuitBreaker),
		tripThreshold: uint32(tripThreshold),
		openTimeout:   openTimeout,
	}
}

// OnTransition registers a callback invoked on every circuit state change,
// in addition to the built-in logging. Call it before the first request;
// breakers created earlier keep the hook they were built with.
func (r *Registry) OnTransition(fn func(provider, from, to string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTransition = fn
}

// Allow reports whether a request to the named provider may proceed. When
// the circuit permits the request it returns a done callback that the
// caller must invoke with the request's outcome; done(true) records a
// success and done(false) a failure. When the circuit is open, Allow
// returns a non-nil error and the caller should skip the provider.
func (r *Registry) Allow(provider string) (done func(success bool), err error) {
	return r.breaker(provider).Allow()
}

// State returns the circuit state for the named provider: "closed",
// "half-open" or "open". Providers the registry has never seen report
// "closed".
func (r *Registry) State(provider string) string {
	return r.breaker(provider).State().String()
}

// States returns the circuit state of every provider the registry has seen.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}

// ConsecutiveFailures returns the current consecutive failure count for the
// named provider. The count resets to zero on any success and when the
// circuit changes state.
func (r *Registry) ConsecutiveFailures(provider string) int {
	return int(r.breaker(provider).Counts().ConsecutiveFailures)
}

// breaker returns the circuit breaker for a provider, creating it on
// first use.
func (r *Registry) breaker(provider string) *gobreaker.TwoStepCircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[provider]; ok {
		return cb
	}

	threshold := r.tripThreshold
	openFor := r.openTimeout
	hook := r.onTransition

	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        provider,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			switch to {
			case gobreaker.StateOpen:
				slog.Warn("provider circuit opened",
					"provider", name,
					"open_for", openFor,
				)
			case gobreaker.StateHalfOpen:
				slog.Debug("provider circuit half-open", "provider", name)
			case gobreaker.StateClosed:
				slog.Info("provider circuit closed",
					"provider", name,
					"previous", from.String(),
				)
			}
			if hook != nil {
				hook(name, from.String(), to.String())
			}
		},
	})
	r.breakers[provider] = cb
	return cb
}
