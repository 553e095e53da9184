package routing

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/foreman/pkg/messages"
)

// ErrNoProviderAvailable is returned when every candidate for an intent was
// skipped or failed. Check with errors.Is().
var ErrNoProviderAvailable = errors.New("no provider available")

// Skip reasons recorded when a candidate is passed over without a call.
const (
	SkipNotConfigured       = "not configured"
	SkipUnavailable         = "unavailable"
	SkipOverBudget          = "over budget"
	SkipCircuitOpen         = "circuit open"
	SkipVisionUnsupported   = "vision not supported"
	SkipJSONModeUnsupported = "json mode not supported"
)

// SkippedProvider records why a candidate was not attempted.
type SkippedProvider struct {
	// Provider is the candidate that was skipped.
	Provider string

	// Reason is one of the Skip* constants.
	Reason string
}

// NoProviderAvailableError is returned when the router exhausts the
// candidate list for a request without a successful completion.
type NoProviderAvailableError struct {
	// Intent is the intent the route was resolved for.
	Intent messages.Intent

	// Attempted lists providers that were called and failed, in order.
	Attempted []string

	// Skipped lists providers that were passed over without a call,
	// in order, each with its reason.
	Skipped []SkippedProvider

	// LastError is the failure from the last attempted provider, if any.
	LastError error
}

// Error implements the error interface.
func (e *NoProviderAvailableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no provider available for intent %q", e.Intent)

	if len(e.Attempted) > 0 {
		fmt.Fprintf(&b, ", attempted: %s", strings.Join(e.Attempted, ", "))
	}
	if len(e.Skipped) > 0 {
		parts := make([]string, 0, len(e.Skipped))
		for _, s := range e.Skipped {
			parts = append(parts, fmt.Sprintf("%s (%s)", s.Provider, s.Reason))
		}
		fmt.Fprintf(&b, ", skipped: %s", strings.Join(parts, ", "))
	}
	if e.LastError != nil {
		fmt.Fprintf(&b, ", last error: %v", e.LastError)
	}
	return b.String()
}

// Is implements error matching for errors.Is().
func (e *NoProviderAvailableError) Is(target error) bool {
	return target == ErrNoProviderAvailable
}

// Unwrap returns the wrapped error for error chain traversal.
func (e *NoProviderAvailableError) Unwrap() error {
	return e.LastError
}
