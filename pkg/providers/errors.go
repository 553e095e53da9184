package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a provider failure so callers can decide whether to
// fail over, back off, or surface the error.
type ErrorKind string

const (
	// KindAuth means the provider rejected the credentials (HTTP 401/403).
	KindAuth ErrorKind = "auth"

	// KindRateLimit means the provider throttled the request (HTTP 429).
	KindRateLimit ErrorKind = "rate_limit"

	// KindCapabilityMissing means the request needs a capability the
	// provider does not have (e.g. vision on a text-only provider).
	KindCapabilityMissing ErrorKind = "capability_missing"

	// KindTransport means the request never completed: network error,
	// timeout, context cancellation, or exhausted retries on 5xx.
	KindTransport ErrorKind = "transport"

	// KindUnknown covers everything else: bad request, unknown model,
	// malformed response, empty completion.
	KindUnknown ErrorKind = "unknown"
)

// ProviderError is the error type returned by all provider adapters.
type ProviderError struct {
	// Provider is the name of the provider that produced the error
	Provider string

	// Kind classifies the failure
	Kind ErrorKind

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// RetryAfter is the wait suggested by a rate-limiting provider (0 if none)
	RetryAfter time.Duration

	// Message is the error message, typically the provider's response body
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	switch e.Kind {
	case KindAuth:
		return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
	case KindRateLimit:
		if e.RetryAfter > 0 {
			return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
				e.Provider, e.RetryAfter, e.Message)
		}
		return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
	case KindCapabilityMissing:
		return fmt.Sprintf("provider %q missing capability: %s", e.Provider, e.Message)
	case KindTransport:
		if e.Cause != nil {
			return fmt.Sprintf("provider %q transport error: %v", e.Provider, e.Cause)
		}
		return fmt.Sprintf("provider %q transport error: %s", e.Provider, e.Message)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches any *ProviderError with the same Kind, so callers can test
// failure classes with errors.Is(err, &ProviderError{Kind: KindAuth}).
// A target with a Provider set additionally requires a provider match.
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	if t.Provider != "" && t.Provider != e.Provider {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the failure classification from an error chain.
// Non-provider errors report KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
