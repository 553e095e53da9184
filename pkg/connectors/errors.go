package connectors

import (
	"errors"
	"fmt"
)

// ErrConnectorUnavailable is the sentinel matched by errors.Is when a
// connector is not configured or cannot reach its service. Skills decide
// what to do with it: DIAGNOSE degrades to KB-only, WORK_ORDER falls back to
// the portable document, most others reply "not configured".
var ErrConnectorUnavailable = errors.New("connector unavailable")

// ConnectorUnavailableError reports which connector was unavailable and why.
type ConnectorUnavailableError struct {
	// Connector is the connector name
	Connector string

	// Reason describes what made it unavailable
	Reason string

	// Cause is the underlying error (if any)
	Cause error
}

// Error returns a human-readable error message.
func (e *ConnectorUnavailableError) Error() string {
	msg := fmt.Sprintf("connector %q unavailable", e.Connector)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Is reports whether target matches the unavailable sentinel.
func (e *ConnectorUnavailableError) Is(target error) bool {
	return target == ErrConnectorUnavailable
}

// Unwrap returns the underlying cause.
func (e *ConnectorUnavailableError) Unwrap() error {
	return e.Cause
}
