// Package connectors wraps the non-LLM external services the gateway talks
// to: the telemetry matrix, a direct Modbus PLC, the CMMS, remote shell
// hosts, a local Ollama instance, and the gist publisher. The knowledge-base
// store lives in the knowledge subpackage.
//
// Every connector implements the Connector interface. Network clients are
// acquired on Connect and released on Disconnect; a method that finds its
// client nil reconnects lazily. Connector failures are ordinary errors local
// to the calling skill, never classified or retried the way provider
// failures are.
package connectors

import "context"

// Connector is the uniform lifecycle and health contract over one external
// service.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Connector interface {
	// Name returns the connector identifier used in config, health output,
	// and logs.
	Name() string

	// Connect establishes the network client. Failures leave the connector
	// usable in a degraded state; methods report them per call.
	Connect(ctx context.Context) error

	// Disconnect releases the network client. The connector reconnects
	// lazily if used again.
	Disconnect() error

	// HealthCheck probes the service and reports its current status.
	HealthCheck(ctx context.Context) Health
}

// TagSource is implemented by connectors that can report the latest
// telemetry tag readings. The diagnostic path uses only the first map.
type TagSource interface {
	Connector

	// GetLatestTags returns recent tag snapshots, newest first. nodeID
	// narrows the query where the backend supports it; limit caps the
	// number of snapshots.
	GetLatestTags(ctx context.Context, nodeID string, limit int) ([]map[string]any, error)
}

// Health statuses reported by connectors. The aggregate health endpoint
// treats healthy, connected, and disabled as non-degraded.
const (
	StatusHealthy      = "healthy"
	StatusUnhealthy    = "unhealthy"
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
	StatusDisabled     = "disabled"
	StatusUnreachable  = "unreachable"
)

// Health is the result of a connector health probe.
type Health struct {
	// Status is one of the Status* constants.
	Status string `json:"status"`

	// Detail carries connector-specific fields: atom counts, model lists,
	// per-host results, the HTTP status code of the probe.
	Detail map[string]any `json:"detail,omitempty"`
}

// OK reports whether the status counts as non-degraded for aggregation.
func (h Health) OK() bool {
	switch h.Status {
	case StatusHealthy, StatusConnected, StatusDisabled:
		return true
	}
	return false
}

// healthy builds a Health with optional detail fields.
func healthy(detail map[string]any) Health {
	return Health{Status: StatusHealthy, Detail: detail}
}

// unhealthy builds an unhealthy Health carrying the probe error.
func unhealthy(err error) Health {
	return Health{Status: StatusUnhealthy, Detail: map[string]any{"error": err.Error()}}
}
