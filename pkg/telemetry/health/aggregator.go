// Package health aggregates connector health probes into the single status
// served on GET /health. The provider circuit registry lives elsewhere; this
// package only answers "is the gateway's supporting infrastructure up".
package health

import (
	"context"
	"sync"
	"time"

	"mercator-hq/foreman/pkg/connectors"
)

// DefaultProbeTimeout bounds one connector probe during aggregation.
const DefaultProbeTimeout = 5 * time.Second

// Report is the aggregate health served on GET /health.
type Report struct {
	// Status is "healthy" when every connector reports a non-degraded
	// status, otherwise "degraded". The gateway itself answering makes it
	// never "down".
	Status string `json:"status"`

	// Connectors maps connector name to its probe result.
	Connectors map[string]connectors.Health `json:"connectors"`

	// Timestamp is when the aggregation ran.
	Timestamp time.Time `json:"timestamp"`
}

// Aggregator fans a health probe out to every registered connector.
type Aggregator struct {
	connectors []connectors.Connector
	timeout    time.Duration
}

// NewAggregator creates an aggregator over the given connectors. A zero
// timeout uses DefaultProbeTimeout.
func NewAggregator(conns []connectors.Connector, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Aggregator{connectors: conns, timeout: timeout}
}

// Check probes every connector concurrently and aggregates the results.
// Each probe gets its own timeout so one hung connector cannot stall the
// health endpoint for longer than that.
func (a *Aggregator) Check(ctx context.Context) Report {
	report := Report{
		Status:     "healthy",
		Connectors: make(map[string]connectors.Health, len(a.connectors)),
		Timestamp:  time.Now().UTC(),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, conn := range a.connectors {
		wg.Add(1)
		go func(c connectors.Connector) {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			h := c.HealthCheck(probeCtx)

			mu.Lock()
			report.Connectors[c.Name()] = h
			if !h.OK() {
				report.Status = "degraded"
			}
			mu.Unlock()
		}(conn)
	}
	wg.Wait()

	return report
}
