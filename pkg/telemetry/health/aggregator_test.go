package health

import (
	"context"
	"testing"
	"time"

	"mercator-hq/foreman/pkg/connectors"
)

// stubConnector reports a fixed health status, optionally after a delay.
type stubConnector struct {
	name   string
	status string
	delay  time.Duration
}

func (s *stubConnector) Name() string                     { return s.name }
func (s *stubConnector) Connect(context.Context) error    { return nil }
func (s *stubConnector) Disconnect() error                { return nil }
func (s *stubConnector) HealthCheck(ctx context.Context) connectors.Health {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return connectors.Health{Status: connectors.StatusUnreachable}
		}
	}
	return connectors.Health{Status: s.status}
}

func TestAggregateAllHealthy(t *testing.T) {
	agg := NewAggregator([]connectors.Connector{
		&stubConnector{name: "matrix", status: connectors.StatusHealthy},
		&stubConnector{name: "cmms", status: connectors.StatusConnected},
		&stubConnector{name: "ollama", status: connectors.StatusDisabled},
	}, 0)

	report := agg.Check(context.Background())

	if report.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", report.Status)
	}
	if len(report.Connectors) != 3 {
		t.Errorf("Expected 3 connector entries, got %d", len(report.Connectors))
	}
	if report.Connectors["cmms"].Status != connectors.StatusConnected {
		t.Errorf("Expected cmms connected, got %s", report.Connectors["cmms"].Status)
	}
}

func TestAggregateOneUnhealthyDegrades(t *testing.T) {
	agg := NewAggregator([]connectors.Connector{
		&stubConnector{name: "matrix", status: connectors.StatusHealthy},
		&stubConnector{name: "plc", status: connectors.StatusUnreachable},
	}, 0)

	report := agg.Check(context.Background())

	if report.Status != "degraded" {
		t.Errorf("Expected degraded, got %s", report.Status)
	}
	if report.Connectors["plc"].Status != connectors.StatusUnreachable {
		t.Errorf("Expected plc unreachable, got %s", report.Connectors["plc"].Status)
	}
}

func TestAggregateNoConnectors(t *testing.T) {
	agg := NewAggregator(nil, 0)

	report := agg.Check(context.Background())
	if report.Status != "healthy" {
		t.Errorf("Expected healthy with no connectors, got %s", report.Status)
	}
	if len(report.Connectors) != 0 {
		t.Errorf("Expected no connector entries, got %d", len(report.Connectors))
	}
}

func TestAggregateSlowConnectorTimesOut(t *testing.T) {
	agg := NewAggregator([]connectors.Connector{
		&stubConnector{name: "fast", status: connectors.StatusHealthy},
		&stubConnector{name: "hung", status: connectors.StatusHealthy, delay: time.Second},
	}, 20*time.Millisecond)

	start := time.Now()
	report := agg.Check(context.Background())
	elapsed := time.Since(start)

	if elapsed > 500*time.Millisecond {
		t.Errorf("Expected aggregation bounded by probe timeout, took %v", elapsed)
	}
	if report.Status != "degraded" {
		t.Errorf("Expected degraded when a probe times out, got %s", report.Status)
	}
	if report.Connectors["hung"].Status != connectors.StatusUnreachable {
		t.Errorf("Expected hung connector unreachable, got %s", report.Connectors["hung"].Status)
	}
}
