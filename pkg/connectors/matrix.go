package connectors

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// DefaultMatrixTimeout bounds every matrix API call.
const DefaultMatrixTimeout = 10 * time.Second

// Matrix talks to the telemetry matrix HTTP API: latest tag snapshots, open
// incidents, and insight post-back.
type Matrix struct {
	url string

	mu     sync.Mutex
	client *httpJSON
}

// NewMatrix creates a matrix connector for the given base URL.
func NewMatrix(rawURL string) *Matrix {
	return &Matrix{url: rawURL}
}

// Name returns "matrix".
func (m *Matrix) Name() string {
	return "matrix"
}

// Connect establishes the HTTP client.
func (m *Matrix) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.client = newHTTPJSON(m.url, DefaultMatrixTimeout)
	return nil
}

// Disconnect releases the HTTP client.
func (m *Matrix) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		m.client.close()
		m.client = nil
	}
	return nil
}

func (m *Matrix) ensure() *httpJSON {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		m.client = newHTTPJSON(m.url, DefaultMatrixTimeout)
	}
	return m.client
}

// GetLatestTags returns recent tag snapshots, newest first. nodeID narrows
// the query to one node when non-empty; limit defaults to 1.
func (m *Matrix) GetLatestTags(ctx context.Context, nodeID string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 1
	}
	query := url.Values{"limit": {strconv.Itoa(limit)}}
	if nodeID != "" {
		query.Set("node_id", nodeID)
	}

	var tags []map[string]any
	if _, err := m.ensure().getJSON(ctx, "/api/tags", query, &tags); err != nil {
		return nil, err
	}
	return tags, nil
}

// GetIncidents returns incidents filtered by status. status defaults to
// "open" and limit to 20.
func (m *Matrix) GetIncidents(ctx context.Context, status string, limit int) ([]map[string]any, error) {
	if status == "" {
		status = "open"
	}
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{
		"status": {status},
		"limit":  {strconv.Itoa(limit)},
	}

	var incidents []map[string]any
	if _, err := m.ensure().getJSON(ctx, "/api/incidents", query, &incidents); err != nil {
		return nil, err
	}
	return incidents, nil
}

// PostInsight publishes a diagnostic insight back to the matrix.
func (m *Matrix) PostInsight(ctx context.Context, insight map[string]any) (map[string]any, error) {
	var reply map[string]any
	if _, err := m.ensure().postJSON(ctx, "/api/insights", insight, &reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// HealthCheck probes GET /api/health. Any HTTP response counts as healthy;
// only a transport failure is unhealthy.
func (m *Matrix) HealthCheck(ctx context.Context) Health {
	code, err := m.ensure().getJSON(ctx, "/api/health", nil, nil)
	if err != nil && code == 0 {
		return unhealthy(err)
	}
	return healthy(map[string]any{"code": code})
}
