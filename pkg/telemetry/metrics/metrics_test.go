package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Summary counters
// ============================================================================

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest("diagnose", "llama-3.3-70b", 800*time.Millisecond)
	c.RecordRequest("diagnose", "llama-3.3-70b", 1200*time.Millisecond)
	c.RecordRequest("chat", "gpt-4o-mini", 400*time.Millisecond)

	s := c.Summary()
	if s.TotalRequests != 3 {
		t.Errorf("Expected 3 total requests, got %d", s.TotalRequests)
	}
	if s.Intents["diagnose"] != 2 {
		t.Errorf("Expected 2 diagnose requests, got %d", s.Intents["diagnose"])
	}
	if s.Intents["chat"] != 1 {
		t.Errorf("Expected 1 chat request, got %d", s.Intents["chat"])
	}
	if s.Providers["llama-3.3-70b"] != 2 {
		t.Errorf("Expected 2 llama requests, got %d", s.Providers["llama-3.3-70b"])
	}
	if s.AvgLatencyMS != 800 {
		t.Errorf("Expected avg latency 800ms, got %d", s.AvgLatencyMS)
	}
}

func TestCollector_EmptyProviderNotCounted(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest("admin", "", 0)

	s := c.Summary()
	if s.TotalRequests != 1 {
		t.Errorf("Expected 1 total request, got %d", s.TotalRequests)
	}
	if len(s.Providers) != 0 {
		t.Errorf("Expected no provider counts, got %v", s.Providers)
	}
	if s.AvgLatencyMS != 0 {
		t.Errorf("Expected avg latency 0 with no samples, got %d", s.AvgLatencyMS)
	}
}

func TestCollector_LatencyWindowTrims(t *testing.T) {
	c := NewCollector(nil)

	// Overflow the window: the first 501 samples get trimmed away, the
	// last 500 survive.
	for i := 0; i < 501; i++ {
		c.RecordRequest("chat", "", 10*time.Millisecond)
	}
	for i := 0; i < 500; i++ {
		c.RecordRequest("chat", "", 20*time.Millisecond)
	}

	c.mu.Lock()
	kept := len(c.latencies)
	c.mu.Unlock()
	if kept != keepLatencySamples {
		t.Errorf("Expected %d samples after trim, got %d", keepLatencySamples, kept)
	}

	s := c.Summary()
	if s.AvgLatencyMS != 20 {
		t.Errorf("Expected avg latency 20ms over surviving samples, got %d", s.AvgLatencyMS)
	}
}

func TestCollector_SummaryIsSnapshot(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("chat", "gpt-4o-mini", 0)

	s := c.Summary()
	s.Intents["chat"] = 99
	s.Providers["gpt-4o-mini"] = 99

	again := c.Summary()
	if again.Intents["chat"] != 1 {
		t.Errorf("Expected snapshot isolation for intents, got %d", again.Intents["chat"])
	}
	if again.Providers["gpt-4o-mini"] != 1 {
		t.Errorf("Expected snapshot isolation for providers, got %d", again.Providers["gpt-4o-mini"])
	}
}

func TestSummary_JSONKeys(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("status", "llama-3.3-70b", 50*time.Millisecond)

	body, err := json.Marshal(c.Summary())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	for _, key := range []string{
		`"uptime_seconds"`, `"total_requests"`, `"intents"`, `"providers"`, `"avg_latency_ms"`,
	} {
		if !strings.Contains(string(body), key) {
			t.Errorf("Expected summary JSON to contain %s, got %s", key, body)
		}
	}
}

// ============================================================================
// Prometheus vectors
// ============================================================================

func TestCollector_PrometheusCounters(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRequest("diagnose", "llama-3.3-70b", 800*time.Millisecond)
	c.RecordRequest("diagnose", "", 0)

	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("diagnose")); got != 2 {
		t.Errorf("Expected requests_total 2, got %f", got)
	}
	if got := testutil.ToFloat64(c.providerRequests.WithLabelValues("llama-3.3-70b")); got != 1 {
		t.Errorf("Expected provider_requests_total 1, got %f", got)
	}
}

func TestCollector_RecordTokens(t *testing.T) {
	c := NewCollector(nil)

	c.RecordTokens("groq", 1500)
	c.RecordTokens("groq", 0)

	if got := testutil.ToFloat64(c.providerTokens.WithLabelValues("groq")); got != 1500 {
		t.Errorf("Expected 1500 tokens, got %f", got)
	}
}

func TestCollector_RecordProviderFailure(t *testing.T) {
	c := NewCollector(nil)

	c.RecordProviderFailure("openai", "timeout")
	c.RecordProviderFailure("openai", "timeout")
	c.RecordProviderFailure("openai", "auth")

	if got := testutil.ToFloat64(c.providerFailures.WithLabelValues("openai", "timeout")); got != 2 {
		t.Errorf("Expected 2 timeout failures, got %f", got)
	}
	if got := testutil.ToFloat64(c.providerFailures.WithLabelValues("openai", "auth")); got != 1 {
		t.Errorf("Expected 1 auth failure, got %f", got)
	}
}

func TestCollector_RecordCircuitTransition(t *testing.T) {
	c := NewCollector(nil)

	c.RecordCircuitTransition("groq", "open")

	if got := testutil.ToFloat64(c.circuitTransitions.WithLabelValues("groq", "open")); got != 1 {
		t.Errorf("Expected 1 open transition, got %f", got)
	}
}

func TestCollector_RecordRateLimitRejection(t *testing.T) {
	c := NewCollector(nil)

	c.RecordRateLimitRejection("telegram")

	if got := testutil.ToFloat64(c.rateLimitRejects.WithLabelValues("telegram")); got != 1 {
		t.Errorf("Expected 1 rejection, got %f", got)
	}
}

func TestCollector_SetConnectorHealth(t *testing.T) {
	c := NewCollector(nil)

	c.SetConnectorHealth("matrix", true)
	if got := testutil.ToFloat64(c.connectorHealth.WithLabelValues("matrix")); got != 1.0 {
		t.Errorf("Expected health 1.0, got %f", got)
	}

	c.SetConnectorHealth("matrix", false)
	if got := testutil.ToFloat64(c.connectorHealth.WithLabelValues("matrix")); got != 0.0 {
		t.Errorf("Expected health 0.0, got %f", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.RecordRequest("chat", "gpt-4o-mini", 100*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))

	if rec.Code != 200 {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "foreman_requests_total") {
		t.Errorf("Expected exposition to contain foreman_requests_total, got:\n%s", body)
	}
}

// ============================================================================
// Concurrency
// ============================================================================

func TestCollector_ConcurrentRecording(t *testing.T) {
	c := NewCollector(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordRequest("chat", "llama-3.3-70b", time.Millisecond)
				c.RecordTokens("groq", 10)
			}
		}()
	}
	wg.Wait()

	s := c.Summary()
	if s.TotalRequests != 1000 {
		t.Errorf("Expected 1000 total requests, got %d", s.TotalRequests)
	}
	if got := testutil.ToFloat64(c.requestsTotal.WithLabelValues("chat")); got != 1000 {
		t.Errorf("Expected 1000 in requests_total, got %f", got)
	}
}
