package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the gateway exports.
const Namespace = "foreman"

// Latency window bounds for the in-process summary. When the window
// overflows it is trimmed to the most recent half, so the average tracks
// recent traffic instead of process history.
const (
	maxLatencySamples  = 1000
	keepLatencySamples = 500
)

// Summary is the JSON body served on GET /metrics.
type Summary struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	TotalRequests int64            `json:"total_requests"`
	Intents       map[string]int64 `json:"intents"`
	Providers     map[string]int64 `json:"providers"`
	AvgLatencyMS  int64            `json:"avg_latency_ms"`
}

// Collector tracks gateway traffic two ways at once: an in-process summary
// served as JSON on /metrics, and Prometheus vectors scraped from
// /metrics/prometheus. All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry
	start    time.Time

	mu        sync.Mutex
	total     int64
	intents   map[string]int64
	providers map[string]int64
	latencies []int64

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	providerRequests   *prometheus.CounterVec
	providerTokens     *prometheus.CounterVec
	providerFailures   *prometheus.CounterVec
	circuitTransitions *prometheus.CounterVec
	rateLimitRejects   *prometheus.CounterVec
	connectorHealth    *prometheus.GaugeVec
}

// NewCollector creates a collector and registers its vectors with the given
// registry. A nil registry gets a fresh private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry:  registry,
		start:     time.Now(),
		intents:   make(map[string]int64),
		providers: make(map[string]int64),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "requests_total",
				Help:      "Total dispatched requests by intent",
			},
			[]string{"intent"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "request_duration_seconds",
				Help:      "End-to-end dispatch duration in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"intent"},
		),

		providerRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_requests_total",
				Help:      "Requests answered by each model",
			},
			[]string{"provider"},
		),

		providerTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_tokens_total",
				Help:      "Total tokens consumed per provider",
			},
			[]string{"provider"},
		),

		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "provider_failures_total",
				Help:      "Provider call failures by reason",
			},
			[]string{"provider", "reason"},
		),

		circuitTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "circuit_transitions_total",
				Help:      "Provider circuit breaker state changes",
			},
			[]string{"provider", "state"},
		),

		rateLimitRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "ratelimit_rejections_total",
				Help:      "Messages rejected by the per-user rate limit",
			},
			[]string{"channel"},
		),

		connectorHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "connector_health",
				Help:      "Connector health (1=healthy, 0=unhealthy)",
			},
			[]string{"connector"},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.providerRequests,
		c.providerTokens,
		c.providerFailures,
		c.circuitTransitions,
		c.rateLimitRejects,
		c.connectorHealth,
	)

	return c
}

// RecordRequest records one dispatched request. Provider is the model that
// answered; empty when no model was involved (Layer-0 answers, admin
// commands). Zero latency means the caller did not measure one.
func (c *Collector) RecordRequest(intent, provider string, latency time.Duration) {
	c.mu.Lock()
	c.total++
	c.intents[intent]++
	if provider != "" {
		c.providers[provider]++
	}
	if latency > 0 {
		c.latencies = append(c.latencies, latency.Milliseconds())
		if len(c.latencies) > maxLatencySamples {
			c.latencies = append(c.latencies[:0], c.latencies[len(c.latencies)-keepLatencySamples:]...)
		}
	}
	c.mu.Unlock()

	c.requestsTotal.WithLabelValues(intent).Inc()
	if provider != "" {
		c.providerRequests.WithLabelValues(provider).Inc()
	}
	if latency > 0 {
		c.requestDuration.WithLabelValues(intent).Observe(latency.Seconds())
	}
}

// RecordTokens adds to a provider's token counter.
func (c *Collector) RecordTokens(provider string, tokens int) {
	if tokens > 0 {
		c.providerTokens.WithLabelValues(provider).Add(float64(tokens))
	}
}

// RecordProviderFailure counts one failed provider call.
func (c *Collector) RecordProviderFailure(provider, reason string) {
	c.providerFailures.WithLabelValues(provider, reason).Inc()
}

// RecordCircuitTransition counts a circuit breaker entering a state.
func (c *Collector) RecordCircuitTransition(provider, state string) {
	c.circuitTransitions.WithLabelValues(provider, state).Inc()
}

// RecordRateLimitRejection counts a message refused by the rate limiter.
func (c *Collector) RecordRateLimitRejection(channel string) {
	c.rateLimitRejects.WithLabelValues(channel).Inc()
}

// SetConnectorHealth updates a connector's health gauge.
func (c *Collector) SetConnectorHealth(connector string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	c.connectorHealth.WithLabelValues(connector).Set(value)
}

// Summary snapshots the in-process counters.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	intents := make(map[string]int64, len(c.intents))
	for k, v := range c.intents {
		intents[k] = v
	}
	providers := make(map[string]int64, len(c.providers))
	for k, v := range c.providers {
		providers[k] = v
	}

	var avg int64
	if len(c.latencies) > 0 {
		var sum int64
		for _, ms := range c.latencies {
			sum += ms
		}
		avg = sum / int64(len(c.latencies))
	}

	return Summary{
		UptimeSeconds: int64(time.Since(c.start).Seconds()),
		TotalRequests: c.total,
		Intents:       intents,
		Providers:     providers,
		AvgLatencyMS:  avg,
	}
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
