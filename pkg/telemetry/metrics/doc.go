// Package metrics counts gateway traffic.
//
// One Collector feeds two surfaces. The in-process summary (total requests,
// per-intent and per-model counts, rolling average latency, uptime) is
// cheap enough to serve as JSON straight off GET /metrics. The Prometheus
// vectors (request counts and durations, provider tokens and failures,
// circuit transitions, rate-limit rejections, connector health) are scraped
// from /metrics/prometheus for dashboards and alerting.
//
//	collector := metrics.NewCollector(nil)
//	collector.RecordRequest("diagnose", "llama-3.3-70b", 812*time.Millisecond)
//
//	mux.Handle("/metrics/prometheus", collector.Handler())
package metrics
