// Package telemetry groups the gateway's observability packages.
//
// # Components
//
//   - logging: slog setup with credential redaction and component loggers
//   - metrics: Prometheus vectors plus the in-process summary behind /metrics
//   - tracing: OpenTelemetry span export over OTLP gRPC
//   - health: concurrent connector health aggregation behind /health
//
// Each subpackage stands alone; there is no shared telemetry object. The run
// command wires them individually:
//
//	logger, err := logging.Setup(logging.Options{Level: "info"})
//	collector := metrics.NewCollector(nil)
//	tracer, err := tracing.New(ctx, tracing.Options{Enabled: true})
//	aggregator := health.NewAggregator(conns, 0)
package telemetry
