// Package tracing wraps OpenTelemetry for the gateway.
//
// Spans cover the two operations worth watching: the dispatch of one
// inbound message (intent, channel, user, skill) and each provider call
// beneath it (provider, model, tokens). Export goes to an OTLP gRPC
// collector; W3C trace context arriving on HTTP requests is honored, so
// gateway spans join the caller's trace.
//
//	tracer, err := tracing.New(ctx, tracing.Options{
//	    Enabled:  true,
//	    Endpoint: "otel-collector:4317",
//	    Insecure: true,
//	})
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "dispatch",
//	    trace.WithAttributes(tracing.DispatchAttributes("diagnose", "telegram", "tg-448291")...))
//	defer span.End()
//
// Disabled tracing yields a noop tracer, so call sites never branch.
package tracing
