package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials/insecure"
)

// instrumentationName identifies spans produced by this module.
const instrumentationName = "mercator-hq/foreman"

// DefaultEndpoint is the OTLP gRPC collector address used when none is
// configured.
const DefaultEndpoint = "localhost:4317"

// Options configures span export.
type Options struct {
	// Enabled turns export on. Disabled yields a noop tracer with
	// near-zero per-span cost.
	Enabled bool

	// Endpoint is the OTLP gRPC collector address (host:port). Empty uses
	// DefaultEndpoint.
	Endpoint string

	// Insecure disables TLS on the collector connection.
	Insecure bool

	// SampleRatio is the fraction of new traces kept, in (0, 1]. Values
	// outside that range mean keep everything. Parent decisions always win.
	SampleRatio float64

	// ServiceName overrides the "foreman" resource name.
	ServiceName string

	// Version is stamped on the service resource.
	Version string
}

// Tracer wraps the OpenTelemetry tracer behind a small surface: Start,
// Shutdown, and the attribute helpers in this package.
type Tracer struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	enabled  bool
}

// New builds a tracer. When enabled it installs the provider and the W3C
// trace-context propagator globally and connects an OTLP gRPC exporter.
//
// The tracer must be shut down before exit to flush batched spans:
//
//	defer tracer.Shutdown(context.Background())
func New(ctx context.Context, opts Options) (*Tracer, error) {
	if !opts.Enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}, nil
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "foreman"
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1.0
	}

	grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if opts.Insecure {
		grpcOpts = append(grpcOpts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(grpcOpts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return &Tracer{
		tracer:   provider.Tracer(instrumentationName),
		provider: provider,
		enabled:  true,
	}, nil
}

// Noop returns a tracer that records nothing. Useful as the zero
// dependency for components that take a *Tracer.
func Noop() *Tracer {
	return &Tracer{tracer: noop.NewTracerProvider().Tracer(instrumentationName)}
}

// Start creates a span. The caller must end it:
//
//	ctx, span := tracer.Start(ctx, "dispatch")
//	defer span.End()
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes pending spans. A noop tracer shuts down instantly.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if !t.enabled || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Enabled reports whether spans are exported.
func (t *Tracer) Enabled() bool {
	return t.enabled
}

// SpanFromContext returns the current span, or a noop span when none exists.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// TraceID returns the hex trace id on the context, or "" outside a trace.
func TraceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
