package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordingTracer returns a Tracer whose spans land in an in-memory
// recorder instead of an exporter.
func recordingTracer() (*Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return &Tracer{
		tracer:   provider.Tracer(instrumentationName),
		provider: provider,
		enabled:  true,
	}, recorder
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(context.Background(), Options{Enabled: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tracer.Enabled() {
		t.Error("Expected disabled tracer")
	}

	ctx, span := tracer.Start(context.Background(), "dispatch")
	defer span.End()

	if span.SpanContext().IsValid() {
		t.Error("Expected noop span with invalid span context")
	}
	if id := TraceID(ctx); id != "" {
		t.Errorf("Expected empty trace id from noop span, got %q", id)
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Expected nil shutdown error, got %v", err)
	}
}

func TestNoop(t *testing.T) {
	tracer := Noop()
	if tracer.Enabled() {
		t.Error("Expected noop tracer to report disabled")
	}

	_, span := tracer.Start(context.Background(), "anything")
	span.End()
}

// ============================================================================
// Span recording
// ============================================================================

func TestTracer_StartRecordsSpan(t *testing.T) {
	tracer, recorder := recordingTracer()

	ctx, span := tracer.Start(context.Background(), "dispatch")
	if !span.SpanContext().IsValid() {
		t.Fatal("Expected valid span context")
	}
	if id := TraceID(ctx); id != span.SpanContext().TraceID().String() {
		t.Errorf("Expected TraceID helper to match span, got %q", id)
	}
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("Expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Name() != "dispatch" {
		t.Errorf("Expected span name %q, got %q", "dispatch", ended[0].Name())
	}
}

func TestTracer_NestedSpansShareTrace(t *testing.T) {
	tracer, _ := recordingTracer()

	ctx, parent := tracer.Start(context.Background(), "dispatch")
	_, child := tracer.Start(ctx, "provider_call")

	if parent.SpanContext().TraceID() != child.SpanContext().TraceID() {
		t.Error("Expected child span to share the parent's trace id")
	}
	if parent.SpanContext().SpanID() == child.SpanContext().SpanID() {
		t.Error("Expected child span to have its own span id")
	}

	child.End()
	parent.End()
}

// ============================================================================
// Attribute helpers
// ============================================================================

func TestDispatchAttributes(t *testing.T) {
	attrs := DispatchAttributes("diagnose", "telegram", "tg-448291")

	want := map[string]string{
		AttrIntent:  "diagnose",
		AttrChannel: "telegram",
		AttrUser:    "tg-448291",
	}
	if len(attrs) != len(want) {
		t.Fatalf("Expected %d attributes, got %d", len(want), len(attrs))
	}
	for _, kv := range attrs {
		if want[string(kv.Key)] != kv.Value.AsString() {
			t.Errorf("Expected %s=%q, got %q", kv.Key, want[string(kv.Key)], kv.Value.AsString())
		}
	}
}

func TestSetResponseAttributes(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.Start(context.Background(), "provider_call")
	SetProviderAttributes(span, "groq", "llama-3.3-70b")
	SetResponseAttributes(span, "llama-3.3-70b", 1500)
	span.End()

	attrs := recorder.Ended()[0].Attributes()
	found := map[string]bool{}
	for _, kv := range attrs {
		switch string(kv.Key) {
		case AttrProvider:
			found["provider"] = kv.Value.AsString() == "groq"
		case AttrModel:
			found["model"] = kv.Value.AsString() == "llama-3.3-70b"
		case AttrTokens:
			found["tokens"] = kv.Value.AsInt64() == 1500
		}
	}
	for _, key := range []string{"provider", "model", "tokens"} {
		if !found[key] {
			t.Errorf("Expected %s attribute recorded correctly", key)
		}
	}
}

func TestSetError(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.Start(context.Background(), "dispatch")
	SetError(span, errors.New("providers exhausted"))
	span.End()

	ended := recorder.Ended()[0]
	if ended.Status().Code != codes.Error {
		t.Errorf("Expected error status, got %v", ended.Status().Code)
	}
	if len(ended.Events()) == 0 {
		t.Error("Expected a recorded error event")
	}
}

func TestSetError_NilIsNoop(t *testing.T) {
	tracer, recorder := recordingTracer()

	_, span := tracer.Start(context.Background(), "dispatch")
	SetError(span, nil)
	SetOK(span)
	span.End()

	ended := recorder.Ended()[0]
	if ended.Status().Code != codes.Ok {
		t.Errorf("Expected ok status, got %v", ended.Status().Code)
	}
	if len(ended.Events()) != 0 {
		t.Errorf("Expected no events for nil error, got %d", len(ended.Events()))
	}
}
