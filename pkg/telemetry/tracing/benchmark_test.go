package tracing

import (
	"context"
	"net/http"
	"testing"
)

func BenchmarkStart_Noop(b *testing.B) {
	tracer := Noop()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, span := tracer.Start(ctx, "dispatch")
		span.End()
	}
}

func BenchmarkStart_Recording(b *testing.B) {
	tracer, _ := recordingTracer()
	ctx := context.Background()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, span := tracer.Start(ctx, "dispatch")
		span.End()
	}
}

func BenchmarkInject(b *testing.B) {
	tracer, _ := recordingTracer()
	ctx, span := tracer.Start(context.Background(), "dispatch")
	defer span.End()
	headers := http.Header{}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		Inject(ctx, headers)
	}
}
