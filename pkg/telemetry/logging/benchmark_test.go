package logging

import (
	"io"
	"testing"
)

// BenchmarkRedactString measures pattern redaction on a typical log value.
func BenchmarkRedactString(b *testing.B) {
	r := NewRedactor()
	value := "provider groq rejected key gsk_Zx9yW8vU7tS6rQ5pO4nM after 3 retries"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.RedactString(value)
	}
}

// BenchmarkRedactString_Clean measures the no-match path, which is what most
// log lines hit.
func BenchmarkRedactString_Clean(b *testing.B) {
	r := NewRedactor()
	value := "dispatched intent diagnose for user tg-448291 in 812ms"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.RedactString(value)
	}
}

// BenchmarkHandler_Info measures a full log call through the redacting
// handler into a JSON handler.
func BenchmarkHandler_Info(b *testing.B) {
	logger, err := New(Options{Format: "json", Writer: io.Discard})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		logger.Info("message handled", "intent", "diagnose", "latency_ms", i)
	}
}

// BenchmarkHandler_DisabledLevel measures the early-out when the level is
// filtered.
func BenchmarkHandler_DisabledLevel(b *testing.B) {
	logger, err := New(Options{Level: "info", Format: "json", Writer: io.Discard})
	if err != nil {
		b.Fatalf("New: %v", err)
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		logger.Debug("quiet", "count", i)
	}
}
