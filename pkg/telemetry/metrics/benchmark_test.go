package metrics

import (
	"testing"
	"time"
)

// BenchmarkCollector_RecordRequest benchmarks the full record path.
func BenchmarkCollector_RecordRequest(b *testing.B) {
	c := NewCollector(nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.RecordRequest("diagnose", "llama-3.3-70b", 800*time.Millisecond)
	}
}

// BenchmarkCollector_RecordRequest_Parallel benchmarks contended recording.
func BenchmarkCollector_RecordRequest_Parallel(b *testing.B) {
	c := NewCollector(nil)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.RecordRequest("chat", "gpt-4o-mini", 400*time.Millisecond)
		}
	})
}

// BenchmarkCollector_Summary benchmarks snapshotting with a full latency
// window.
func BenchmarkCollector_Summary(b *testing.B) {
	c := NewCollector(nil)
	for i := 0; i < maxLatencySamples; i++ {
		c.RecordRequest("status", "", 50*time.Millisecond)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Summary()
	}
}
