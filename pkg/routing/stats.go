package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats tracks router activity with atomic counters. All methods are safe
// for concurrent use.
type Stats struct {
	// totalRequests is the number of Route calls processed
	totalRequests atomic.Int64

	// exhausted is the number of requests that ran out of candidates
	exhausted atomic.Int64

	// fallbacks is the number of requests served by a candidate other than
	// the first one considered
	fallbacks atomic.Int64

	// successPerProvider counts successful completions per provider
	// Uses sync.Map for lock-free concurrent access
	successPerProvider sync.Map // map[string]*atomic.Int64

	// skipsPerReason counts skipped candidates per skip reason
	skipsPerReason sync.Map // map[string]*atomic.Int64

	// lastResetTime is when statistics were last reset
	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewStats creates a new routing statistics tracker.
func NewStats() *Stats {
	return &Stats{
		lastResetTime: time.Now(),
	}
}

// recordRequest increments the total request counter.
func (s *Stats) recordRequest() {
	s.totalRequests.Add(1)
}

// recordSuccess counts a successful completion for a provider. fellBack is
// true when the provider was not the first candidate considered.
func (s *Stats) recordSuccess(provider string, fellBack bool) {
	val, _ := s.successPerProvider.LoadOrStore(provider, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
	if fellBack {
		s.fallbacks.Add(1)
	}
}

// recordSkip counts a skipped candidate by reason.
func (s *Stats) recordSkip(reason string) {
	val, _ := s.skipsPerReason.LoadOrStore(reason, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// recordExhausted increments the exhausted-candidates counter.
func (s *Stats) recordExhausted() {
	s.exhausted.Add(1)
}

// StatsSnapshot is a point-in-time copy of router statistics, safe to read
// without locks.
type StatsSnapshot struct {
	TotalRequests      int64            `json:"total_requests"`
	Exhausted          int64            `json:"exhausted"`
	Fallbacks          int64            `json:"fallbacks"`
	SuccessPerProvider map[string]int64 `json:"success_per_provider"`
	SkipsPerReason     map[string]int64 `json:"skips_per_reason"`
	LastResetTime      time.Time        `json:"last_reset_time"`
}

// Snapshot returns a point-in-time snapshot of the statistics.
func (s *Stats) Snapshot() *StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perProvider := make(map[string]int64)
	s.successPerProvider.Range(func(key, value interface{}) bool {
		perProvider[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	perReason := make(map[string]int64)
	s.skipsPerReason.Range(func(key, value interface{}) bool {
		perReason[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &StatsSnapshot{
		TotalRequests:      s.totalRequests.Load(),
		Exhausted:          s.exhausted.Load(),
		Fallbacks:          s.fallbacks.Load(),
		SuccessPerProvider: perProvider,
		SkipsPerReason:     perReason,
		LastResetTime:      s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *Stats) Reset() {
	s.totalRequests.Store(0)
	s.exhausted.Store(0)
	s.fallbacks.Store(0)

	s.successPerProvider.Range(func(key, value interface{}) bool {
		s.successPerProvider.Delete(key)
		return true
	})
	s.skipsPerReason.Range(func(key, value interface{}) bool {
		s.skipsPerReason.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
