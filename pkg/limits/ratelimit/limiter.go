package ratelimit

import (
	"sync"
	"time"
)

// DefaultMaxPerHour is the per-user request ceiling when none is configured.
const DefaultMaxPerHour = 60

// window is the sliding window duration.
const window = time.Hour

// Limiter is a per-user sliding window rate limiter.
type Limiter struct {
	mu      sync.Mutex
	max     int
	windows map[string][]time.Time

	// now is swappable in tests
	now func() time.Time
}

// NewLimiter creates a limiter allowing maxPerHour requests per user per
// hour. Non-positive values fall back to DefaultMaxPerHour.
func NewLimiter(maxPerHour int) *Limiter {
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}
	return &Limiter{
		max:     maxPerHour,
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Check prunes the user's expired entries, then either records this request
// and allows it, or rejects it. On rejection, retryAfter reports the seconds
// until the oldest surviving entry leaves the window.
func (l *Limiter) Check(userID string) (allowed bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-window)

	kept := l.windows[userID][:0]
	for _, ts := range l.windows[userID] {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.windows[userID] = kept
		oldest := kept[0]
		for _, ts := range kept[1:] {
			if ts.Before(oldest) {
				oldest = ts
			}
		}
		return false, int(oldest.Add(window).Sub(now).Seconds())
	}

	l.windows[userID] = append(kept, now)
	return true, 0
}
