package budget

import (
	"log/slog"
	"sync"
	"time"
)

// providerBudget holds one provider's limits and day counters.
type providerBudget struct {
	dailyRequestLimit int
	dailyTokenLimit   int
	requestsToday     int
	tokensToday       int
	lastReset         time.Time // local midnight of the day the counters belong to
}

// Tracker tracks request and token budgets across all providers.
//
// Unconfigured providers are always within budget and recording against them
// is a no-op.
type Tracker struct {
	mu      sync.Mutex
	budgets map[string]*providerBudget

	// now is swappable in tests
	now func() time.Time
}

// NewTracker creates an empty budget tracker.
func NewTracker() *Tracker {
	return &Tracker{
		budgets: make(map[string]*providerBudget),
		now:     time.Now,
	}
}

// Configure sets the daily limits for a provider, replacing any previous
// configuration and counters. A zero limit means unlimited.
func (t *Tracker) Configure(provider string, dailyRequestLimit, dailyTokenLimit int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.budgets[provider] = &providerBudget{
		dailyRequestLimit: dailyRequestLimit,
		dailyTokenLimit:   dailyTokenLimit,
		lastReset:         midnight(t.now()),
	}
}

// IsWithinBudget reports whether the provider may serve another request.
// Unconfigured providers are always within budget.
func (t *Tracker) IsWithinBudget(provider string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.budgets[provider]
	if !ok {
		return true
	}
	t.maybeResetLocked(b)
	return withinLocked(b)
}

// Record counts one successful request and its token usage against the
// provider's budget. Recording against an unconfigured provider is a no-op.
func (t *Tracker) Record(provider string, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.budgets[provider]
	if !ok {
		return
	}
	t.maybeResetLocked(b)

	b.requestsToday++
	b.tokensToday += tokens

	if b.dailyRequestLimit > 0 {
		pct := b.requestsToday * 100 / b.dailyRequestLimit
		if pct >= 90 {
			slog.Warn("budget warning",
				"provider", provider,
				"percent_used", pct,
				"requests_today", b.requestsToday,
				"daily_request_limit", b.dailyRequestLimit,
			)
		}
	}
}

// ProviderSummary is one row of Summary.
type ProviderSummary struct {
	RequestsToday     int  `json:"requests_today"`
	TokensToday       int  `json:"tokens_today"`
	DailyRequestLimit int  `json:"daily_request_limit"`
	WithinBudget      bool `json:"within_budget"`
}

// Summary returns the current counters for every configured provider.
func (t *Tracker) Summary() map[string]ProviderSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderSummary, len(t.budgets))
	for name, b := range t.budgets {
		t.maybeResetLocked(b)
		out[name] = ProviderSummary{
			RequestsToday:     b.requestsToday,
			TokensToday:       b.tokensToday,
			DailyRequestLimit: b.dailyRequestLimit,
			WithinBudget:      withinLocked(b),
		}
	}
	return out
}

// maybeResetLocked zeroes the counters when the local calendar date has
// advanced past the day they belong to. Caller must hold t.mu.
func (t *Tracker) maybeResetLocked(b *providerBudget) {
	today := midnight(t.now())
	if today.After(b.lastReset) {
		b.requestsToday = 0
		b.tokensToday = 0
		b.lastReset = today
	}
}

func withinLocked(b *providerBudget) bool {
	if b.dailyRequestLimit > 0 && b.requestsToday >= b.dailyRequestLimit {
		return false
	}
	if b.dailyTokenLimit > 0 && b.tokensToday >= b.dailyTokenLimit {
		return false
	}
	return true
}

// midnight truncates a time to the start of its local calendar day.
func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
