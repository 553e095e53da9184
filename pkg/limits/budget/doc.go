// Package budget provides per-provider daily request and token budgets.
//
// # Overview
//
// Each LLM provider can be configured with a daily request limit and a daily
// token limit. Counters are process-local and in-memory; they reset lazily at
// the local-calendar midnight boundary, on the first read or write of the new
// day. A zero limit means unlimited.
//
// # Usage
//
//	tracker := budget.NewTracker()
//	tracker.Configure("groq", 14000, 0)
//
//	if tracker.IsWithinBudget("groq") {
//	    // call the provider, then on success:
//	    tracker.Record("groq", resp.TokensUsed)
//	}
//
// Record is called only after a successful provider call, so failed attempts
// never consume budget.
//
// # Thread Safety
//
// All operations are safe for concurrent use.
package budget
