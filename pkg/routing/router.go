// Package routing selects an LLM provider for each request by intent and
// executes the completion, walking an ordered fallback chain when providers
// are skipped or fail.
package routing

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"mercator-hq/foreman/pkg/health"
	"mercator-hq/foreman/pkg/limits/budget"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
)

// Router routes completion requests to LLM providers.
//
// Selection for one request:
//  1. The preferred provider, when named, is tried before the route. Its
//     failure does not consume a slot in the fallback chain.
//  2. The route for the intent (or the global default) gives the ordered
//     candidate list [primary] + fallbacks.
//  3. Candidates are skipped, with a recorded reason, when they are not
//     configured, unavailable, over budget, or their circuit is open, and
//     when the request needs vision or JSON mode the provider lacks.
//  4. The first candidate to succeed wins: its tokens are recorded against
//     budget, its circuit is credited, and latency is stamped on the
//     response (measured across the provider call only).
//  5. An exhausted candidate list fails with *NoProviderAvailableError.
//
// Fallback order is authoritative; there is no randomization, weighting, or
// load balancing. Router is safe for concurrent use.
type Router struct {
	providers map[string]providers.Provider
	budget    *budget.Tracker
	health    *health.Registry
	routes    map[messages.Intent]Route
	stats     *Stats
}

// NewRouter creates a router over the given provider set. A nil tracker,
// registry, or route table is replaced with a fresh default.
func NewRouter(providerMap map[string]providers.Provider, tracker *budget.Tracker, registry *health.Registry, routes map[messages.Intent]Route) *Router {
	if providerMap == nil {
		providerMap = make(map[string]providers.Provider)
	}
	if tracker == nil {
		tracker = budget.NewTracker()
	}
	if registry == nil {
		registry = health.NewRegistry()
	}
	if routes == nil {
		routes = DefaultRoutes()
	}

	return &Router{
		providers: providerMap,
		budget:    tracker,
		health:    registry,
		routes:    routes,
		stats:     NewStats(),
	}
}

// Route selects a provider for the request and executes the completion,
// falling back down the intent's chain until a candidate succeeds.
func (r *Router) Route(ctx context.Context, req RouteRequest) (*providers.LLMResponse, error) {
	r.stats.recordRequest()

	var (
		attempted []string
		skipped   []SkippedProvider
		lastErr   error
		tried     = make(map[string]bool)
	)

	// try runs the full gate-and-call sequence for one candidate and
	// returns the response when it succeeds.
	try := func(name string) *providers.LLMResponse {
		tried[name] = true

		p, skipReason := r.eligible(name, &req)

		var done func(success bool)
		if skipReason == "" {
			var err error
			// Allow reserves the half-open trial slot, so it runs after
			// the cheap gates.
			done, err = r.health.Allow(name)
			if err != nil {
				skipReason = SkipCircuitOpen
			}
		}
		if skipReason != "" {
			switch skipReason {
			case SkipOverBudget:
				slog.Warn("provider over budget, skipping", "provider", name, "intent", req.Intent)
			case SkipCircuitOpen:
				slog.Warn("provider circuit open, skipping", "provider", name, "intent", req.Intent)
			}
			skipped = append(skipped, SkippedProvider{Provider: name, Reason: skipReason})
			r.stats.recordSkip(skipReason)
			return nil
		}

		fellBack := len(attempted)+len(skipped) > 0
		attempted = append(attempted, name)

		resp, err := r.call(ctx, p, &req)
		done(err == nil)
		if err != nil {
			lastErr = err
			slog.Warn("provider failed, trying fallback",
				"provider", name,
				"intent", req.Intent,
				"error", err,
			)
			return nil
		}

		r.budget.Record(name, resp.TokensUsed)
		r.stats.recordSuccess(name, fellBack)
		return resp
	}

	if req.Prefer != "" {
		if resp := try(req.Prefer); resp != nil {
			return resp, nil
		}
	}

	for _, name := range r.candidates(req.Intent) {
		if tried[name] {
			continue
		}
		if resp := try(name); resp != nil {
			return resp, nil
		}
	}

	r.stats.recordExhausted()
	return nil, &NoProviderAvailableError{
		Intent:    req.Intent,
		Attempted: attempted,
		Skipped:   skipped,
		LastError: lastErr,
	}
}

// eligible checks the gates that do not touch circuit state, returning the
// provider and an empty reason when the candidate may be called.
func (r *Router) eligible(name string, req *RouteRequest) (providers.Provider, string) {
	p, ok := r.providers[name]
	if !ok || p == nil {
		return nil, SkipNotConfigured
	}
	if !p.IsAvailable() {
		return nil, SkipUnavailable
	}
	if !r.budget.IsWithinBudget(name) {
		return nil, SkipOverBudget
	}
	if len(req.Images) > 0 && !p.SupportsVision() {
		return nil, SkipVisionUnsupported
	}
	if req.JSONMode && !p.SupportsJSONMode() {
		return nil, SkipJSONModeUnsupported
	}
	return p, ""
}

// call executes one provider request, taking the vision path when images
// are present, and stamps latency across the provider call only.
func (r *Router) call(ctx context.Context, p providers.Provider, req *RouteRequest) (*providers.LLMResponse, error) {
	start := time.Now()

	var (
		resp *providers.LLMResponse
		err  error
	)
	if len(req.Images) > 0 {
		resp, err = p.CompleteWithVision(ctx, &providers.VisionRequest{
			Messages:     req.Messages,
			Images:       req.Images,
			SystemPrompt: req.SystemPrompt,
			MaxTokens:    req.MaxTokens,
		})
	} else {
		resp, err = p.Complete(ctx, &providers.CompletionRequest{
			Messages:     req.Messages,
			SystemPrompt: req.SystemPrompt,
			MaxTokens:    req.MaxTokens,
			Temperature:  req.Temperature,
			JSONMode:     req.JSONMode,
		})
	}
	if err != nil {
		return nil, err
	}

	resp.LatencyMS = time.Since(start).Milliseconds()

	slog.Info("llm response",
		"provider", resp.Provider,
		"model", resp.Model,
		"tokens", resp.TokensUsed,
		"latency_ms", resp.LatencyMS,
	)
	return resp, nil
}

// candidates returns the ordered candidate list for an intent: the route's
// primary followed by its fallbacks.
func (r *Router) candidates(intent messages.Intent) []string {
	route, ok := r.routes[intent]
	if !ok {
		route = globalDefault
	}

	out := make([]string, 0, len(route.Fallbacks)+1)
	out = append(out, route.Primary)
	out = append(out, route.Fallbacks...)
	return out
}

// Provider returns the named provider, or nil when it is not configured.
func (r *Router) Provider(name string) providers.Provider {
	return r.providers[name]
}

// ProviderNames returns the configured provider names in sorted order.
func (r *Router) ProviderNames() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Budget returns the budget tracker the router records usage against.
func (r *Router) Budget() *budget.Tracker {
	return r.budget
}

// Health returns the circuit registry the router consults.
func (r *Router) Health() *health.Registry {
	return r.health
}

// Stats returns a snapshot of routing activity.
func (r *Router) Stats() *StatsSnapshot {
	return r.stats.Snapshot()
}

// Close closes every configured provider, returning the first error.
func (r *Router) Close() error {
	var firstErr error
	for name, p := range r.providers {
		if p == nil {
			continue
		}
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		slog.Debug("provider closed", "provider", name)
	}
	return firstErr
}
