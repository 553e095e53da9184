package routing

import (
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
)

// Route pairs a primary provider with an ordered fallback chain. The order
// is authoritative: candidates are tried exactly as listed.
type Route struct {
	// Primary is the provider tried first for this intent
	Primary string `yaml:"primary"`

	// Fallbacks are tried in order when the primary is skipped or fails
	Fallbacks []string `yaml:"fallbacks"`
}

// DefaultRoutes returns the built-in intent routing table. Intents absent
// from the table use the global default route.
func DefaultRoutes() map[messages.Intent]Route {
	return map[messages.Intent]Route{
		messages.IntentDiagnose:  {Primary: "openrouter", Fallbacks: []string{"groq", "nvidia", "openai"}},
		messages.IntentStatus:    {Primary: "groq", Fallbacks: []string{"openai"}},
		messages.IntentPhoto:     {Primary: "gemini", Fallbacks: []string{"openai", "openrouter"}},
		messages.IntentWorkOrder: {Primary: "openrouter", Fallbacks: []string{"anthropic", "openai", "groq"}},
		messages.IntentChat:      {Primary: "groq", Fallbacks: []string{"openrouter", "openai"}},
		messages.IntentSearch:    {Primary: "groq"},
		messages.IntentAdmin:     {Primary: "groq"},
		messages.IntentHelp:      {Primary: "groq"},
		messages.IntentUnknown:   {Primary: "groq", Fallbacks: []string{"openrouter", "openai"}},
	}
}

// globalDefault serves intents that have no entry in the routing table.
var globalDefault = Route{Primary: "groq", Fallbacks: []string{"openai"}}

// RouteRequest carries everything the router needs to select a provider and
// execute one completion.
type RouteRequest struct {
	// Intent selects the route; unknown intents use the global default
	Intent messages.Intent

	// Messages is the ordered conversation history
	Messages []providers.Message

	// SystemPrompt is passed through to the provider
	SystemPrompt string

	// Images, when present, force the vision path; non-vision candidates
	// are skipped
	Images [][]byte

	// Prefer names a provider to try before the route. Its failure does not
	// consume a slot in the fallback chain.
	Prefer string

	// MaxTokens caps the completion length (0 uses the provider default)
	MaxTokens int

	// Temperature controls randomness (0 uses the provider default)
	Temperature float64

	// JSONMode requests strict-JSON output; candidates without JSON-mode
	// support are skipped
	JSONMode bool
}
