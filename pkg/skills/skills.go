// Package skills implements the capability units behind each intent: a
// registry mapping intents to skills, and one handler per intent family
// (diagnose, status, photo, work order, diagram, documents, search, admin,
// shell, chat).
//
// A skill receives the inbound message plus a Context carrying every injected
// collaborator. Expected failures (connector down, providers exhausted, user
// not allowed) become polite user-facing reply text; only genuinely
// unexpected failures escape as errors for the dispatcher to catch.
package skills

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/conversation"
	"mercator-hq/foreman/pkg/enrich"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
	"mercator-hq/foreman/pkg/workorder"
)

// Skill is one unit of capability mapped to one or more intents.
type Skill interface {
	// Name returns the skill identifier used in logs and registration.
	Name() string

	// Description is a one-line summary for capability listings.
	Description() string

	// Intents lists the intents this skill handles.
	Intents() []messages.Intent

	// Handle processes one inbound message and produces the reply. The
	// returned message must address the same channel and user as msg.
	Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error)
}

// TagReader is the telemetry surface the diagnostic skills consume.
// *connectors.Matrix and *connectors.PLCDirect both satisfy it.
type TagReader interface {
	GetLatestTags(ctx context.Context, nodeID string, limit int) ([]map[string]any, error)
}

// WorkOrderFiler files work orders in an external CMMS.
type WorkOrderFiler interface {
	CreateWorkOrder(ctx context.Context, title, description, priority string, assetID int) (map[string]any, error)
}

// ShellRunner executes commands on remote maintenance hosts.
type ShellRunner interface {
	Hosts() []string
	Execute(ctx context.Context, command, host string, timeoutSecs int) (*connectors.ShellResult, error)
}

// Publisher uploads generated documents as gists.
type Publisher interface {
	IsConfigured() bool
	Create(ctx context.Context, description string, public bool, files map[string]connectors.GistFile) (*connectors.Gist, error)
}

// OfflineLLM is the local fallback model consulted when every cloud
// provider is unreachable.
type OfflineLLM interface {
	Generate(ctx context.Context, prompt, system string, maxTokens int) (*connectors.GenerateResult, error)
}

// Enricher turns a component photo into a knowledge-base atom.
type Enricher interface {
	Enrich(ctx context.Context, req enrich.Request) (*enrich.Result, error)
}

// Renderer converts a diagram spec (JSON bytes) into a PNG image.
type Renderer interface {
	Render(ctx context.Context, spec []byte) ([]byte, error)
}

// NotifyFunc delivers an out-of-band message outside the normal reply path,
// e.g. the enrichment notification after a photo reply has already gone out.
type NotifyFunc func(ctx context.Context, msg messages.OutboundMessage) error

// Context carries the collaborators a skill may use. A nil field means the
// underlying service is not configured for this deployment; skills answer
// with polite text instead of failing when they find one missing.
type Context struct {
	// Router executes LLM completions with intent-based provider selection.
	Router *routing.Router

	// Knowledge is the atom store behind Layer-0 answers and KB context.
	Knowledge knowledge.Store

	// Telemetry reads the latest PLC tag snapshot.
	Telemetry TagReader

	// NodeID scopes telemetry queries when the message does not name a node.
	NodeID string

	// CMMS files work orders in the external maintenance system.
	CMMS WorkOrderFiler

	// Shell runs commands on remote jarvis hosts.
	Shell ShellRunner

	// Publisher uploads generated documents and work orders as gists.
	Publisher Publisher

	// Offline is the local model used when no cloud provider answers.
	Offline OfflineLLM

	// Enricher is the photo-to-knowledge pipeline.
	Enricher Enricher

	// Archive mints work-order identifiers and logs issued documents.
	Archive *workorder.Archive

	// Search is the dedicated web-search provider. It bypasses the router
	// because its citations come from provider-specific response fields.
	Search providers.Provider

	// Renderer draws diagram specs as PNG. Nil attaches the spec as a
	// document instead.
	Renderer Renderer

	// History is the per-user conversation store. Skills do not read it
	// directly (transcripts arrive via message metadata); it is exposed for
	// admin operations such as clearing a user's history.
	History *conversation.Store

	// Notify is the side-channel for out-of-band messages. Nil when the
	// originating channel has no way to deliver them.
	Notify NotifyFunc

	// Connectors lists every configured connector for health summaries.
	Connectors []connectors.Connector

	// AllowedUsers gates SHELL, GIST, and PROJECT. Empty allows everyone.
	AllowedUsers []string

	// ProjectsDir is where PROJECT writes local scaffold checkouts. Empty
	// skips the checkout and publishes the gist only.
	ProjectsDir string
}

// stampModel records which model produced the reply, and how long the
// provider call took, in the outbound metadata. The dispatcher and the HTTP
// surface report both.
func stampModel(out *messages.OutboundMessage, resp *providers.LLMResponse) {
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	out.Metadata[messages.MetaModel] = resp.Model
	out.Metadata[messages.MetaLatencyMS] = strconv.FormatInt(resp.LatencyMS, 10)
}

// userAllowed reports whether the user passes the admin allow-list. An empty
// list allows everyone.
func (c *Context) userAllowed(userID string) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, u := range c.AllowedUsers {
		if u == userID {
			return true
		}
	}
	return false
}

// nodeFor resolves the telemetry node for a message: an explicit node on the
// message wins over the deployment default.
func (c *Context) nodeFor(msg messages.InboundMessage) string {
	if msg.NodeID != "" {
		return msg.NodeID
	}
	return c.NodeID
}

// Registry maps intents to skills. One skill per intent; registering a
// second skill for an already-claimed intent replaces the first, logged.
type Registry struct {
	mu     sync.RWMutex
	skills map[messages.Intent]Skill
	logger *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger uses slog.Default.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		skills: make(map[messages.Intent]Skill),
		logger: logger,
	}
}

// Register claims every intent the skill declares. Later registrations win.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, intent := range s.Intents() {
		if prev, ok := r.skills[intent]; ok && prev.Name() != s.Name() {
			r.logger.Warn("skill registration replaced",
				"intent", intent.String(), "old", prev.Name(), "new", s.Name())
		}
		r.skills[intent] = s
		r.logger.Info("registered skill", "skill", s.Name(), "intent", intent.String())
	}
}

// Lookup returns the skill registered for the intent.
func (r *Registry) Lookup(intent messages.Intent) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[intent]
	return s, ok
}

// Names returns the distinct registered skill names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool, len(r.skills))
	var names []string
	for _, s := range r.skills {
		if !seen[s.Name()] {
			seen[s.Name()] = true
			names = append(names, s.Name())
		}
	}
	sort.Strings(names)
	return names
}

// Builtins returns the standard skill set in registration order. The chat
// skill comes last so its UNKNOWN claim never shadows a more specific skill.
func Builtins() []Skill {
	return []Skill{
		NewDiagnoseSkill(),
		NewStatusSkill(),
		NewPhotoSkill(),
		NewWorkOrderSkill(),
		NewAdminSkill(),
		NewSearchSkill(),
		NewShellSkill(),
		NewDiagramSkill(),
		NewGistSkill(),
		NewProjectSkill(),
		NewEnrichSkill(),
		NewChatSkill(),
	}
}
