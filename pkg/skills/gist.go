package skills

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

const gistSystemPrompt = `You are a senior technical writer at an industrial automation company (Mercator).

Your job: produce clear, structured markdown documents on demand.

Rules:
1. Output ONLY markdown — no conversational text, no preamble, no "here is your document"
2. Auto-detect document type from the request:
   - PRD (Product Requirements Document)
   - Research / literature review
   - Build guide / tutorial
   - Technical specification
   - Strategy document
   - General write-up
3. Structure with clear headings (##), bullet points, numbered lists, and code blocks where relevant
4. Include an executive summary or TL;DR at the top for longer documents
5. Keep under 3000 words — be concise but thorough
6. Use industrial automation context when relevant (PLCs, SCADA, HMI, Modbus, OPC UA, etc.)
7. Include a metadata header: title, date, author (Mercator / Foreman), document type
`

const gistUsage = "**Gist Skill** — generate documents and publish as GitHub Gists.\n\n" +
	"**Usage:**\n" +
	"- `/gist research industrial IoT protocols`\n" +
	"- `/gist PRD for conveyor monitoring dashboard`\n" +
	"- `/gist build guide for Modbus TCP integration`\n" +
	"- `/gist technical spec for tag caching service`\n" +
	"- `draft a strategy doc for edge AI deployment`\n"

// gistPrefixRules map request keywords to filename prefixes, first match wins.
var gistPrefixRules = []struct {
	pattern *regexp.Regexp
	prefix  string
}{
	{regexp.MustCompile(`(?i)\bprd\b`), "PRD_"},
	{regexp.MustCompile(`(?i)\bresearch\b`), "research_"},
	{regexp.MustCompile(`(?i)\bbuild\s*guide\b`), "build-guide_"},
	{regexp.MustCompile(`(?i)\btechnical\s*spec\b`), "spec_"},
	{regexp.MustCompile(`(?i)\bstrategy\b`), "strategy_"},
	{regexp.MustCompile(`(?i)\bplaybook\b`), "playbook_"},
	{regexp.MustCompile(`(?i)\brunbook\b`), "runbook_"},
	{regexp.MustCompile(`(?i)\barchitecture\b`), "architecture_"},
}

var (
	gistNonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	gistFillerRe   = regexp.MustCompile(`(?i)\b(a|an|the|for|of|on|in|to|and|or|with|about|create|write|draft|make|generate)\b`)
)

// inferGistFilename derives a descriptive markdown filename from the request.
func inferGistFilename(prompt string) string {
	prefix := "doc_"
	for _, rule := range gistPrefixRules {
		if rule.pattern.MatchString(prompt) {
			prefix = rule.prefix
			break
		}
	}

	slug := gistNonAlnumRe.ReplaceAllString(prompt, "")
	slug = gistFillerRe.ReplaceAllString(slug, "")
	words := strings.Fields(slug)
	if len(words) > 5 {
		words = words[:5]
	}
	if len(words) == 0 {
		words = []string{"document"}
	}
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return prefix + strings.Join(words, "-") + ".md"
}

// GistSkill generates structured documents and publishes them as GitHub
// Gists. On upload failure the content comes back inline so it is never lost.
type GistSkill struct{}

// NewGistSkill returns the gist skill.
func NewGistSkill() *GistSkill { return &GistSkill{} }

func (s *GistSkill) Name() string { return "gist" }

func (s *GistSkill) Description() string {
	return "Generate structured documents and publish as GitHub Gists"
}

func (s *GistSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentGist}
}

func (s *GistSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	if !sc.userAllowed(msg.UserID) {
		return messages.Reply(msg, "Gist creation is restricted to authorized users."), nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(strings.ToLower(text), "/gist") {
		text = strings.TrimSpace(text[5:])
	}
	if text == "" {
		return messages.Reply(msg, gistUsage), nil
	}

	userPrompt := text
	if kbContext := briefKBContext(ctx, sc, text); kbContext != "" {
		userPrompt = text + "\n\nRelevant knowledge base context:\n" + kbContext
	}

	if sc.Router == nil {
		return messages.Reply(msg, "Failed to generate document. Please try again."), nil
	}
	resp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       messages.IntentGist,
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: userPrompt}},
		SystemPrompt: gistSystemPrompt,
		MaxTokens:    4096,
		Temperature:  0.4,
	})
	if err != nil {
		slog.Error("LLM failed during gist generation", "error", err)
		return messages.Reply(msg, "Failed to generate document. Please try again."), nil
	}

	content := resp.Text
	filename := inferGistFilename(text)
	wordCount := len(strings.Fields(content))

	gistURL := s.publish(ctx, sc, content, filename, text)

	var reply string
	if gistURL != "" {
		reply = fmt.Sprintf("**Gist created:** %s\n**File:** `%s`\n**Words:** %d\n_Model: %s | %dms_",
			gistURL, filename, wordCount, resp.Model, resp.LatencyMS)
	} else {
		reply = fmt.Sprintf("**%s** (%d words)\n_Gist upload failed — content inline:_\n\n%s\n\n_Model: %s | %dms_",
			filename, wordCount, content, resp.Model, resp.LatencyMS)
	}
	return messages.Reply(msg, reply), nil
}

// publish uploads the document; an empty return means the caller should fall
// back to inline delivery.
func (s *GistSkill) publish(ctx context.Context, sc *Context, content, filename, description string) string {
	if sc.Publisher == nil || !sc.Publisher.IsConfigured() {
		slog.Warn("gist publisher not configured, returning content inline")
		return ""
	}
	gist, err := sc.Publisher.Create(ctx, truncate(description, 200), true,
		map[string]connectors.GistFile{filename: {Content: content}})
	if err != nil {
		slog.Error("gist create failed", "filename", filename, "error", err)
		return ""
	}
	slog.Info("gist created", "url", gist.HTMLURL, "filename", filename)
	return gist.HTMLURL
}

// briefKBContext renders a compact title-and-summary KB digest. Both the
// gist and project skills feed it to the planning prompt.
func briefKBContext(ctx context.Context, sc *Context, query string) string {
	atoms := searchKB(ctx, sc.Knowledge, query, 3)
	if len(atoms) == 0 {
		return ""
	}
	var lines []string
	for _, atom := range atoms {
		lines = append(lines, fmt.Sprintf("- %s: %s", atom.Title, truncate(atom.Summary, 300)))
	}
	return strings.Join(lines, "\n")
}
