package skills

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/diagnosis"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// layer0FaultCodes are the fault codes eligible for a KB-direct answer.
// They cover the conditions whose fix procedures are stable enough that a
// vetted atom beats a generated answer.
var layer0FaultCodes = map[string]bool{
	"E001": true,
	"M001": true,
	"M002": true,
	"T001": true,
	"C001": true,
}

// layer0AtomTypes are the atom types concrete enough to answer without a
// model: they prescribe actions rather than describe components.
var layer0AtomTypes = map[string]bool{
	knowledge.TypeProcedure:       true,
	knowledge.TypeFaultCode:       true,
	knowledge.TypeChecklist:       true,
	knowledge.TypeTroubleshooting: true,
}

const defaultDiagnoseQuestion = "Why is this equipment stopped? What should I check first?"

// DiagnoseSkill answers fault questions from live telemetry, the rule-based
// fault detector, and the knowledge base. A model is consulted only when the
// KB cannot answer directly; when telemetry is unreachable the skill degrades
// to a KB-only answer instead of failing.
type DiagnoseSkill struct{}

// NewDiagnoseSkill returns the diagnostic skill.
func NewDiagnoseSkill() *DiagnoseSkill { return &DiagnoseSkill{} }

func (s *DiagnoseSkill) Name() string { return "diagnose" }

func (s *DiagnoseSkill) Description() string {
	return "Diagnose equipment faults from live PLC tags and the knowledge base"
}

func (s *DiagnoseSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentDiagnose}
}

func (s *DiagnoseSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	question := strings.TrimSpace(msg.Text)
	if question == "" {
		question = defaultDiagnoseQuestion
	}

	tags, ok := s.readTags(ctx, sc, msg)
	if !ok {
		return s.kbOnly(ctx, msg, sc, question)
	}

	faults := diagnosis.DetectFaults(tags)
	kb, best := s.lookupFaults(ctx, sc, faults)

	// Layer 0: a vetted procedure for a known-critical fault answers
	// directly, no model call.
	if reply, fired := layer0FaultReply(faults, best, kb); fired {
		return messages.Reply(msg, reply), nil
	}

	prompt := diagnosis.BuildDiagnosisPrompt(question, tags, faults)
	if kb.context != "" {
		prompt += "\n\nKNOWN SOLUTIONS FROM KNOWLEDGE BASE:\n" + kb.context +
			"\n\nUse these known solutions to inform your response when relevant."
	}
	prompt = prependHistory(msg, prompt)

	text, footer, resp, err := routeDiagnosis(ctx, sc, prompt)
	if err != nil {
		slog.Error("diagnosis failed, no provider answered", "error", err)
		return messages.Reply(msg, "All language model providers are unavailable right now. Please try again shortly."), nil
	}
	out := messages.Reply(msg, text+kb.sourcesBlock()+footer)
	if resp != nil {
		stampModel(&out, resp)
	}
	return out, nil
}

// readTags fetches the latest telemetry snapshot. ok is false when telemetry
// is missing, unreachable, or empty; the caller degrades to KB-only.
func (s *DiagnoseSkill) readTags(ctx context.Context, sc *Context, msg messages.InboundMessage) (map[string]any, bool) {
	if sc.Telemetry == nil {
		return nil, false
	}
	snapshots, err := sc.Telemetry.GetLatestTags(ctx, sc.nodeFor(msg), 1)
	if err != nil {
		slog.Warn("telemetry unreachable, degrading to KB-only diagnosis", "error", err)
		return nil, false
	}
	if len(snapshots) == 0 || len(snapshots[0]) == 0 {
		return nil, false
	}
	return snapshots[0], true
}

// lookupFaults queries the KB for every detected fault: by fault code first,
// then full-text on the fault description. It returns the prompt context
// block plus the top atom per fault code for the Layer-0 gate.
func (s *DiagnoseSkill) lookupFaults(ctx context.Context, sc *Context, faults []diagnosis.FaultDiagnosis) (*kbFindings, map[string]knowledge.Atom) {
	kb := &kbFindings{}
	best := make(map[string]knowledge.Atom)
	if sc.Knowledge == nil {
		return kb, best
	}

	var blocks []string
	for _, fault := range faults {
		if fault.FaultCode == "OK" || fault.FaultCode == "IDLE" {
			continue
		}
		atoms, err := sc.Knowledge.SearchByFaultCode(ctx, fault.FaultCode, 2)
		if err != nil {
			slog.Warn("fault code lookup failed", "code", fault.FaultCode, "error", err)
			continue
		}
		if len(atoms) == 0 {
			atoms, err = sc.Knowledge.Search(ctx, fault.Description, 3)
			if err != nil {
				slog.Warn("fault description search failed", "code", fault.FaultCode, "error", err)
				continue
			}
		}
		if len(atoms) == 0 {
			continue
		}

		lines := []string{fmt.Sprintf("\n[%s] %s:", fault.FaultCode, fault.Title)}
		for _, atom := range atoms {
			lines = append(lines, fmt.Sprintf("  - %s: %s", atom.Title, truncate(atom.Summary, 200)))
			if len(atom.Fixes) > 0 {
				lines = append(lines, "    Fixes: "+strings.Join(firstN(atom.Fixes, 3), "; "))
			}
			kb.addSource(atom)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))

		if _, seen := best[fault.FaultCode]; !seen {
			best[fault.FaultCode] = atoms[0]
		}
	}
	kb.context = strings.Join(blocks, "\n")
	return kb, best
}

// layer0FaultReply builds the KB-direct reply when some detected fault is in
// the Layer-0 set and its top atom is a high-confidence procedure.
func layer0FaultReply(faults []diagnosis.FaultDiagnosis, best map[string]knowledge.Atom, kb *kbFindings) (string, bool) {
	for _, fault := range faults {
		if !layer0FaultCodes[fault.FaultCode] {
			continue
		}
		atom, ok := best[fault.FaultCode]
		if !ok || !layer0AtomTypes[atom.Type] || !actionable(atom) {
			continue
		}

		lines := []string{
			fmt.Sprintf("**%s: %s**", fault.FaultCode, fault.Title),
			fault.Description,
			"",
			fmt.Sprintf("**%s**", atom.Title),
		}
		for _, fix := range atom.Fixes {
			lines = append(lines, "- "+fix)
		}
		return strings.Join(lines, "\n") + kb.sourcesBlock() + layer0Footer, true
	}
	return "", false
}

// kbOnly answers without telemetry: search the KB on the question itself,
// short-circuit on an actionable atom, otherwise route with whatever KB
// context exists and an explicit note that live data is missing.
func (s *DiagnoseSkill) kbOnly(ctx context.Context, msg messages.InboundMessage, sc *Context, question string) (messages.OutboundMessage, error) {
	atoms := searchKB(ctx, sc.Knowledge, question, 3)

	if len(atoms) > 0 && actionable(atoms[0]) {
		text := "_Live telemetry is unreachable. Answering from the knowledge base._\n\n" +
			layer0Answer(atoms[0])
		return messages.Reply(msg, text), nil
	}

	kb := &kbFindings{}
	parts := []string{
		"QUESTION: " + question,
		"",
		"Live PLC telemetry is unreachable, so there are no tag readings or fault detection results for this request. Answer from the knowledge base entries and general knowledge, and say clearly that live data is missing.",
	}
	if len(atoms) > 0 {
		var entries []string
		for _, atom := range atoms {
			entries = append(entries, fmt.Sprintf("[%s] %s\n  %s", atom.Type, atom.Title, truncate(atom.Summary, 300)))
			kb.addSource(atom)
		}
		parts = append(parts, "", "RELEVANT KNOWLEDGE BASE ENTRIES:", strings.Join(entries, "\n"))
	}
	prompt := prependHistory(msg, strings.Join(parts, "\n"))

	text, footer, resp, err := routeDiagnosis(ctx, sc, prompt)
	if err != nil {
		slog.Error("KB-only diagnosis failed", "error", err)
		return messages.Reply(msg, "Cannot reach PLC data and no language model is available. Is the Matrix API running?"), nil
	}
	out := messages.Reply(msg, text+kb.sourcesBlock()+footer)
	if resp != nil {
		stampModel(&out, resp)
	}
	return out, nil
}

// routeDiagnosis runs the diagnostic prompt through the router, falling back
// to the local offline model when every cloud provider is exhausted. It
// returns the answer text, its attribution footer, and the cloud response
// when one was used (nil on the offline path).
func routeDiagnosis(ctx context.Context, sc *Context, prompt string) (string, string, *providers.LLMResponse, error) {
	var routeErr error
	if sc.Router != nil {
		resp, err := sc.Router.Route(ctx, routing.RouteRequest{
			Intent:       messages.IntentDiagnose,
			Messages:     []providers.Message{{Role: providers.RoleUser, Content: prompt}},
			SystemPrompt: assistantSystemPrompt,
		})
		if err == nil {
			return resp.Text, fmt.Sprintf("\n\n_Model: %s | %dms_", resp.Model, resp.LatencyMS), resp, nil
		}
		routeErr = err
		slog.Warn("cloud providers exhausted, trying offline model", "error", err)
	}
	if sc.Offline != nil {
		gen, err := sc.Offline.Generate(ctx, prompt, assistantSystemPrompt, 0)
		if err == nil {
			return gen.Response, fmt.Sprintf("\n\n_Model: %s (offline) | %dms_", gen.Model, gen.TotalDurationMS), nil, nil
		}
		slog.Warn("offline model failed", "error", err)
		if routeErr == nil {
			routeErr = err
		}
	}
	if routeErr == nil {
		routeErr = fmt.Errorf("no language model configured")
	}
	return "", "", nil, routeErr
}

// prependHistory injects the channel-provided conversation transcript, when
// present, ahead of the prompt.
func prependHistory(msg messages.InboundMessage, prompt string) string {
	h := strings.TrimSpace(msg.Metadata[messages.MetaHistory])
	if h == "" {
		return prompt
	}
	return "CONVERSATION SO FAR:\n" + h + "\n\n" + prompt
}
