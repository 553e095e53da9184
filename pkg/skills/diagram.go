package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
)

// micro820IOReference gives the model the real I/O map so generated specs
// use terminal designations that exist on the bench PLC.
const micro820IOReference = `
ALLEN-BRADLEY MICRO820 (2080-LC20-20QBB) I/O MAP:
  Digital Inputs:  DI0-DI7 (8 points, 24VDC sink/source)
  Digital Outputs: DO0-DO3 (4 points, relay, 2A max)
  Analog Inputs:   AI0-AI3 (4 points, 0-10V / 4-20mA)
  Analog Outputs:  AO0-AO1 (2 points, 0-10V)
  COM terminals for each group
  Power: 24VDC supply, L1/L2/GND for AC power
`

// diagramSchemaPrompt is the JSON contract for generated specs.
const diagramSchemaPrompt = `
You MUST respond with a valid JSON object matching this schema. No markdown, no backticks, no explanation — ONLY the JSON.

{
  "title": "Drawing title",
  "drawing_number": "FLM-WD-001",
  "revision": "A",
  "standard": "IEC",
  "description": "Brief description",
  "notes": ["Note 1", "Note 2"],
  "components": [
    {
      "tag": "Q1",
      "type": "circuit_breaker",
      "label": "Main Circuit Breaker",
      "ratings": {"voltage": "400V", "current": "25A"},
      "terminals": [{"id": "1", "label": "Line", "side": "top"}, {"id": "2", "label": "Load", "side": "bottom"}],
      "group": "motor_starter",
      "position_hint": "top"
    }
  ],
  "connections": [
    {"from": "Q1.2", "to": "K1.1", "wire_label": "L1", "wire_type": "power"}
  ],
  "buses": [
    {"name": "L1", "type": "power", "orientation": "horizontal"}
  ],
  "layout": {"power_flow": "top-to-bottom", "control_flow": "left-to-right"}
}

VALID component types: motor_3ph, motor_1ph, contactor_3pole, contactor_coil,
overload_relay, circuit_breaker, fuse, pushbutton_no, pushbutton_nc,
emergency_stop, terminal_block, plc_input_card, plc_output_card, vfd,
transformer, indicator_light, proximity_sensor, relay_coil,
relay_contact_no, relay_contact_nc

VALID wire_type: power, control, signal, earth, neutral
VALID bus type: power, control, earth, neutral

RULES:
1. Use ONLY real terminal designations from the reference material.
2. Every connection must reference valid component tags and terminal IDs.
3. Include power buses (L1, L2, L3) for 3-phase circuits.
4. Include control buses (+24V, 0V) for control circuits.
5. Add PE (earth) bus when motors are involved.
6. Add safety notes (voltage, current, overload settings).
7. Keep it practical — real-world component ratings.
`

const diagramUsage = "**Wiring Diagram Generator**\n\n" +
	"Send a description of the circuit you need.\n\n" +
	"Examples:\n" +
	"- `/diagram DOL motor starter 11kW`\n" +
	"- `/diagram star-delta starter for pump`\n" +
	"- `/diagram VFD wiring for conveyor`\n" +
	"- `/diagram Micro820 to contactor`\n" +
	"- `draw me a wiring diagram for an e-stop circuit`\n"

// diagramSpec is the structured wiring diagram produced by the model and
// consumed by the renderer.
type diagramSpec struct {
	Title         string              `json:"title"`
	DrawingNumber string              `json:"drawing_number"`
	Revision      string              `json:"revision"`
	Standard      string              `json:"standard,omitempty"`
	Description   string              `json:"description,omitempty"`
	Notes         []string            `json:"notes,omitempty"`
	Components    []diagramComponent  `json:"components"`
	Connections   []diagramConnection `json:"connections,omitempty"`
	Buses         []diagramBus        `json:"buses,omitempty"`
	Layout        map[string]string   `json:"layout,omitempty"`
}

type diagramComponent struct {
	Tag          string            `json:"tag"`
	Type         string            `json:"type"`
	Label        string            `json:"label,omitempty"`
	Ratings      diagramRatings    `json:"ratings,omitempty"`
	Terminals    []diagramTerminal `json:"terminals,omitempty"`
	Group        string            `json:"group,omitempty"`
	PositionHint string            `json:"position_hint,omitempty"`
}

type diagramRatings struct {
	Voltage string `json:"voltage,omitempty"`
	Current string `json:"current,omitempty"`
	Power   string `json:"power,omitempty"`
}

type diagramTerminal struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Side  string `json:"side,omitempty"`
}

type diagramConnection struct {
	From      string `json:"from"`
	To        string `json:"to"`
	WireLabel string `json:"wire_label,omitempty"`
	WireType  string `json:"wire_type,omitempty"`
}

type diagramBus struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Orientation string `json:"orientation,omitempty"`
}

// DiagramSkill generates spec-driven wiring diagrams. The model emits a
// structured JSON spec; an external renderer turns it into a PNG. Without a
// renderer the spec itself ships as a document attachment.
type DiagramSkill struct{}

// NewDiagramSkill returns the diagram skill.
func NewDiagramSkill() *DiagramSkill { return &DiagramSkill{} }

func (s *DiagramSkill) Name() string { return "diagram" }

func (s *DiagramSkill) Description() string {
	return "Generate IEC 60617 wiring diagrams from structured specs"
}

func (s *DiagramSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentDiagram}
}

func (s *DiagramSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	query := strings.TrimSpace(msg.Text)
	if query == "" || query == "/diagram" || query == "/wiring" {
		return messages.Reply(msg, diagramUsage), nil
	}

	kb := &kbFindings{}
	kbContext := diagramKBContext(ctx, sc, query, kb)
	prompt := buildDiagramPrompt(query, kbContext)

	if sc.Router == nil {
		return messages.Reply(msg, "Failed to generate diagram spec. Please try again."), nil
	}

	turns := []providers.Message{{Role: providers.RoleUser, Content: prompt}}
	resp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       messages.IntentDiagram,
		Messages:     turns,
		SystemPrompt: assistantSystemPrompt,
		JSONMode:     true,
		MaxTokens:    2048,
		Temperature:  0.2,
	})
	if err != nil {
		slog.Error("LLM call failed for diagram spec generation", "error", err)
		return messages.Reply(msg, "Failed to generate diagram spec. Please try again."), nil
	}

	// Parse with one retry: hand the model its own output and the decode
	// error, ask again at lower temperature.
	specText := resp.Text
	var raw map[string]any
	if parseErr := json.Unmarshal([]byte(specText), &raw); parseErr != nil {
		slog.Warn("diagram JSON parse failed on first attempt, retrying", "error", parseErr)
		retryTurns := append(turns,
			providers.Message{Role: providers.RoleAssistant, Content: specText},
			providers.Message{Role: providers.RoleUser, Content: fmt.Sprintf(
				"Your JSON was invalid: %v. Return ONLY valid JSON, no markdown.", parseErr)},
		)
		retryResp, retryErr := sc.Router.Route(ctx, routing.RouteRequest{
			Intent:       messages.IntentDiagram,
			Messages:     retryTurns,
			SystemPrompt: assistantSystemPrompt,
			JSONMode:     true,
			MaxTokens:    2048,
			Temperature:  0.1,
		})
		if retryErr == nil {
			resp = retryResp
			specText = retryResp.Text
			retryErr = json.Unmarshal([]byte(specText), &raw)
		}
		if retryErr != nil {
			slog.Error("diagram JSON retry also failed", "error", retryErr, "raw", truncate(specText, 500))
			return messages.Reply(msg, fmt.Sprintf(
				"Diagram spec generation produced invalid JSON after retry. Raw output:\n\n```\n%s\n```",
				truncate(specText, 2000))), nil
		}
	}

	var spec diagramSpec
	if err := json.Unmarshal([]byte(specText), &spec); err != nil {
		slog.Error("diagram spec validation failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Diagram spec validation failed: %v", err)), nil
	}
	if spec.DrawingNumber == "" {
		spec.DrawingNumber = "FLM-WD-001"
	}
	if spec.Revision == "" {
		spec.Revision = "A"
	}
	if err := validateDiagramSpec(&spec); err != nil {
		slog.Error("diagram spec validation failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Diagram spec validation failed: %v", err)), nil
	}

	summary := diagramSummary(&spec) + kb.sourcesBlock()
	modelTag := fmt.Sprintf("\n\n_Diagram generated from spec | %s | %dms_", resp.Model, resp.LatencyMS)

	if sc.Renderer == nil {
		out := messages.Reply(msg, summary+modelTag)
		out.Attachments = []messages.Attachment{specAttachment(&spec)}
		return out, nil
	}

	specBytes, err := json.Marshal(&spec)
	if err != nil {
		return messages.Reply(msg, fmt.Sprintf("Diagram spec validation failed: %v", err)), nil
	}
	png, err := sc.Renderer.Render(ctx, specBytes)
	if err != nil {
		slog.Error("PNG rendering failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("%s\n\n_PNG rendering failed: %v_", summary, err)), nil
	}

	out := messages.Reply(msg, summary+modelTag)
	out.Attachments = []messages.Attachment{{
		Type:     messages.AttachmentImage,
		Data:     png,
		MIMEType: "image/png",
		Filename: spec.DrawingNumber + ".png",
	}}
	return out, nil
}

// validateDiagramSpec checks the structural invariants: at least one tagged
// component, and every connection endpoint resolving to a declared component
// tag or bus name.
func validateDiagramSpec(spec *diagramSpec) error {
	if len(spec.Components) == 0 {
		return fmt.Errorf("diagram has no components")
	}
	known := make(map[string]bool, len(spec.Components)+len(spec.Buses))
	for i, comp := range spec.Components {
		if comp.Tag == "" {
			return fmt.Errorf("component %d has no tag", i)
		}
		known[comp.Tag] = true
	}
	for _, bus := range spec.Buses {
		known[bus.Name] = true
	}
	for i, conn := range spec.Connections {
		for _, endpoint := range []string{conn.From, conn.To} {
			tag, _, _ := strings.Cut(endpoint, ".")
			if !known[tag] {
				return fmt.Errorf("connection %d references unknown tag %q", i, tag)
			}
		}
	}
	return nil
}

// diagramSummary renders the chat-facing markdown view of a spec.
func diagramSummary(spec *diagramSpec) string {
	lines := []string{
		fmt.Sprintf("**%s**", spec.Title),
		fmt.Sprintf("Drawing: %s Rev %s", spec.DrawingNumber, spec.Revision),
		"",
	}

	if len(spec.Components) > 0 {
		lines = append(lines, "**Components:**")
		for _, comp := range spec.Components {
			var parts []string
			if comp.Ratings.Voltage != "" {
				parts = append(parts, comp.Ratings.Voltage)
			}
			if comp.Ratings.Current != "" {
				parts = append(parts, comp.Ratings.Current)
			}
			if comp.Ratings.Power != "" {
				parts = append(parts, comp.Ratings.Power)
			}
			ratings := ""
			if len(parts) > 0 {
				ratings = ", " + strings.Join(parts, ", ")
			}
			label := comp.Label
			if label == "" {
				label = componentTypeLabel(comp.Type)
			}
			lines = append(lines, fmt.Sprintf("- %s: %s%s", comp.Tag, label, ratings))
		}
	}

	if len(spec.Connections) > 0 {
		lines = append(lines, "", "**Connections:**",
			"| From | To | Wire | Type |",
			"|------|----|------|------|")
		shown := spec.Connections
		if len(shown) > 15 {
			shown = shown[:15]
		}
		for _, conn := range shown {
			lines = append(lines, fmt.Sprintf("| %s | %s | %s | %s |",
				conn.From, conn.To, conn.WireLabel, conn.WireType))
		}
		if extra := len(spec.Connections) - 15; extra > 0 {
			lines = append(lines, fmt.Sprintf("| ... | +%d more | | |", extra))
		}
	}

	if len(spec.Notes) > 0 {
		lines = append(lines, "", "**Notes:**")
		for _, note := range spec.Notes {
			lines = append(lines, "- "+note)
		}
	}

	return strings.Join(lines, "\n")
}

// componentTypeLabel turns "circuit_breaker" into "Circuit Breaker".
func componentTypeLabel(componentType string) string {
	words := strings.Split(strings.ReplaceAll(componentType, "_", " "), " ")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// specAttachment packages the validated spec as a JSON document so the
// technician still gets a machine-usable artifact when no renderer is wired.
func specAttachment(spec *diagramSpec) messages.Attachment {
	pretty, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		pretty = []byte("{}")
	}
	return messages.Attachment{
		Type:     messages.AttachmentDocument,
		Data:     pretty,
		MIMEType: "application/json",
		Filename: spec.DrawingNumber + ".json",
	}
}

func buildDiagramPrompt(question, kbContext string) string {
	parts := []string{
		"Generate a wiring diagram specification as a JSON object.",
		"",
		"REQUEST: " + question,
		"",
		"EQUIPMENT REFERENCE:",
		micro820IOReference,
	}
	if kbContext != "" {
		parts = append(parts,
			"",
			"RELEVANT KNOWLEDGE BASE ENTRIES (use real terminal designations from these):",
			kbContext,
		)
	}
	parts = append(parts, "", "OUTPUT FORMAT:", diagramSchemaPrompt)
	return strings.Join(parts, "\n")
}

// diagramKBContext searches the KB for wiring and equipment references and
// records citation sources for the reply.
func diagramKBContext(ctx context.Context, sc *Context, query string, kb *kbFindings) string {
	atoms := searchKB(ctx, sc.Knowledge, query, 5)
	if len(atoms) == 0 {
		return ""
	}
	var entries []string
	for _, atom := range atoms {
		entry := fmt.Sprintf("[%s] %s", atom.Type, atom.Title)
		if len(atom.ManualRefs) > 0 {
			entry += fmt.Sprintf(" (%s)", atom.ManualRefs[0])
		}
		entry += "\n" + truncate(atom.Summary, 400)
		if content := truncate(atom.Content, 600); content != "" && content != atom.Summary {
			entry += "\n" + truncate(content, 300)
		}
		entries = append(entries, entry)
		kb.addSource(atom)
	}
	return strings.Join(entries, "\n\n")
}
