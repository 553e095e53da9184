package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mercator-hq/foreman/pkg/connectors"
	"mercator-hq/foreman/pkg/messages"
	"mercator-hq/foreman/pkg/providers"
	"mercator-hq/foreman/pkg/routing"
	"mercator-hq/foreman/pkg/workorder"
)

// workOrderExtractionPrompt asks the model for the structured fields of a
// work order. Lax output is tolerated; parse failure falls back to a minimal
// record built from the raw message.
const workOrderExtractionPrompt = "Extract a work order from the user's message. " +
	"Return JSON with keys: title (short summary), description (detailed), " +
	"priority (high/medium/low), asset_name (equipment name if mentioned), " +
	"asset_id (equipment ID if mentioned), location (where if mentioned), " +
	"work_type (Corrective/Preventive/Inspection), " +
	"category (Mechanical/Electrical/Instrumentation), " +
	"failure_code (short code if obvious)."

// WorkOrderSkill turns a free-text maintenance request into a filed work
// order: through the CMMS when one is connected, otherwise as a portable
// Markdown+CSV document published to a gist.
type WorkOrderSkill struct{}

// NewWorkOrderSkill returns the work-order skill.
func NewWorkOrderSkill() *WorkOrderSkill { return &WorkOrderSkill{} }

func (s *WorkOrderSkill) Name() string { return "work_order" }

func (s *WorkOrderSkill) Description() string {
	return "Create maintenance work orders from chat messages"
}

func (s *WorkOrderSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentWorkOrder}
}

func (s *WorkOrderSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	text := strings.TrimSpace(msg.Text)

	fields, err := s.extract(ctx, sc, text)
	if err != nil {
		slog.Error("work order extraction failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Failed to create work order: %v", err)), nil
	}

	title := anyString(fields["title"])
	if title == "" {
		title = truncate(text, 100)
	}
	description := anyString(fields["description"])
	if description == "" {
		description = text
	}
	priority := strings.ToLower(anyString(fields["priority"]))
	if priority == "" {
		priority = "medium"
	}

	if sc.CMMS != nil {
		return s.fileCMMS(ctx, msg, sc, fields, title, description, priority)
	}
	return s.filePortable(ctx, msg, sc, fields, title, description, priority)
}

// extract runs the JSON-mode extraction. A parse failure is not an error:
// it degrades to a minimal record per the lax-JSON contract.
func (s *WorkOrderSkill) extract(ctx context.Context, sc *Context, text string) (map[string]any, error) {
	fallback := map[string]any{
		"title":       truncate(text, 100),
		"description": text,
		"priority":    "medium",
	}
	if sc.Router == nil {
		return fallback, nil
	}
	resp, err := sc.Router.Route(ctx, routing.RouteRequest{
		Intent:       messages.IntentWorkOrder,
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: text}},
		SystemPrompt: workOrderExtractionPrompt,
		JSONMode:     true,
	})
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(resp.Text), &fields); err != nil {
		if err := json.Unmarshal([]byte(stripFences(resp.Text)), &fields); err != nil {
			slog.Warn("work order extraction returned invalid JSON, using fallback record",
				"text", truncate(resp.Text, 200))
			return fallback, nil
		}
	}
	return fields, nil
}

// fileCMMS creates the work order in the connected CMMS and logs it in the
// local archive.
func (s *WorkOrderSkill) fileCMMS(ctx context.Context, msg messages.InboundMessage, sc *Context, fields map[string]any, title, description, priority string) (messages.OutboundMessage, error) {
	result, err := sc.CMMS.CreateWorkOrder(ctx, title, description, priority, 0)
	if err != nil {
		slog.Error("CMMS work order creation failed", "error", err)
		return messages.Reply(msg, fmt.Sprintf("Failed to create work order: %v", err)), nil
	}
	externalID := anyString(result["id"])
	if externalID == "" {
		externalID = "?"
	}

	if sc.Archive != nil {
		wo := buildWorkOrder(mintWorkOrderID(ctx, sc), msg, fields, title, description, priority)
		wo.CMMSSystem = "cmms"
		wo.CMMSExternalID = externalID
		if err := sc.Archive.RecordIssued(ctx, wo, "", ""); err != nil {
			slog.Warn("work order archive record failed", "error", err)
		}
	}

	reply := fmt.Sprintf("Work order created: #%s\n\n**%s**\nPriority: %s", externalID, title, priority)
	return messages.Reply(msg, reply), nil
}

// filePortable renders the portable document set and publishes it as a gist.
func (s *WorkOrderSkill) filePortable(ctx context.Context, msg messages.InboundMessage, sc *Context, fields map[string]any, title, description, priority string) (messages.OutboundMessage, error) {
	if sc.Publisher == nil || !sc.Publisher.IsConfigured() {
		return messages.Reply(msg, "Work order capture needs either a CMMS connection or a gist token. Neither is configured."), nil
	}

	wo := buildWorkOrder(mintWorkOrderID(ctx, sc), msg, fields, title, description, priority)

	files := make(map[string]connectors.GistFile)
	for name, content := range wo.Files(nil) {
		files[name] = connectors.GistFile{Content: content}
	}
	// Work orders carry asset and location data; keep the gist secret.
	gist, err := sc.Publisher.Create(ctx, wo.GistDescription(), false, files)
	if err != nil {
		slog.Error("work order gist upload failed", "id", wo.ID, "error", err)
		return messages.Reply(msg, fmt.Sprintf("Failed to create work order: %v", err)), nil
	}

	if sc.Archive != nil {
		if err := sc.Archive.RecordIssued(ctx, wo, gist.ID, gist.HTMLURL); err != nil {
			slog.Warn("work order archive record failed", "id", wo.ID, "error", err)
		}
	}
	slog.Info("portable work order issued", "id", wo.ID, "gist", gist.HTMLURL)

	reply := fmt.Sprintf("Work order created: **%s**\n\n**%s**\nPriority: %s\nStatus: open\n\nGist: %s",
		wo.ID, title, priority, gist.HTMLURL)
	return messages.Reply(msg, reply), nil
}

// buildWorkOrder maps the extraction onto the portable document fields.
func buildWorkOrder(id string, msg messages.InboundMessage, fields map[string]any, title, description, priority string) *workorder.WorkOrder {
	reportedBy := msg.UserName
	if reportedBy == "" {
		reportedBy = msg.UserID
	}
	if reportedBy == "" {
		reportedBy = "foreman"
	}
	return &workorder.WorkOrder{
		ID:          id,
		Title:       title,
		Status:      "open",
		Priority:    priority,
		AssetName:   anyString(fields["asset_name"]),
		AssetID:     anyString(fields["asset_id"]),
		Location:    anyString(fields["location"]),
		WorkType:    anyString(fields["work_type"]),
		Category:    anyString(fields["category"]),
		FailureCode: anyString(fields["failure_code"]),
		ReportedBy:  reportedBy,
		Channel:     msg.Channel.String(),
		CreatedDate: time.Now().UTC().Format(time.RFC3339),
		Description: description,
	}
}

// mintWorkOrderID takes the next daily-sequence identifier from the archive.
// Without an archive there is no counter; a time-derived suffix keeps the
// WO-YYYY-MMDD-NNN shape.
func mintWorkOrderID(ctx context.Context, sc *Context) string {
	now := time.Now()
	if sc.Archive != nil {
		id, err := sc.Archive.NextID(ctx, now)
		if err == nil {
			return id
		}
		slog.Warn("work order counter failed, using time-derived id", "error", err)
	}
	return fmt.Sprintf("WO-%s-%s-%03d", now.Format("2006"), now.Format("0102"), now.UnixNano()%1000)
}
