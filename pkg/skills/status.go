package skills

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"mercator-hq/foreman/pkg/messages"
)

// StatusSkill renders the latest telemetry snapshot as a sorted key:value
// summary. No model call; raw readings are what the technician asked for.
type StatusSkill struct{}

// NewStatusSkill returns the live-status skill.
func NewStatusSkill() *StatusSkill { return &StatusSkill{} }

func (s *StatusSkill) Name() string { return "status" }

func (s *StatusSkill) Description() string {
	return "Show live PLC tags and I/O status"
}

func (s *StatusSkill) Intents() []messages.Intent {
	return []messages.Intent{messages.IntentStatus}
}

func (s *StatusSkill) Handle(ctx context.Context, msg messages.InboundMessage, sc *Context) (messages.OutboundMessage, error) {
	if sc.Telemetry == nil {
		return messages.Reply(msg, "Matrix API not configured."), nil
	}
	snapshots, err := sc.Telemetry.GetLatestTags(ctx, sc.nodeFor(msg), 1)
	if err != nil {
		slog.Warn("status read failed", "error", err)
		return messages.Reply(msg, "No tag data available."), nil
	}
	if len(snapshots) == 0 || len(snapshots[0]) == 0 {
		return messages.Reply(msg, "No tag data available."), nil
	}
	return messages.Reply(msg, formatTagSummary(snapshots[0])), nil
}

// formatTagSummary renders one snapshot sorted by tag name. Booleans and 0/1
// numerics render ON/OFF, fractional floats to two decimals; reserved keys
// (id, timestamp, node_id, _-prefixed) are skipped.
func formatTagSummary(tags map[string]any) string {
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if key == "id" || key == "timestamp" || key == "node_id" || strings.HasPrefix(key, "_") {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := []string{"**Equipment Status**", ""}
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s: %s", key, displayValue(tags[key])))
	}
	return strings.Join(lines, "\n")
}

// displayValue renders one tag value for the status summary.
func displayValue(v any) string {
	switch t := v.(type) {
	case bool:
		return onOff(t)
	case float64:
		if t == 0 || t == 1 {
			return onOff(t == 1)
		}
		if t == math.Trunc(t) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%.2f", t)
	case int:
		if t == 0 || t == 1 {
			return onOff(t == 1)
		}
		return fmt.Sprintf("%d", t)
	default:
		return fmt.Sprint(v)
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
