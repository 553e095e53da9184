// Package workorder builds portable, CMMS-agnostic work-order documents:
// a Markdown render for humans, a one-row CSV any major CMMS can import,
// and an attachments manifest. Published together as a gist they form a
// stable work-order URL for sites without a CMMS integration.
package workorder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Columns is the canonical CSV column order. Importers key on these names;
// never reorder.
var Columns = []string{
	"work_order_id", "title", "status", "priority", "asset_name",
	"asset_id", "location", "site", "assigned_to", "assigned_team",
	"work_type", "category", "due_date", "created_date", "completed_date",
	"completed_by", "reported_by", "channel", "estimated_hours", "cost",
	"completion_notes", "failure_code", "description", "cmms_system",
	"cmms_external_id",
}

// Document file names inside the published gist.
const (
	MarkdownFile    = "work-order.md"
	CSVFile         = "work-order.csv"
	AttachmentsFile = "attachments.txt"
)

// WorkOrder carries every exportable work-order field. All fields are
// strings: the CSV row is the contract, and dates/costs pass through exactly
// as entered.
type WorkOrder struct {
	// ID is the work-order identifier, WO-YYYY-MMDD-NNN when issued by the
	// archive counter.
	ID string

	Title    string
	Status   string
	Priority string

	// Asset placement.
	AssetName string
	AssetID   string
	Location  string
	Site      string

	// Assignment and origin.
	AssignedTo   string
	AssignedTeam string
	ReportedBy   string
	Channel      string

	// Classification.
	WorkType    string
	Category    string
	FailureCode string

	// Schedule and effort.
	DueDate        string
	CreatedDate    string
	CompletedDate  string
	CompletedBy    string
	EstimatedHours string
	Cost           string

	CompletionNotes string
	Description     string

	// Target CMMS linkage, filled after import.
	CMMSSystem     string
	CMMSExternalID string
}

// Attachment is one referenced file (photo, manual page, diagram).
type Attachment struct {
	Type        string
	Description string
	URL         string
}

// row returns the field values in Columns order.
func (w *WorkOrder) row() []string {
	return []string{
		w.ID, w.Title, w.Status, w.Priority, w.AssetName,
		w.AssetID, w.Location, w.Site, w.AssignedTo, w.AssignedTeam,
		w.WorkType, w.Category, w.DueDate, w.CreatedDate, w.CompletedDate,
		w.CompletedBy, w.ReportedBy, w.Channel, w.EstimatedHours, w.Cost,
		w.CompletionNotes, w.FailureCode, w.Description, w.CMMSSystem,
		w.CMMSExternalID,
	}
}

// fieldMap keys every field by its CSV column name for template expansion.
func (w *WorkOrder) fieldMap() map[string]string {
	row := w.row()
	m := make(map[string]string, len(Columns))
	for i, col := range Columns {
		m[col] = row[i]
	}
	return m
}

// RenderCSV renders the header row plus one data row.
func (w *WorkOrder) RenderCSV() string {
	var buf strings.Builder
	cw := csv.NewWriter(&buf)
	cw.Write(Columns)
	cw.Write(w.row())
	cw.Flush()
	return buf.String()
}

// RenderMarkdown renders the human-readable document.
func (w *WorkOrder) RenderMarkdown(attachments []Attachment) string {
	values := w.fieldMap()
	values["attachments_section"] = attachmentsSection(attachments)
	return os.Expand(markdownTemplate, func(key string) string {
		return values[key]
	})
}

// RenderAttachments renders the attachments.txt manifest. The manifest is a
// plain type,description,url line list, not escaped CSV.
func RenderAttachments(attachments []Attachment) string {
	lines := []string{"type,description,url"}
	for _, att := range attachments {
		lines = append(lines, att.Type+","+att.Description+","+att.URL)
	}
	return strings.Join(lines, "\n") + "\n"
}

// Files renders the full three-file document set keyed by gist file name.
func (w *WorkOrder) Files(attachments []Attachment) map[string]string {
	return map[string]string{
		MarkdownFile:    w.RenderMarkdown(attachments),
		CSVFile:         w.RenderCSV(),
		AttachmentsFile: RenderAttachments(attachments),
	}
}

// GistDescription is the one-line gist description shown in listings.
func (w *WorkOrder) GistDescription() string {
	title := w.Title
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("[Foreman Work Order] %s — %s", w.ID, title)
}

func attachmentsSection(attachments []Attachment) string {
	if len(attachments) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(attachments))
	for _, att := range attachments {
		typ := att.Type
		if typ == "" {
			typ = "file"
		}
		lines = append(lines, fmt.Sprintf("- **%s**: %s — %s", typ, att.Description, att.URL))
	}
	return strings.Join(lines, "\n")
}

const markdownTemplate = `# Work Order ${work_order_id}

## ${title}

| | |
|---|---|
| **Status** | ${status} |
| **Priority** | ${priority} |
| **Work Type** | ${work_type} |
| **Category** | ${category} |
| **Failure Code** | ${failure_code} |

## Asset

| | |
|---|---|
| **Asset** | ${asset_name} |
| **Asset ID** | ${asset_id} |
| **Location** | ${location} |
| **Site** | ${site} |

## Assignment

| | |
|---|---|
| **Assigned To** | ${assigned_to} |
| **Team** | ${assigned_team} |
| **Reported By** | ${reported_by} |
| **Channel** | ${channel} |

## Schedule

| | |
|---|---|
| **Created** | ${created_date} |
| **Due** | ${due_date} |
| **Completed** | ${completed_date} |
| **Completed By** | ${completed_by} |
| **Estimated Hours** | ${estimated_hours} |
| **Cost** | ${cost} |

## Description

${description}

## Completion Notes

${completion_notes}

## Attachments

${attachments_section}

---
CMMS: ${cmms_system} | External ID: ${cmms_external_id}
`
