// Package enrich turns component photos into knowledge-base atoms.
//
// The pipeline runs four strictly sequential stages: ingest (vision OCR on
// the photo), augment (search the KB for data the photo cannot show),
// synthesize (merge both into one canonical atom), and upsert (insert or
// update the stored atom). Every stage degrades instead of failing: a dead
// vision provider falls through to the next one, a failed KB lookup
// enriches from the photo alone, and a failed write still reports the
// identification to the user.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"mercator-hq/foreman/pkg/connectors/knowledge"
	"mercator-hq/foreman/pkg/providers"
)

// visionMaxTokens is the reply budget for extraction calls. The JSON for a
// busy nameplate runs long.
const visionMaxTokens = 4096

// visionSystemPrompt primes the model as a nameplate reader.
const visionSystemPrompt = "You are an expert industrial electrician analyzing a close-up photograph " +
	"of an electrical component. Extract all visible data from the nameplate, " +
	"terminals, and any markings. Be precise — only report what you can see."

// visionUserPrompt is the extraction request sent with every photo. The
// JSON skeleton pins the reply shape so the repair ladder rarely runs.
const visionUserPrompt = `Analyze this close-up photo of an electrical component.

Extract everything visible:
1. **Nameplate**: manufacturer, product name, part number, catalog number
2. **Ratings**: voltage, current, power, frequency, coil voltage, trip range
3. **Terminals**: numbered terminal IDs visible on the device
4. **Component type**: What kind of device is this? (contactor, overload relay, circuit breaker, VFD, motor starter, transformer, terminal block, sensor, switch, indicator, fuse, etc.)
5. **Any wiring diagram** printed on the device itself

RESPOND IN JSON ONLY:
{
  "vendor": "manufacturer name",
  "product": "product name or series",
  "part_number": "exact part/catalog number",
  "component_type": "type of device",
  "ratings": {
    "voltage": "rated voltage or null",
    "current": "rated current or null",
    "power": "rated power or null",
    "frequency": "frequency or null",
    "coil_voltage": "coil voltage or null",
    "trip_range": "overload trip range or null"
  },
  "terminals": {
    "1": {"label": "L1 or description"},
    "2": {"label": "T1 or description"}
  },
  "wiring_diagram": {
    "coil_terminals": ["A1", "A2"],
    "power_poles": [["1","2"], ["3","4"], ["5","6"]],
    "aux_contacts": [["13","14"]],
    "notes": "any diagram text"
  },
  "additional_text": "any other text visible on the component",
  "confidence": 0.8
}

IMPORTANT:
- Only report what you can actually READ on the component.
- If a field is not visible, use null.
- Terminal labels like L1/T1 are standard IEC designations.`

// Request describes one enrichment run.
type Request struct {
	// PhotoPath is the component photo on disk.
	PhotoPath string

	// Tag optionally hints at the equipment tag the component carries
	// (e.g. "K1").
	Tag string

	// PhotoID identifies the photo in provenance records; empty falls
	// back to the file name without extension.
	PhotoID string

	// SkipUpsert runs the pipeline without writing to the store (dry run).
	SkipUpsert bool
}

// Result is what the pipeline learned about one photo.
type Result struct {
	// AtomID is the stored atom, zero when nothing was written.
	AtomID int64

	Vendor        string
	Product       string
	PartNumber    string
	ComponentType string

	// IsNew and WasUpdated report which write path ran.
	IsNew      bool
	WasUpdated bool

	// NeedsReview is set when vision and KB wiring data disagreed.
	NeedsReview bool

	// Summary is the one-line outcome shown to the technician.
	Summary string

	// RawVision is the parsed vision extraction, kept for debugging.
	RawVision map[string]any

	// KBMatches are the atoms the augment stage found.
	KBMatches []knowledge.Atom

	// Draft is the merged atom the upsert stage wrote (or would write).
	Draft *AtomDraft
}

// AtomDraft is the canonical merge of vision and KB data produced by the
// synthesize stage.
type AtomDraft struct {
	// ExistingID is the atom the augment stage matched, zero for a new
	// component.
	ExistingID int64

	// Conflict is set when vision and KB disagree on the wiring model.
	Conflict bool

	// ComponentType, Ratings, and Terminals fold into Atom.Content; they
	// are kept structured for the result summary.
	ComponentType string
	Ratings       map[string]any
	Terminals     map[string]any

	Atom knowledge.Atom
}

// Pipeline runs the four enrichment stages. Vision providers are tried in
// order until one answers. A nil store disables augment and upsert.
type Pipeline struct {
	vision []providers.Provider
	store  knowledge.Store
}

// NewPipeline creates a Pipeline over the given vision providers and store.
func NewPipeline(vision []providers.Provider, store knowledge.Store) *Pipeline {
	return &Pipeline{vision: vision, store: store}
}

// Enrich runs the full pipeline on one photo. It returns an error only when
// the photo cannot be read; provider and store failures degrade to a result
// built from whatever data survived.
func (p *Pipeline) Enrich(ctx context.Context, req Request) (*Result, error) {
	slog.Info("starting enrichment pipeline", "photo", req.PhotoPath)

	vision, err := p.ingest(ctx, req.PhotoPath, req.Tag)
	if err != nil {
		return nil, err
	}

	matches := p.augment(ctx, vision)
	draft := p.synthesize(vision, matches, req.PhotoPath, req.PhotoID)

	var atomID int64
	var isNew, wasUpdated bool
	if req.SkipUpsert {
		slog.Info("upsert skipped", "reason", "dry run")
	} else {
		atomID = p.upsert(ctx, draft)
		if atomID != 0 && draft.ExistingID == 0 {
			isNew = true
		} else if atomID != 0 {
			wasUpdated = true
		}
	}

	summary := resultSummary(draft, isNew, wasUpdated)
	slog.Info("enrichment complete", "summary", summary)

	return &Result{
		AtomID:        atomID,
		Vendor:        draft.Atom.Vendor,
		Product:       draft.Atom.Product,
		PartNumber:    draft.Atom.PartNumber,
		ComponentType: draft.ComponentType,
		IsNew:         isNew,
		WasUpdated:    wasUpdated,
		NeedsReview:   draft.Atom.NeedsReview,
		Summary:       summary,
		RawVision:     vision,
		KBMatches:     matches,
		Draft:         draft,
	}, nil
}

// ingest runs vision OCR on the photo, trying each provider in order. The
// first provider that answers wins even when its reply needs repair; only
// call failures fall through. All providers failing yields an empty
// extraction rather than an error.
func (p *Pipeline) ingest(ctx context.Context, photoPath, tag string) (map[string]any, error) {
	data, err := os.ReadFile(photoPath)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	prompt := visionUserPrompt
	if tag != "" {
		prompt += fmt.Sprintf("\n\nHINT: The component may be tagged as: %s", tag)
	}

	req := &providers.VisionRequest{
		Messages:     []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		Images:       [][]byte{data},
		MIME:         photoMIME(photoPath),
		SystemPrompt: visionSystemPrompt,
		MaxTokens:    visionMaxTokens,
	}

	for _, prov := range p.vision {
		if !prov.IsAvailable() || !prov.SupportsVision() {
			slog.Debug("vision provider not usable, skipping", "provider", prov.Name())
			continue
		}
		resp, err := prov.CompleteWithVision(ctx, req)
		if err != nil {
			slog.Warn("vision extraction failed, trying next provider",
				"provider", prov.Name(), "error", err)
			continue
		}
		return parseExtraction(resp.Text), nil
	}

	slog.Warn("no vision provider could read the photo", "photo", photoPath)
	return emptyExtraction(), nil
}

// parseExtraction decodes a model reply. Multi-component replies (a
// top-level array) collapse to their first entry.
func parseExtraction(text string) map[string]any {
	parsed, ok := repairJSON(text)
	if !ok {
		slog.Warn("vision reply is not JSON after repair", "raw", truncate(text, 200))
		return emptyExtraction()
	}
	switch v := parsed.(type) {
	case map[string]any:
		return v
	case []any:
		if len(v) == 0 {
			return map[string]any{}
		}
		slog.Info("vision returned multiple components, enriching the first", "count", len(v))
		if m, ok := v[0].(map[string]any); ok {
			return m
		}
		return map[string]any{}
	default:
		slog.Warn("vision reply is not a JSON object", "raw", truncate(text, 200))
		return emptyExtraction()
	}
}

// augment searches the store for data the photo cannot show (full wiring
// models, manual references). An exact vendor and part match wins; anything
// else falls back to full-text search. Lookup failures yield an empty
// match list.
func (p *Pipeline) augment(ctx context.Context, vision map[string]any) []knowledge.Atom {
	vendor := stringField(vision, "vendor")
	product := stringField(vision, "product")
	partNumber := stringField(vision, "part_number")

	if vendor == "" && partNumber == "" {
		return nil
	}
	if p.store == nil {
		return nil
	}

	if vendor != "" && partNumber != "" {
		exact, err := p.store.FindByPart(ctx, vendor, partNumber)
		if err != nil {
			slog.Debug("part lookup failed", "error", err)
		} else if exact != nil {
			return []knowledge.Atom{*exact}
		}
	}

	terms := strings.Join(nonEmpty(vendor, product, partNumber), " ")
	if terms == "" {
		return nil
	}
	matches, err := p.store.Search(ctx, terms, 3)
	if err != nil {
		slog.Debug("augment search failed", "error", err)
		return nil
	}
	return matches
}

// synthesize merges vision and KB data into one canonical draft. Vision
// wins for everything visible on the nameplate; the KB fills fields the
// photo cannot show. Wiring models are never auto-merged: when both sides
// have one and they differ, the draft is flagged for review.
func (p *Pipeline) synthesize(vision map[string]any, matches []knowledge.Atom, photoPath, photoID string) *AtomDraft {
	vendor := stringField(vision, "vendor")
	product := stringField(vision, "product")
	partNumber := stringField(vision, "part_number")
	componentType := stringField(vision, "component_type")
	ratings := cleanRatings(mapField(vision, "ratings"))
	terminals := mapField(vision, "terminals")
	wiring := mapField(vision, "wiring_diagram")

	var existingID int64
	var conflict bool
	var manualRefs, kbKeywords []string

	for i := range matches {
		match := &matches[i]
		existingID = match.ID

		if vendor == "" {
			vendor = match.Vendor
		}
		if product == "" {
			product = match.Product
		}
		if partNumber == "" {
			partNumber = match.PartNumber
		}

		if len(match.WiringModel) > 0 {
			if len(wiring) == 0 {
				wiring = match.WiringModel
			} else if !reflect.DeepEqual(wiring, match.WiringModel) {
				conflict = true
				slog.Info("wiring model conflict", "vendor", vendor, "part_number", partNumber)
			}
		}

		manualRefs = append(manualRefs, match.ManualRefs...)
		kbKeywords = append(kbKeywords, match.Keywords...)
	}

	keywords := uniqueNonEmpty(append([]string{partNumber, vendor, componentType, product}, kbKeywords...))
	content := buildContent(vendor, product, partNumber, componentType, ratings, terminals, wiring)

	title := strings.TrimSpace(vendor + " " + product)
	if title == "" {
		title = strings.TrimSpace(vendor + " " + partNumber)
	}

	source := "photo_enrichment"
	if strings.Contains(strings.ToLower(photoPath), "telegram") {
		source = "telegram_photo"
	}
	if photoID == "" {
		photoID = strings.TrimSuffix(filepath.Base(photoPath), filepath.Ext(photoPath))
	}

	return &AtomDraft{
		ExistingID:    existingID,
		Conflict:      conflict,
		ComponentType: componentType,
		Ratings:       ratings,
		Terminals:     terminals,
		Atom: knowledge.Atom{
			Type:        knowledge.TypeSpec,
			Vendor:      vendor,
			Product:     product,
			PartNumber:  partNumber,
			Title:       title,
			Summary:     buildSummary(vendor, product, partNumber, componentType, ratings),
			Content:     truncate(content, knowledge.ContentLimit),
			Keywords:    keywords,
			WiringModel: wiring,
			ManualRefs:  manualRefs,
			Provenance: []knowledge.ProvenanceEntry{{
				Source:    source,
				PhotoID:   photoID,
				Timestamp: time.Now().Format(time.RFC3339),
			}},
			NeedsReview: conflict,
		},
	}
}

// upsert writes the draft to the store: an update with appended provenance
// when augment matched an existing atom, an insert otherwise. A write
// failure returns zero so the identification still reaches the user.
func (p *Pipeline) upsert(ctx context.Context, draft *AtomDraft) int64 {
	if p.store == nil {
		slog.Warn("no knowledge store configured, skipping upsert")
		return 0
	}

	if draft.ExistingID != 0 {
		update := knowledge.AtomUpdate{
			Summary:     draft.Atom.Summary,
			Content:     draft.Atom.Content,
			Keywords:    draft.Atom.Keywords,
			WiringModel: draft.Atom.WiringModel,
			ManualRefs:  draft.Atom.ManualRefs,
		}
		var prov *knowledge.ProvenanceEntry
		if len(draft.Atom.Provenance) > 0 {
			prov = &draft.Atom.Provenance[0]
		}
		if err := p.store.UpdateAtom(ctx, draft.ExistingID, update, prov, draft.Conflict); err != nil {
			slog.Warn("knowledge atom update failed", "atom_id", draft.ExistingID, "error", err)
			return 0
		}
		slog.Info("updated knowledge atom", "atom_id", draft.ExistingID, "conflict", draft.Conflict)
		return draft.ExistingID
	}

	id, err := p.store.InsertAtom(ctx, &draft.Atom)
	if err != nil {
		slog.Error("knowledge atom insert failed", "error", err)
		return 0
	}
	slog.Info("created knowledge atom",
		"atom_id", id, "vendor", draft.Atom.Vendor, "product", draft.Atom.Product)
	return id
}

// resultSummary phrases the pipeline outcome for the technician.
func resultSummary(draft *AtomDraft, isNew, wasUpdated bool) string {
	vendor := draft.Atom.Vendor
	name := draft.Atom.Product
	if name == "" {
		name = draft.Atom.PartNumber
	}
	terminals := len(draft.Terminals)

	switch {
	case isNew:
		return fmt.Sprintf("New component: %s %s (%s). Added to KB with %d terminals.",
			vendor, name, draft.ComponentType, terminals)
	case wasUpdated && draft.Atom.NeedsReview:
		return fmt.Sprintf("Known component: %s %s. Conflicting data detected — flagged for review.",
			vendor, name)
	case wasUpdated:
		return fmt.Sprintf("Known component: %s %s. Updated with new photo data.", vendor, name)
	default:
		return fmt.Sprintf("Identified: %s %s (%s, %d terminals).",
			vendor, name, draft.ComponentType, terminals)
	}
}

// buildContent renders the merged data as the human-readable atom body.
func buildContent(vendor, product, partNumber, componentType string, ratings, terminals, wiring map[string]any) string {
	var parts []string

	if componentType != "" {
		parts = append(parts, "Component Type: "+componentType)
	}
	if vendor != "" {
		parts = append(parts, "Vendor: "+vendor)
	}
	if product != "" {
		parts = append(parts, "Product: "+product)
	}
	if partNumber != "" {
		parts = append(parts, "Part Number: "+partNumber)
	}

	if len(ratings) > 0 {
		parts = append(parts, "", "Ratings:")
		for _, key := range sortedKeys(ratings) {
			if v := ratings[key]; truthy(v) {
				parts = append(parts, fmt.Sprintf("  %s: %s", ratingLabel(key), render(v)))
			}
		}
	}

	if len(terminals) > 0 {
		parts = append(parts, "", "Terminal Layout:")
		for _, tid := range sortedKeys(terminals) {
			label := ""
			if m, ok := terminals[tid].(map[string]any); ok {
				label, _ = m["label"].(string)
			} else {
				label = render(terminals[tid])
			}
			parts = append(parts, fmt.Sprintf("  Terminal %s: %s", tid, label))
		}
	}

	if len(wiring) > 0 {
		parts = append(parts, "", "Wiring Model:")
		if encoded, err := json.MarshalIndent(wiring, "", "  "); err == nil {
			parts = append(parts, string(encoded))
		}
	}

	return strings.Join(parts, "\n")
}

// buildSummary renders the short one-line atom summary.
func buildSummary(vendor, product, partNumber, componentType string, ratings map[string]any) string {
	var parts []string
	if vendor != "" {
		parts = append(parts, vendor)
	}
	if product != "" {
		parts = append(parts, product)
	} else if partNumber != "" {
		parts = append(parts, partNumber)
	}
	if componentType != "" {
		parts = append(parts, "("+componentType+")")
	}
	if v := ratings["current"]; truthy(v) {
		parts = append(parts, render(v))
	}
	if v := ratings["voltage"]; truthy(v) {
		parts = append(parts, render(v))
	}
	if len(parts) == 0 {
		return "Unknown component"
	}
	return strings.Join(parts, " ")
}

// emptyExtraction is the all-fields-blank shape later stages expect when no
// provider produced usable data.
func emptyExtraction() map[string]any {
	return map[string]any{
		"vendor":         "",
		"product":        "",
		"part_number":    "",
		"component_type": "",
		"ratings":        map[string]any{},
		"terminals":      map[string]any{},
		"wiring_diagram": map[string]any{},
		"confidence":     0.0,
	}
}

// photoMIME maps a photo file extension to its media type.
func photoMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// cleanRatings drops absent rating entries.
func cleanRatings(ratings map[string]any) map[string]any {
	clean := make(map[string]any, len(ratings))
	for k, v := range ratings {
		if truthy(v) {
			clean[k] = v
		}
	}
	return clean
}

// ratingLabel renders a ratings key like "coil_voltage" as "Coil Voltage".
func ratingLabel(key string) string {
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// stringField pulls a string out of a loosely typed vision reply. Null and
// wrong-typed values read as empty.
func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// mapField pulls a nested object out of a loosely typed vision reply.
func mapField(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}

// truthy reports whether a vision JSON value carries data. Models emit
// null, "", 0, and empty containers interchangeably for absent fields.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	}
	return true
}

// render formats a vision JSON scalar for display.
func render(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// nonEmpty filters out empty strings, preserving order.
func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// uniqueNonEmpty deduplicates keywords, keeping first-seen order.
func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// sortedKeys returns m's keys in lexical order for stable output.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncate caps s at n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
