// Package knowledge provides the knowledge-atom store: full-text and
// structured lookups for the diagnostic path plus the write operations the
// photo-enrichment pipeline needs.
//
// Three backends implement the same Store interface: postgres (production,
// tsquery full text), sqlite (single-site deployments, LIKE matching), and
// an in-memory store for tests and unconfigured installs.
package knowledge

import (
	"context"
	"fmt"

	"mercator-hq/foreman/pkg/connectors"
)

// Atom types stored in the knowledge base.
const (
	TypeSpec            = "spec"
	TypeFault           = "fault"
	TypePattern         = "pattern"
	TypeConcept         = "concept"
	TypeProcedure       = "procedure"
	TypeChecklist       = "checklist"
	TypeTroubleshooting = "troubleshooting"
	TypeFaultCode       = "fault_code"
)

// Default result limits per operation.
const (
	DefaultSearchLimit    = 5
	DefaultFaultCodeLimit = 3
	DefaultSymptomLimit   = 5
	DefaultTypeLimit      = 20
)

// ContentLimit caps the stored content field on insert.
const ContentLimit = 5000

// ProvenanceEntry records where a piece of atom data came from.
type ProvenanceEntry struct {
	Source    string `json:"source"`
	PhotoID   string `json:"photo_id"`
	Timestamp string `json:"timestamp"`
}

// Atom is one knowledge-base record: a component spec, a fault entry, a
// procedure, or any of the other atom types.
type Atom struct {
	// ID is the opaque store identity. Zero means not yet persisted.
	ID int64

	// Type is one of the Type* constants.
	Type string

	// Vendor, Product, and PartNumber identify a physical component for
	// spec atoms.
	Vendor     string
	Product    string
	PartNumber string

	Title   string
	Summary string
	Content string

	// Code is the fault code for fault atoms (join key from the detector).
	Code string

	Symptoms []string
	Causes   []string
	Fixes    []string
	Keywords []string

	// Difficulty grades how hard the fix is.
	Difficulty string

	// WiringModel is the structured wiring representation for spec atoms.
	WiringModel map[string]any

	// ManualRefs lists manual sections backing this atom.
	ManualRefs []string

	// Provenance records every source that contributed data.
	Provenance []ProvenanceEntry

	// NeedsReview is set when merged sources conflicted.
	NeedsReview bool

	// Rank is the relevance score assigned by full-text search, zero
	// elsewhere.
	Rank float64
}

// AtomUpdate carries the mutable fields of an update. Zero-valued fields
// keep the stored value.
type AtomUpdate struct {
	Summary     string
	Content     string
	Keywords    []string
	WiringModel map[string]any
	ManualRefs  []string
}

// Store is the knowledge-base contract. Read operations serve the
// diagnostic and chat paths; FindByPart, InsertAtom, and UpdateAtom serve
// the enrichment pipeline.
type Store interface {
	connectors.Connector

	// Search runs full-text search over title, summary, and content,
	// ranked by relevance.
	Search(ctx context.Context, query string, limit int) ([]Atom, error)

	// SearchByFaultCode finds atoms whose code or keywords match exactly.
	SearchByFaultCode(ctx context.Context, code string, limit int) ([]Atom, error)

	// SearchBySymptoms finds atoms with a symptom containing the text,
	// fault atoms first.
	SearchBySymptoms(ctx context.Context, symptom string, limit int) ([]Atom, error)

	// GetByType returns the most recently updated atoms of one type.
	GetByType(ctx context.Context, atomType string, limit int) ([]Atom, error)

	// FindByPart finds the one atom matching a vendor and part number, or
	// nil when there is none.
	FindByPart(ctx context.Context, vendor, partNumber string) (*Atom, error)

	// InsertAtom persists a new atom and returns its id.
	InsertAtom(ctx context.Context, atom *Atom) (int64, error)

	// UpdateAtom updates the mutable fields of an existing atom, appends
	// the provenance entry when non-nil, and records the conflict flag as
	// needs_review.
	UpdateAtom(ctx context.Context, id int64, update AtomUpdate, provenance *ProvenanceEntry, conflict bool) error
}

// Config selects and configures a knowledge backend.
type Config struct {
	// Backend is postgres, sqlite, or memory. Empty means memory.
	Backend string `yaml:"backend"`

	// URL is the postgres connection string.
	URL string `yaml:"url"`

	// Path is the sqlite database file path.
	Path string `yaml:"path"`
}

// New creates the configured Store. The returned store is not yet
// connected.
func New(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "postgres":
		return NewPostgres(cfg.URL), nil
	case "sqlite":
		return NewSQLite(cfg.Path), nil
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown knowledge backend %q", cfg.Backend)
	}
}
