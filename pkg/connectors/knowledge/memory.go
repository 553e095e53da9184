package knowledge

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"mercator-hq/foreman/pkg/connectors"
)

// Memory is the in-memory knowledge store used by tests and by installs
// with no knowledge database configured. All data is lost on restart.
type Memory struct {
	mu     sync.RWMutex
	atoms  map[int64]*memoryAtom
	nextID int64
}

type memoryAtom struct {
	atom      Atom
	updatedAt time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{atoms: map[int64]*memoryAtom{}, nextID: 1}
}

// Name returns "knowledge".
func (m *Memory) Name() string {
	return "knowledge"
}

// Connect is a no-op.
func (m *Memory) Connect(ctx context.Context) error {
	return nil
}

// Disconnect is a no-op.
func (m *Memory) Disconnect() error {
	return nil
}

// Search matches the query as a case-insensitive substring of title,
// summary, or content, newest atoms first.
func (m *Memory) Search(ctx context.Context, query string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	needle := strings.ToLower(query)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryAtom
	for _, rec := range m.atoms {
		haystack := strings.ToLower(rec.atom.Title + " " + rec.atom.Summary + " " + rec.atom.Content)
		if strings.Contains(haystack, needle) {
			matched = append(matched, rec)
		}
	}
	sortNewestFirst(matched)
	return collect(matched, limit), nil
}

// SearchByFaultCode finds atoms whose code or keyword list matches exactly.
func (m *Memory) SearchByFaultCode(ctx context.Context, code string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultFaultCodeLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryAtom
	for _, rec := range m.atoms {
		if rec.atom.Code == code || containsString(rec.atom.Keywords, code) {
			matched = append(matched, rec)
		}
	}
	sortByID(matched)
	return collect(matched, limit), nil
}

// SearchBySymptoms finds atoms with a symptom containing the text, fault
// atoms first.
func (m *Memory) SearchBySymptoms(ctx context.Context, symptom string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSymptomLimit
	}
	needle := strings.ToLower(symptom)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryAtom
	for _, rec := range m.atoms {
		for _, s := range rec.atom.Symptoms {
			if strings.Contains(strings.ToLower(s), needle) {
				matched = append(matched, rec)
				break
			}
		}
	}
	sortByID(matched)
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].atom.Type == TypeFault && matched[j].atom.Type != TypeFault
	})
	return collect(matched, limit), nil
}

// GetByType returns the most recently updated atoms of one type.
func (m *Memory) GetByType(ctx context.Context, atomType string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultTypeLimit
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryAtom
	for _, rec := range m.atoms {
		if rec.atom.Type == atomType {
			matched = append(matched, rec)
		}
	}
	sortNewestFirst(matched)
	return collect(matched, limit), nil
}

// FindByPart finds the one atom matching a vendor and part number.
func (m *Memory) FindByPart(ctx context.Context, vendor, partNumber string) (*Atom, error) {
	v := strings.ToLower(vendor)
	pn := strings.ToLower(partNumber)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*memoryAtom
	for _, rec := range m.atoms {
		if !strings.Contains(strings.ToLower(rec.atom.Vendor), v) {
			continue
		}
		if strings.Contains(strings.ToLower(rec.atom.Product), pn) ||
			strings.Contains(strings.ToLower(rec.atom.PartNumber), pn) {
			matched = append(matched, rec)
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}
	sortByID(matched)
	found := cloneAtom(matched[0].atom)
	return &found, nil
}

// InsertAtom persists a new atom and returns its id.
func (m *Memory) InsertAtom(ctx context.Context, atom *Atom) (int64, error) {
	stored := cloneAtom(*atom)
	if stored.Type == "" {
		stored.Type = TypeSpec
	}
	if len(stored.Content) > ContentLimit {
		stored.Content = stored.Content[:ContentLimit]
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored.ID = m.nextID
	m.nextID++
	m.atoms[stored.ID] = &memoryAtom{atom: stored, updatedAt: time.Now()}
	return stored.ID, nil
}

// UpdateAtom updates the mutable fields of an existing atom, appends the
// provenance entry, and records the conflict flag.
func (m *Memory) UpdateAtom(ctx context.Context, id int64, update AtomUpdate, provenance *ProvenanceEntry, conflict bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.atoms[id]
	if !ok {
		return fmt.Errorf("knowledge atom %d not found", id)
	}

	if update.Summary != "" {
		rec.atom.Summary = update.Summary
	}
	if update.Content != "" {
		rec.atom.Content = update.Content
	}
	if len(update.Keywords) > 0 {
		rec.atom.Keywords = append([]string(nil), update.Keywords...)
	}
	if update.WiringModel != nil {
		rec.atom.WiringModel = cloneMap(update.WiringModel)
	}
	if len(update.ManualRefs) > 0 {
		rec.atom.ManualRefs = append([]string(nil), update.ManualRefs...)
	}
	if provenance != nil {
		rec.atom.Provenance = append(rec.atom.Provenance, *provenance)
	}
	rec.atom.NeedsReview = conflict
	rec.updatedAt = time.Now()
	return nil
}

// HealthCheck reports the atom count.
func (m *Memory) HealthCheck(ctx context.Context) connectors.Health {
	m.mu.RLock()
	count := len(m.atoms)
	m.mu.RUnlock()

	return connectors.Health{
		Status: connectors.StatusHealthy,
		Detail: map[string]any{"atoms": count},
	}
}

func sortNewestFirst(recs []*memoryAtom) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].updatedAt.Equal(recs[j].updatedAt) {
			return recs[i].updatedAt.After(recs[j].updatedAt)
		}
		return recs[i].atom.ID > recs[j].atom.ID
	})
}

func sortByID(recs []*memoryAtom) {
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].atom.ID < recs[j].atom.ID
	})
}

func collect(recs []*memoryAtom, limit int) []Atom {
	if len(recs) > limit {
		recs = recs[:limit]
	}
	atoms := make([]Atom, 0, len(recs))
	for _, rec := range recs {
		atoms = append(atoms, cloneAtom(rec.atom))
	}
	return atoms
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

func cloneAtom(a Atom) Atom {
	a.Symptoms = append([]string(nil), a.Symptoms...)
	a.Causes = append([]string(nil), a.Causes...)
	a.Fixes = append([]string(nil), a.Fixes...)
	a.Keywords = append([]string(nil), a.Keywords...)
	a.ManualRefs = append([]string(nil), a.ManualRefs...)
	a.Provenance = append([]ProvenanceEntry(nil), a.Provenance...)
	a.WiringModel = cloneMap(a.WiringModel)
	return a
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
