package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mercator-hq/foreman/pkg/connectors"
)

// Pool bounds for the production knowledge base. The gateway is a light
// reader; a small pool keeps it from crowding the matrix service that owns
// the schema.
const (
	pgMinConns = 1
	pgMaxConns = 3
)

// atomColumns is the column set returned by the search operations. Nullable
// columns are coalesced because the schema is owned by the matrix service
// and carries NULLs in older rows.
const atomColumns = `atom_id, COALESCE(atom_type, ''), COALESCE(title, ''),
       COALESCE(summary, ''), COALESCE(content, ''), COALESCE(code, ''),
       COALESCE(symptoms, '{}'), COALESCE(causes, '{}'), COALESCE(fixes, '{}'),
       COALESCE(keywords, '{}'), COALESCE(difficulty, '')`

// Postgres is the production knowledge store backed by the shared
// PostgreSQL knowledge_atoms table.
type Postgres struct {
	url string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres-backed store for the given connection URL.
func NewPostgres(url string) *Postgres {
	return &Postgres{url: url}
}

// Name returns "knowledge".
func (p *Postgres) Name() string {
	return "knowledge"
}

// Connect establishes the connection pool and verifies it with a ping.
func (p *Postgres) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Postgres) connectLocked(ctx context.Context) error {
	cfg, err := pgxpool.ParseConfig(p.url)
	if err != nil {
		return fmt.Errorf("invalid knowledge database url: %w", err)
	}
	cfg.MinConns = pgMinConns
	cfg.MaxConns = pgMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create knowledge pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping knowledge database: %w", err)
	}

	p.pool = pool
	return nil
}

// Disconnect closes the connection pool.
func (p *Postgres) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
	return nil
}

// ensurePool returns the pool, reconnecting lazily when needed.
func (p *Postgres) ensurePool(ctx context.Context) (*pgxpool.Pool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pool == nil {
		if err := p.connectLocked(ctx); err != nil {
			return nil, &connectors.ConnectorUnavailableError{Connector: "knowledge", Reason: "not connected", Cause: err}
		}
	}
	return p.pool, nil
}

// Search runs websearch full text over title, summary, and content, ranked
// by relevance.
func (p *Postgres) Search(ctx context.Context, query string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT `+atomColumns+`,
		       ts_rank(
		           to_tsvector('english', title || ' ' || summary || ' ' || content),
		           websearch_to_tsquery('english', $1)
		       ) AS rank
		FROM knowledge_atoms
		WHERE to_tsvector('english', title || ' ' || summary || ' ' || content)
		      @@ websearch_to_tsquery('english', $1)
		ORDER BY rank DESC
		LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	return scanAtoms(rows, true)
}

// SearchByFaultCode finds atoms whose code column or keyword array matches
// the code exactly.
func (p *Postgres) SearchByFaultCode(ctx context.Context, code string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultFaultCodeLimit
	}
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT `+atomColumns+`
		FROM knowledge_atoms
		WHERE code = $1 OR $1 = ANY(keywords)
		LIMIT $2`,
		code, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge fault code search failed: %w", err)
	}
	return scanAtoms(rows, false)
}

// SearchBySymptoms finds atoms with a symptom containing the text, fault
// atoms first.
func (p *Postgres) SearchBySymptoms(ctx context.Context, symptom string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSymptomLimit
	}
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT `+atomColumns+`
		FROM knowledge_atoms
		WHERE EXISTS (
		    SELECT 1 FROM unnest(symptoms) s
		    WHERE s ILIKE '%' || $1 || '%'
		)
		ORDER BY atom_type = 'fault' DESC
		LIMIT $2`,
		symptom, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge symptom search failed: %w", err)
	}
	return scanAtoms(rows, false)
}

// GetByType returns the most recently updated atoms of one type. Only the
// headline columns are selected.
func (p *Postgres) GetByType(ctx context.Context, atomType string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultTypeLimit
	}
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT atom_id, COALESCE(atom_type, ''), COALESCE(title, ''),
		       COALESCE(summary, ''), COALESCE(code, ''),
		       COALESCE(keywords, '{}'), COALESCE(difficulty, '')
		FROM knowledge_atoms
		WHERE atom_type = $1
		ORDER BY updated_at DESC
		LIMIT $2`,
		atomType, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge get by type failed: %w", err)
	}
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		var a Atom
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Summary, &a.Code, &a.Keywords, &a.Difficulty); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

// FindByPart finds the one atom matching a vendor and part number. The part
// number may be stored in either the product or part_number column.
func (p *Postgres) FindByPart(ctx context.Context, vendor, partNumber string) (*Atom, error) {
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return nil, err
	}

	row := pool.QueryRow(ctx, `
		SELECT atom_id, COALESCE(atom_type, ''), COALESCE(vendor, ''),
		       COALESCE(product, ''), COALESCE(part_number, ''),
		       COALESCE(title, ''), COALESCE(summary, ''), COALESCE(content, ''),
		       COALESCE(keywords, '{}'), COALESCE(wiring_model, '{}'::jsonb),
		       COALESCE(manual_refs, '{}'), COALESCE(provenance, '[]'::jsonb),
		       COALESCE(needs_review, false)
		FROM knowledge_atoms
		WHERE vendor ILIKE $1 AND (product ILIKE $2 OR part_number ILIKE $2)
		LIMIT 1`,
		"%"+vendor+"%", "%"+partNumber+"%")

	var a Atom
	var wiringJSON, provJSON []byte
	err = row.Scan(&a.ID, &a.Type, &a.Vendor, &a.Product, &a.PartNumber,
		&a.Title, &a.Summary, &a.Content,
		&a.Keywords, &wiringJSON, &a.ManualRefs, &provJSON, &a.NeedsReview)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge part lookup failed: %w", err)
	}

	if err := json.Unmarshal(wiringJSON, &a.WiringModel); err != nil {
		a.WiringModel = map[string]any{}
	}
	if err := json.Unmarshal(provJSON, &a.Provenance); err != nil {
		a.Provenance = nil
	}
	return &a, nil
}

// InsertAtom persists a new atom and returns its id.
func (p *Postgres) InsertAtom(ctx context.Context, atom *Atom) (int64, error) {
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return 0, err
	}

	atomType := atom.Type
	if atomType == "" {
		atomType = TypeSpec
	}
	content := atom.Content
	if len(content) > ContentLimit {
		content = content[:ContentLimit]
	}

	var id int64
	err = pool.QueryRow(ctx, `
		INSERT INTO knowledge_atoms (
		    atom_type, vendor, product, part_number, title, summary, content,
		    keywords, wiring_model, manual_refs, provenance, needs_review
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING atom_id`,
		atomType, atom.Vendor, atom.Product, atom.PartNumber,
		atom.Title, atom.Summary, content,
		emptyIfNil(atom.Keywords), marshalObject(atom.WiringModel),
		emptyIfNil(atom.ManualRefs), marshalProvenance(atom.Provenance),
		atom.NeedsReview,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("knowledge insert failed: %w", err)
	}
	return id, nil
}

// UpdateAtom updates the mutable fields of an existing atom, appends the
// provenance entry, and records the conflict flag.
func (p *Postgres) UpdateAtom(ctx context.Context, id int64, update AtomUpdate, provenance *ProvenanceEntry, conflict bool) error {
	pool, err := p.ensurePool(ctx)
	if err != nil {
		return err
	}

	var provJSON any
	if provenance != nil {
		raw, err := json.Marshal([]ProvenanceEntry{*provenance})
		if err != nil {
			return fmt.Errorf("failed to marshal provenance: %w", err)
		}
		provJSON = string(raw)
	}

	var wiringJSON any
	if update.WiringModel != nil {
		wiringJSON = marshalObject(update.WiringModel)
	}

	tag, err := pool.Exec(ctx, `
		UPDATE knowledge_atoms SET
		    summary = COALESCE($2, summary),
		    content = COALESCE($3, content),
		    keywords = COALESCE($4, keywords),
		    wiring_model = COALESCE($5::jsonb, wiring_model),
		    manual_refs = COALESCE($6, manual_refs),
		    provenance = COALESCE(provenance, '[]'::jsonb) || COALESCE($7::jsonb, '[]'::jsonb),
		    needs_review = $8,
		    updated_at = now()
		WHERE atom_id = $1`,
		id,
		nilIfEmpty(update.Summary), nilIfEmpty(update.Content),
		nilIfEmptySlice(update.Keywords), wiringJSON,
		nilIfEmptySlice(update.ManualRefs), provJSON,
		conflict,
	)
	if err != nil {
		return fmt.Errorf("knowledge update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("knowledge atom %d not found", id)
	}
	return nil
}

// HealthCheck counts the atoms to verify the pool and the table.
func (p *Postgres) HealthCheck(ctx context.Context) connectors.Health {
	p.mu.Lock()
	pool := p.pool
	p.mu.Unlock()

	if pool == nil {
		return connectors.Health{
			Status: connectors.StatusUnhealthy,
			Detail: map[string]any{"error": "not connected"},
		}
	}

	var count int64
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM knowledge_atoms`).Scan(&count); err != nil {
		return connectors.Health{
			Status: connectors.StatusUnhealthy,
			Detail: map[string]any{"error": err.Error()},
		}
	}
	return connectors.Health{
		Status: connectors.StatusHealthy,
		Detail: map[string]any{"atoms": count},
	}
}

// scanAtoms drains rows produced with the atomColumns column set, plus the
// rank column when withRank is set.
func scanAtoms(rows pgx.Rows, withRank bool) ([]Atom, error) {
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		var a Atom
		dest := []any{&a.ID, &a.Type, &a.Title, &a.Summary, &a.Content, &a.Code,
			&a.Symptoms, &a.Causes, &a.Fixes, &a.Keywords, &a.Difficulty}
		if withRank {
			dest = append(dest, &a.Rank)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nilIfEmptySlice(s []string) any {
	if len(s) == 0 {
		return nil
	}
	return s
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func marshalObject(m map[string]any) string {
	if m == nil {
		return "{}"
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func marshalProvenance(entries []ProvenanceEntry) string {
	if entries == nil {
		return "[]"
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "[]"
	}
	return string(raw)
}
