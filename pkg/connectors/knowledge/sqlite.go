package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/foreman/pkg/connectors"
)

// sqliteBusyTimeout is how long to wait for locks before failing.
const sqliteBusyTimeout = 5 * time.Second

// SQLite is the single-site knowledge store: one database file, WAL mode,
// LIKE-based matching instead of full text. Suitable where no shared
// PostgreSQL knowledge base exists.
type SQLite struct {
	path string

	mu sync.Mutex
	db *sql.DB
}

// NewSQLite creates a sqlite-backed store for the given database file.
func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Name returns "knowledge".
func (s *SQLite) Name() string {
	return "knowledge"
}

// Connect opens the database file and creates the schema if needed.
func (s *SQLite) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked()
}

func (s *SQLite) connectLocked() error {
	if s.path == "" {
		return fmt.Errorf("knowledge sqlite path cannot be empty")
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		s.path, int(sqliteBusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open knowledge database: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initSchema(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize knowledge schema: %w", err)
	}

	s.db = db
	return nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS knowledge_atoms (
		atom_id INTEGER PRIMARY KEY AUTOINCREMENT,
		atom_type TEXT NOT NULL DEFAULT 'spec',
		vendor TEXT NOT NULL DEFAULT '',
		product TEXT NOT NULL DEFAULT '',
		part_number TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL DEFAULT '',
		symptoms TEXT NOT NULL DEFAULT '[]',
		causes TEXT NOT NULL DEFAULT '[]',
		fixes TEXT NOT NULL DEFAULT '[]',
		keywords TEXT NOT NULL DEFAULT '[]',
		difficulty TEXT NOT NULL DEFAULT '',
		wiring_model TEXT NOT NULL DEFAULT '{}',
		manual_refs TEXT NOT NULL DEFAULT '[]',
		provenance TEXT NOT NULL DEFAULT '[]',
		needs_review INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_atom_type ON knowledge_atoms(atom_type);
	CREATE INDEX IF NOT EXISTS idx_atom_code ON knowledge_atoms(code);
	CREATE INDEX IF NOT EXISTS idx_updated_at ON knowledge_atoms(updated_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Disconnect closes the database.
func (s *SQLite) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		err = s.db.Close()
		s.db = nil
	}
	return err
}

// ensureDB returns the handle, reconnecting lazily when needed.
func (s *SQLite) ensureDB() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		if err := s.connectLocked(); err != nil {
			return nil, &connectors.ConnectorUnavailableError{Connector: "knowledge", Reason: "not connected", Cause: err}
		}
	}
	return s.db, nil
}

// sqliteAtomColumns is the column set returned by the search operations.
const sqliteAtomColumns = `atom_id, atom_type, title, summary, content, code,
       symptoms, causes, fixes, keywords, difficulty`

// Search matches the query as a case-insensitive substring of title,
// summary, or content, newest atoms first.
func (s *SQLite) Search(ctx context.Context, query string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+sqliteAtomColumns+`
		FROM knowledge_atoms
		WHERE lower(title || ' ' || summary || ' ' || content) LIKE '%' || lower(?1) || '%'
		ORDER BY updated_at DESC
		LIMIT ?2`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}
	return scanSQLiteAtoms(rows)
}

// SearchByFaultCode finds atoms whose code matches exactly or whose keyword
// list contains the code.
func (s *SQLite) SearchByFaultCode(ctx context.Context, code string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultFaultCodeLimit
	}
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	// Keywords are stored as a JSON array, so an exact element match is a
	// quoted substring match.
	rows, err := db.QueryContext(ctx, `
		SELECT `+sqliteAtomColumns+`
		FROM knowledge_atoms
		WHERE code = ?1 OR keywords LIKE '%"' || ?1 || '"%'
		LIMIT ?2`,
		code, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge fault code search failed: %w", err)
	}
	return scanSQLiteAtoms(rows)
}

// SearchBySymptoms finds atoms with a symptom containing the text, fault
// atoms first.
func (s *SQLite) SearchBySymptoms(ctx context.Context, symptom string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultSymptomLimit
	}
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+sqliteAtomColumns+`
		FROM knowledge_atoms
		WHERE lower(symptoms) LIKE '%' || lower(?1) || '%'
		ORDER BY (atom_type = 'fault') DESC
		LIMIT ?2`,
		symptom, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge symptom search failed: %w", err)
	}
	return scanSQLiteAtoms(rows)
}

// GetByType returns the most recently updated atoms of one type.
func (s *SQLite) GetByType(ctx context.Context, atomType string, limit int) ([]Atom, error) {
	if limit <= 0 {
		limit = DefaultTypeLimit
	}
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT atom_id, atom_type, title, summary, code, keywords, difficulty
		FROM knowledge_atoms
		WHERE atom_type = ?1
		ORDER BY updated_at DESC
		LIMIT ?2`,
		atomType, limit)
	if err != nil {
		return nil, fmt.Errorf("knowledge get by type failed: %w", err)
	}
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		var a Atom
		var keywordsJSON string
		if err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Summary, &a.Code, &keywordsJSON, &a.Difficulty); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		a.Keywords = decodeList(keywordsJSON)
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

// FindByPart finds the one atom matching a vendor and part number.
func (s *SQLite) FindByPart(ctx context.Context, vendor, partNumber string) (*Atom, error) {
	db, err := s.ensureDB()
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT atom_id, atom_type, vendor, product, part_number, title, summary,
		       content, keywords, wiring_model, manual_refs, provenance, needs_review
		FROM knowledge_atoms
		WHERE lower(vendor) LIKE '%' || lower(?1) || '%'
		  AND (lower(product) LIKE '%' || lower(?2) || '%'
		       OR lower(part_number) LIKE '%' || lower(?2) || '%')
		LIMIT 1`,
		vendor, partNumber)

	var a Atom
	var keywordsJSON, wiringJSON, refsJSON, provJSON string
	err = row.Scan(&a.ID, &a.Type, &a.Vendor, &a.Product, &a.PartNumber,
		&a.Title, &a.Summary, &a.Content,
		&keywordsJSON, &wiringJSON, &refsJSON, &provJSON, &a.NeedsReview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge part lookup failed: %w", err)
	}

	a.Keywords = decodeList(keywordsJSON)
	a.ManualRefs = decodeList(refsJSON)
	a.WiringModel = decodeMap(wiringJSON)
	_ = json.Unmarshal([]byte(provJSON), &a.Provenance)
	return &a, nil
}

// InsertAtom persists a new atom and returns its id.
func (s *SQLite) InsertAtom(ctx context.Context, atom *Atom) (int64, error) {
	db, err := s.ensureDB()
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

	res, err := db.ExecContext(ctx, `
		INSERT INTO knowledge_atoms (
		    atom_type, vendor, product, part_number, title, summary, content,
		    code, symptoms, causes, fixes, keywords, difficulty,
		    wiring_model, manual_refs, provenance, needs_review, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		atomType, atom.Vendor, atom.Product, atom.PartNumber,
		atom.Title, atom.Summary, content,
		atom.Code, encodeList(atom.Symptoms), encodeList(atom.Causes),
		encodeList(atom.Fixes), encodeList(atom.Keywords), atom.Difficulty,
		marshalObject(atom.WiringModel), encodeList(atom.ManualRefs),
		marshalProvenance(atom.Provenance), atom.NeedsReview, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("knowledge insert failed: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("knowledge insert id unavailable: %w", err)
	}
	return id, nil
}

// UpdateAtom updates the mutable fields of an existing atom, appends the
// provenance entry, and records the conflict flag.
func (s *SQLite) UpdateAtom(ctx context.Context, id int64, update AtomUpdate, provenance *ProvenanceEntry, conflict bool) error {
	db, err := s.ensureDB()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("knowledge update failed: %w", err)
	}
	defer tx.Rollback()

	var provJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT provenance FROM knowledge_atoms WHERE atom_id = ?`, id).Scan(&provJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("knowledge atom %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("knowledge update failed: %w", err)
	}

	var entries []ProvenanceEntry
	_ = json.Unmarshal([]byte(provJSON), &entries)
	if provenance != nil {
		entries = append(entries, *provenance)
	}
	newProv, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal provenance: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE knowledge_atoms SET
		    summary = COALESCE(?, summary),
		    content = COALESCE(?, content),
		    keywords = COALESCE(?, keywords),
		    wiring_model = COALESCE(?, wiring_model),
		    manual_refs = COALESCE(?, manual_refs),
		    provenance = ?,
		    needs_review = ?,
		    updated_at = ?
		WHERE atom_id = ?`,
		textOrNil(update.Summary), textOrNil(update.Content),
		listOrNil(update.Keywords), mapOrNil(update.WiringModel),
		listOrNil(update.ManualRefs), string(newProv),
		conflict, time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("knowledge update failed: %w", err)
	}

	return tx.Commit()
}

// HealthCheck counts the atoms to verify the database file.
func (s *SQLite) HealthCheck(ctx context.Context) connectors.Health {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()

	if db == nil {
		return connectors.Health{
			Status: connectors.StatusUnhealthy,
			Detail: map[string]any{"error": "not connected"},
		}
	}

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM knowledge_atoms`).Scan(&count); err != nil {
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

func scanSQLiteAtoms(rows *sql.Rows) ([]Atom, error) {
	defer rows.Close()

	var atoms []Atom
	for rows.Next() {
		var a Atom
		var symptomsJSON, causesJSON, fixesJSON, keywordsJSON string
		err := rows.Scan(&a.ID, &a.Type, &a.Title, &a.Summary, &a.Content, &a.Code,
			&symptomsJSON, &causesJSON, &fixesJSON, &keywordsJSON, &a.Difficulty)
		if err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		a.Symptoms = decodeList(symptomsJSON)
		a.Causes = decodeList(causesJSON)
		a.Fixes = decodeList(fixesJSON)
		a.Keywords = decodeList(keywordsJSON)
		atoms = append(atoms, a)
	}
	return atoms, rows.Err()
}

func encodeList(items []string) string {
	if items == nil {
		return "[]"
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(raw string) []string {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}

func decodeMap(raw string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil || m == nil {
		return map[string]any{}
	}
	return m
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func listOrNil(items []string) any {
	if len(items) == 0 {
		return nil
	}
	return encodeList(items)
}

func mapOrNil(m map[string]any) any {
	if m == nil {
		return nil
	}
	return marshalObject(m)
}
