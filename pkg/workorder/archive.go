package workorder

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// archiveBusyTimeout is how long a locked database blocks a writer before
// failing.
const archiveBusyTimeout = 5 * time.Second

const archiveSchema = `
CREATE TABLE IF NOT EXISTS wo_counter (
	day TEXT PRIMARY KEY,
	seq INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS issued_orders (
	work_order_id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	priority TEXT NOT NULL DEFAULT '',
	asset_name TEXT NOT NULL DEFAULT '',
	reported_by TEXT NOT NULL DEFAULT '',
	channel TEXT NOT NULL DEFAULT '',
	gist_id TEXT NOT NULL DEFAULT '',
	gist_url TEXT NOT NULL DEFAULT '',
	cmms_system TEXT NOT NULL DEFAULT '',
	cmms_external_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issued_created ON issued_orders(created_at);
`

// Archive persists the daily work-order counter and a log of every issued
// document in one sqlite file, so IDs stay unique across restarts.
type Archive struct {
	mu sync.Mutex
	db *sql.DB
}

// IssuedRecord is one row of the issued-document log.
type IssuedRecord struct {
	ID         string
	Title      string
	Status     string
	Priority   string
	AssetName  string
	ReportedBy string
	Channel    string

	// GistID and GistURL point at the published document set; empty when
	// the order went to a CMMS directly.
	GistID  string
	GistURL string

	CMMSSystem     string
	CMMSExternalID string

	CreatedAt time.Time
}

// OpenArchive opens (creating if needed) the archive database at path.
func OpenArchive(path string) (*Archive, error) {
	if path == "" {
		return nil, fmt.Errorf("work order archive path cannot be empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open work order archive: %w", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", archiveBusyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec(archiveSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize work order archive schema: %w", err)
	}

	slog.Info("work order archive ready", "path", path)
	return &Archive{db: db}, nil
}

// NextID issues the next work-order ID for the given day, WO-YYYY-MMDD-NNN.
// The sequence resets daily and survives restarts.
func (a *Archive) NextID(ctx context.Context, now time.Time) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	day := now.Format("20060102")
	var seq int
	err := a.db.QueryRowContext(ctx, `
		INSERT INTO wo_counter (day, seq) VALUES (?, 1)
		ON CONFLICT(day) DO UPDATE SET seq = seq + 1
		RETURNING seq`, day).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("failed to advance work order counter: %w", err)
	}

	return fmt.Sprintf("WO-%s-%s-%03d", now.Format("2006"), now.Format("0102"), seq), nil
}

// RecordIssued logs a published work order. Re-recording the same ID
// replaces the row, so a later gist update refreshes the log entry.
func (a *Archive) RecordIssued(ctx context.Context, wo *WorkOrder, gistID, gistURL string) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO issued_orders (
			work_order_id, title, status, priority, asset_name,
			reported_by, channel, gist_id, gist_url,
			cmms_system, cmms_external_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wo.ID, wo.Title, wo.Status, wo.Priority, wo.AssetName,
		wo.ReportedBy, wo.Channel, gistID, gistURL,
		wo.CMMSSystem, wo.CMMSExternalID, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record issued work order %s: %w", wo.ID, err)
	}
	return nil
}

// Recent returns the latest issued work orders, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]IssuedRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT work_order_id, title, status, priority, asset_name,
		       reported_by, channel, gist_id, gist_url,
		       cmms_system, cmms_external_id, created_at
		FROM issued_orders
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list issued work orders: %w", err)
	}
	defer rows.Close()

	var records []IssuedRecord
	for rows.Next() {
		var rec IssuedRecord
		var createdNano int64
		if err := rows.Scan(
			&rec.ID, &rec.Title, &rec.Status, &rec.Priority, &rec.AssetName,
			&rec.ReportedBy, &rec.Channel, &rec.GistID, &rec.GistURL,
			&rec.CMMSSystem, &rec.CMMSExternalID, &createdNano,
		); err != nil {
			return nil, fmt.Errorf("failed to scan issued work order: %w", err)
		}
		rec.CreatedAt = time.Unix(0, createdNano)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db == nil {
		return nil
	}
	_, _ = a.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := a.db.Close()
	a.db = nil
	return err
}
