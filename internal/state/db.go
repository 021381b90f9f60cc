// internal/state/db.go
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Match kinds recorded in the trigger log.
const (
	KindTimer = "timer"
	KindText  = "text"
)

// MatchRecord is one entry of the trigger log: a timer spawned or a text
// event shown because a line matched.
type MatchRecord struct {
	ID        int64     `json:"id"`
	MatchedAt time.Time `json:"matched_at"`
	TriggerID string    `json:"trigger_id"`
	Trigger   string    `json:"trigger"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Profile   string    `json:"profile,omitempty"`
	Line      string    `json:"line"`
}

// HistoryFilter narrows GetHistory. Zero fields match everything.
type HistoryFilter struct {
	Trigger string // name or ID
	Profile string
	Since   time.Time
	Limit   int
}

// DB wraps the SQLite database holding the trigger log and tailer
// checkpoints.
type DB struct {
	db *sql.DB
}

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS trigger_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    matched_at INTEGER NOT NULL,
    trigger_id TEXT NOT NULL,
    trigger_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    label TEXT,
    profile TEXT,
    line TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trigger_log_trigger ON trigger_log(trigger_id);
CREATE INDEX IF NOT EXISTS idx_trigger_log_profile ON trigger_log(profile);
CREATE INDEX IF NOT EXISTS idx_trigger_log_matched ON trigger_log(matched_at);

CREATE TABLE IF NOT EXISTS checkpoints (
    slug TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    signature TEXT NOT NULL,
    mod_time INTEGER NOT NULL,
    read_offset INTEGER NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Open opens or creates a state database at the given path.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// The tailer and the engine write from different goroutines.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if _, err := db.Exec(stateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	// Insert schema version if not present
	var count int
	db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count)
	if count == 0 {
		db.Exec("INSERT INTO schema_version (version) VALUES (1)")
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// RecordMatch stores a trigger log entry and returns its ID.
func (d *DB) RecordMatch(rec MatchRecord) (int64, error) {
	if rec.MatchedAt.IsZero() {
		rec.MatchedAt = time.Now()
	}
	result, err := d.db.Exec(`
		INSERT INTO trigger_log
		(matched_at, trigger_id, trigger_name, kind, label, profile, line)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.MatchedAt.UnixMilli(), rec.TriggerID, rec.Trigger, rec.Kind,
		rec.Label, rec.Profile, rec.Line,
	)
	if err != nil {
		return 0, fmt.Errorf("recording match: %w", err)
	}
	return result.LastInsertId()
}

// GetHistory returns trigger log entries, newest first.
func (d *DB) GetHistory(f HistoryFilter) ([]MatchRecord, error) {
	query := "SELECT id, matched_at, trigger_id, trigger_name, kind, label, profile, line FROM trigger_log WHERE 1=1"
	var args []any

	if f.Trigger != "" {
		query += " AND (trigger_id = ? OR trigger_name = ?)"
		args = append(args, f.Trigger, f.Trigger)
	}
	if f.Profile != "" {
		query += " AND profile = ?"
		args = append(args, f.Profile)
	}
	if !f.Since.IsZero() {
		query += " AND matched_at >= ?"
		args = append(args, f.Since.UnixMilli())
	}

	query += " ORDER BY matched_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var records []MatchRecord
	for rows.Next() {
		var r MatchRecord
		var ms int64
		var label, profile sql.NullString
		if err := rows.Scan(&r.ID, &ms, &r.TriggerID, &r.Trigger, &r.Kind,
			&label, &profile, &r.Line); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		r.MatchedAt = time.UnixMilli(ms)
		r.Label = label.String
		r.Profile = profile.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountsByTrigger returns how many log entries each trigger name has since
// the given time.
func (d *DB) CountsByTrigger(since time.Time) (map[string]int, error) {
	rows, err := d.db.Query(
		"SELECT trigger_name, COUNT(*) FROM trigger_log WHERE matched_at >= ? GROUP BY trigger_name",
		since.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("counting matches: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// Cleanup removes trigger log entries older than the specified number of days.
func (d *DB) Cleanup(retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result, err := d.db.Exec(
		"DELETE FROM trigger_log WHERE matched_at < ?", cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up history: %w", err)
	}
	return result.RowsAffected()
}
