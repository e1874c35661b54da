// Package storage is the append-only audit log behind the pipeline. It is
// the source of truth for idempotency: a crash mid-pipeline leaves a
// consistent prefix of completed steps, and restart resumes from it.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS alerts (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  object_id TEXT NOT NULL,
  candid TEXT NOT NULL,
  topic TEXT NOT NULL,
  emitted_jd REAL NOT NULL,
  received_utc TEXT NOT NULL,
  payload_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_object_id ON alerts(object_id);
CREATE INDEX IF NOT EXISTS idx_alerts_emitted ON alerts(emitted_jd);

CREATE TABLE IF NOT EXISTS decisions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  object_id TEXT NOT NULL,
  candid TEXT NOT NULL,
  topic TEXT NOT NULL,
  decided_utc TEXT NOT NULL,
  passed INTEGER NOT NULL,
  reason TEXT NOT NULL,
  metrics_json TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_object_id ON decisions(object_id);
CREATE INDEX IF NOT EXISTS idx_decisions_passed ON decisions(passed);

CREATE TABLE IF NOT EXISTS registry_actions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  object_id TEXT NOT NULL,
  candid TEXT NOT NULL,
  action_utc TEXT NOT NULL,
  action TEXT NOT NULL,
  outcome TEXT NOT NULL,
  detail TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registry_actions_object_id ON registry_actions(object_id);
`

// Store wraps the SQLite audit database. Every insert commits before
// returning; there is no batching and nothing ever updates or deletes a row.
type Store struct {
	db *sql.DB
}

// Open creates or opens the audit database at path and applies the schema.
// Idempotent across restarts.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect audit db: %w", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
