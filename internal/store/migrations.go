package store

import (
	"database/sql"
	"fmt"
)

// bootstrapDDL creates the full schema for a fresh database. Statements are
// idempotent (IF NOT EXISTS) so re-running against an existing database is
// harmless.
var bootstrapDDL = []string{
	`CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS slots (
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		slot_ix INTEGER NOT NULL,
		start_off INTEGER NOT NULL,
		end_off INTEGER NOT NULL,
		raw_token TEXT NOT NULL,
		inferred_type TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		value TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING'
			CHECK(status IN ('PENDING','FILLED','SKIPPED')),
		PRIMARY KEY (document_id, slot_ix)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_slots_status
		ON slots(document_id, status)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		state TEXT NOT NULL
			CHECK(state IN ('IDLE','AWAITING_INPUT','COMPLETE')),
		cursor_ix INTEGER NOT NULL DEFAULT -1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_document
		ON sessions(document_id)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK(role IN ('user','assistant')),
		text TEXT NOT NULL,
		slot_ix INTEGER NOT NULL DEFAULT -1,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_session
		ON messages(session_id, id)`,
}

// migrate brings the database schema up to date. A fresh database gets the
// full bootstrap DDL; the meta table records which phases have run so future
// schema evolutions can key off it.
func (s *SQLiteStore) migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range bootstrapDDL {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("bootstrap statement %d: %w", i, err)
		}
	}

	if err := setMetaFlag(tx, "schema_bootstrap", "1"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration: %w", err)
	}
	return nil
}

func setMetaFlag(tx *sql.Tx, key, value string) error {
	_, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("setting meta flag %s: %w", key, err)
	}
	return nil
}
