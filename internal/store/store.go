// Package store provides the SQLite storage layer for docufill.
//
// All engine data lives in a single SQLite database file:
// - Document snapshots (original text with provenance)
// - Extracted slots and their fill state
// - Conversation sessions with their append-only message history
//
// The core packages define these record shapes; this package only persists
// them.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docufill/docufill/internal/dialogue"
	"github.com/docufill/docufill/internal/extract"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.docufill/docufill.db"

// Document is one immutable document snapshot.
type Document struct {
	ID          int64
	Name        string
	Content     string
	ContentHash string
	CreatedAt   time.Time
}

// Store defines the persistence interface consumed by the CLI and the MCP
// server.
type Store interface {
	// Documents
	AddDocument(ctx context.Context, d *Document) (int64, error)
	GetDocument(ctx context.Context, id int64) (*Document, error)
	ListDocuments(ctx context.Context) ([]*Document, error)
	FindDocumentByHash(ctx context.Context, hash string) (*Document, error)

	// Slots
	ReplaceSlots(ctx context.Context, documentID int64, slots []extract.Slot) error
	GetSlots(ctx context.Context, documentID int64) ([]extract.Slot, error)
	UpdateSlot(ctx context.Context, documentID int64, slot extract.Slot) error

	// Sessions
	GetSession(ctx context.Context, sessionID string) (*dialogue.Session, error)
	SaveSession(ctx context.Context, sess *dialogue.Session) error
	ListSessions(ctx context.Context, documentID int64) ([]*dialogue.Session, error)

	Close() error
}

// Config holds configuration for NewStore.
type Config struct {
	DBPath string
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore opens (creating if needed) a SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg Config) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = expandPath(DefaultDBPath)
	}

	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ContentHash returns the canonical content hash for dedupe lookups.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
