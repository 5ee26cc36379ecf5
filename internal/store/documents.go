package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docufill/docufill/internal/common"
)

// AddDocument inserts a document snapshot and returns its id. If a document
// with the same content hash already exists, the existing id is returned
// instead of creating a duplicate row.
func (s *SQLiteStore) AddDocument(ctx context.Context, d *Document) (int64, error) {
	if d.ContentHash == "" {
		d.ContentHash = ContentHash(d.Content)
	}

	existing, err := s.FindDocumentByHash(ctx, d.ContentHash)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (name, content, content_hash) VALUES (?, ?, ?)`,
		d.Name, d.Content, d.ContentHash,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading document id: %w", err)
	}
	d.ID = id
	return id, nil
}

// GetDocument retrieves a document by id.
func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	d := &Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, content_hash, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &d.Content, &d.ContentHash, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NotFoundf("document %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %d: %w", id, err)
	}
	return d, nil
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, content, content_hash, created_at
		 FROM documents ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d := &Document{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Content, &d.ContentHash, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// FindDocumentByHash looks up a document by content hash. Returns nil (not an
// error) when no document matches, so callers can branch on dedupe cheaply.
func (s *SQLiteStore) FindDocumentByHash(ctx context.Context, hash string) (*Document, error) {
	d := &Document{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, content, content_hash, created_at
		 FROM documents WHERE content_hash = ?`, hash,
	).Scan(&d.ID, &d.Name, &d.Content, &d.ContentHash, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying document by hash: %w", err)
	}
	return d, nil
}
