package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/dialogue"
)

// GetSession loads a session with its full message history.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*dialogue.Session, error) {
	sess := &dialogue.Session{}
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, document_id, state, cursor_ix, created_at, updated_at
		 FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&sess.ID, &sess.DocumentID, &state, &sess.Cursor,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, common.NotFoundf("session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying session %s: %w", sessionID, err)
	}
	sess.State = dialogue.State(state)

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, text, slot_ix, created_at
		 FROM messages WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m dialogue.Message
		var role string
		if err := rows.Scan(&role, &m.Text, &m.SlotID, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		m.Role = dialogue.Role(role)
		sess.History = append(sess.History, m)
	}
	return sess, rows.Err()
}

// SaveSession upserts the session row and appends any history messages not yet
// persisted. History is append-only, so the delta is everything past the
// stored message count.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *dialogue.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning session transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (session_id, document_id, state, cursor_ix, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			state = excluded.state,
			cursor_ix = excluded.cursor_ix,
			updated_at = excluded.updated_at`,
		sess.ID, sess.DocumentID, string(sess.State), sess.Cursor,
		sess.CreatedAt, sess.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upserting session %s: %w", sess.ID, err)
	}

	var persisted int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE session_id = ?`, sess.ID,
	).Scan(&persisted); err != nil {
		return fmt.Errorf("counting messages for session %s: %w", sess.ID, err)
	}
	if persisted > len(sess.History) {
		return fmt.Errorf("session %s: stored history (%d) longer than in-memory history (%d)",
			sess.ID, persisted, len(sess.History))
	}

	for _, m := range sess.History[persisted:] {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO messages (session_id, role, text, slot_ix, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, string(m.Role), m.Text, m.SlotID, m.Timestamp,
		); err != nil {
			return fmt.Errorf("appending message for session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing session %s: %w", sess.ID, err)
	}
	return nil
}

// ListSessions returns the sessions bound to a document, newest first.
// Histories are not loaded; use GetSession for the full transcript.
func (s *SQLiteStore) ListSessions(ctx context.Context, documentID int64) ([]*dialogue.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, document_id, state, cursor_ix, created_at, updated_at
		 FROM sessions WHERE document_id = ? ORDER BY updated_at DESC`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var sessions []*dialogue.Session
	for rows.Next() {
		sess := &dialogue.Session{}
		var state string
		if err := rows.Scan(&sess.ID, &sess.DocumentID, &state, &sess.Cursor,
			&sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sess.State = dialogue.State(state)
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
