package store

import (
	"context"
	"fmt"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/extract"
)

// ReplaceSlots swaps the full slot set for a document in one transaction.
// Re-extraction of a document replaces its slots wholesale; any previously
// filled values are discarded with them.
func (s *SQLiteStore) ReplaceSlots(ctx context.Context, documentID int64, slots []extract.Slot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning slot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM slots WHERE document_id = ?`, documentID,
	); err != nil {
		return fmt.Errorf("clearing slots for document %d: %w", documentID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO slots (document_id, slot_ix, start_off, end_off, raw_token,
			inferred_type, prompt, value, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing slot insert: %w", err)
	}
	defer stmt.Close()

	for _, sl := range slots {
		if _, err := stmt.ExecContext(ctx,
			documentID, sl.ID, sl.Start, sl.End, sl.RawToken,
			string(sl.Type), sl.Prompt, sl.Value, string(sl.Status),
		); err != nil {
			return fmt.Errorf("inserting slot %d: %w", sl.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing slots: %w", err)
	}
	return nil
}

// GetSlots returns all slots for a document in position order.
func (s *SQLiteStore) GetSlots(ctx context.Context, documentID int64) ([]extract.Slot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot_ix, start_off, end_off, raw_token, inferred_type, prompt, value, status
		 FROM slots WHERE document_id = ? ORDER BY slot_ix`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying slots for document %d: %w", documentID, err)
	}
	defer rows.Close()

	var slots []extract.Slot
	for rows.Next() {
		var sl extract.Slot
		var typ, status string
		if err := rows.Scan(&sl.ID, &sl.Start, &sl.End, &sl.RawToken,
			&typ, &sl.Prompt, &sl.Value, &status); err != nil {
			return nil, fmt.Errorf("scanning slot row: %w", err)
		}
		sl.Type = extract.SlotType(typ)
		sl.Status = extract.Status(status)
		slots = append(slots, sl)
	}
	return slots, rows.Err()
}

// UpdateSlot persists one slot's value and status.
func (s *SQLiteStore) UpdateSlot(ctx context.Context, documentID int64, slot extract.Slot) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE slots SET value = ?, status = ?
		 WHERE document_id = ? AND slot_ix = ?`,
		slot.Value, string(slot.Status), documentID, slot.ID,
	)
	if err != nil {
		return fmt.Errorf("updating slot %d: %w", slot.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking slot update: %w", err)
	}
	if n == 0 {
		return common.NotFoundf("slot %d of document %d", slot.ID, documentID)
	}
	return nil
}
