package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/dialogue"
	"github.com/docufill/docufill/internal/extract"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := NewStore(Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDocumentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AddDocument(ctx, &Document{Name: "lease.txt", Content: "Hello [NAME]"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	doc, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.Name != "lease.txt" || doc.Content != "Hello [NAME]" {
		t.Errorf("round trip mismatch: %+v", doc)
	}
	if doc.ContentHash != ContentHash("Hello [NAME]") {
		t.Errorf("content hash not stored: %+v", doc)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestAddDocument_DedupesByContentHash(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, _ := s.AddDocument(ctx, &Document{Name: "a.txt", Content: "same content"})
	id2, err := s.AddDocument(ctx, &Document{Name: "b.txt", Content: "same content"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if id1 != id2 {
		t.Errorf("expected dedupe to return existing id %d, got %d", id1, id2)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetDocument(context.Background(), 999); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindDocumentByHash_MissIsNil(t *testing.T) {
	s := newTestStore(t)

	doc, err := s.FindDocumentByHash(context.Background(), "no-such-hash")
	if err != nil {
		t.Fatalf("FindDocumentByHash: %v", err)
	}
	if doc != nil {
		t.Errorf("expected nil on miss, got %+v", doc)
	}
}

func testSlots() []extract.Slot {
	return []extract.Slot{
		{ID: 0, Start: 6, End: 12, RawToken: "[NAME]", Type: extract.TypePersonName,
			Prompt: "Who?", Status: extract.StatusPending},
		{ID: 1, Start: 20, End: 26, RawToken: "[DATE]", Type: extract.TypeDate,
			Prompt: "When?", Status: extract.StatusPending},
	}
}

func TestSlots_ReplaceAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID, _ := s.AddDocument(ctx, &Document{Name: "d", Content: "Hello [NAME] until [DATE]"})

	if err := s.ReplaceSlots(ctx, docID, testSlots()); err != nil {
		t.Fatalf("ReplaceSlots: %v", err)
	}

	got, err := s.GetSlots(ctx, docID)
	if err != nil {
		t.Fatalf("GetSlots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if got[0].RawToken != "[NAME]" || got[0].Type != extract.TypePersonName || got[0].Prompt != "Who?" {
		t.Errorf("slot 0 mismatch: %+v", got[0])
	}

	// Re-extraction replaces the whole set.
	if err := s.ReplaceSlots(ctx, docID, testSlots()[:1]); err != nil {
		t.Fatalf("ReplaceSlots: %v", err)
	}
	got, _ = s.GetSlots(ctx, docID)
	if len(got) != 1 {
		t.Errorf("expected replacement to drop old slots, got %d", len(got))
	}
}

func TestUpdateSlot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID, _ := s.AddDocument(ctx, &Document{Name: "d", Content: "x"})
	s.ReplaceSlots(ctx, docID, testSlots())

	sl := testSlots()[0]
	sl.Value = "Jane Doe"
	sl.Status = extract.StatusFilled
	if err := s.UpdateSlot(ctx, docID, sl); err != nil {
		t.Fatalf("UpdateSlot: %v", err)
	}

	got, _ := s.GetSlots(ctx, docID)
	if got[0].Value != "Jane Doe" || got[0].Status != extract.StatusFilled {
		t.Errorf("update not persisted: %+v", got[0])
	}
	if got[1].Status != extract.StatusPending {
		t.Errorf("other slot disturbed: %+v", got[1])
	}

	sl.ID = 99
	if err := s.UpdateSlot(ctx, docID, sl); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("unknown slot: expected ErrNotFound, got %v", err)
	}
}

func TestSession_SaveLoadAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID, _ := s.AddDocument(ctx, &Document{Name: "d", Content: "x"})
	s.ReplaceSlots(ctx, docID, testSlots())

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := dialogue.NewSession("sess-1", docID, now)
	sess.State = dialogue.StateAwaitingInput
	sess.Cursor = 0
	sess.History = []dialogue.Message{
		{Role: dialogue.RoleAssistant, Text: "Who?", Timestamp: now, SlotID: 0},
	}

	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	// Append to history and save again; earlier messages must not duplicate.
	sess.History = append(sess.History,
		dialogue.Message{Role: dialogue.RoleUser, Text: "Jane", Timestamp: now.Add(time.Second), SlotID: 0},
		dialogue.Message{Role: dialogue.RoleAssistant, Text: "When?", Timestamp: now.Add(2 * time.Second), SlotID: 1},
	)
	sess.Cursor = 1
	if err := s.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession (second): %v", err)
	}

	got, err := s.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.DocumentID != docID || got.State != dialogue.StateAwaitingInput || got.Cursor != 1 {
		t.Errorf("session row mismatch: %+v", got)
	}
	if len(got.History) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got.History))
	}
	if got.History[1].Role != dialogue.RoleUser || got.History[1].Text != "Jane" {
		t.Errorf("message order mismatch: %+v", got.History)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetSession(context.Background(), "missing"); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID, _ := s.AddDocument(ctx, &Document{Name: "d", Content: "x"})

	now := time.Now().UTC()
	for _, id := range []string{"a", "b"} {
		sess := dialogue.NewSession(id, docID, now)
		if err := s.SaveSession(ctx, sess); err != nil {
			t.Fatalf("SaveSession(%s): %v", id, err)
		}
		now = now.Add(time.Minute)
	}

	sessions, err := s.ListSessions(ctx, docID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("expected 2 sessions, got %d", len(sessions))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1, err := NewStore(Config{DBPath: path})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	id, _ := s1.AddDocument(context.Background(), &Document{Name: "d", Content: "x"})
	s1.Close()

	s2, err := NewStore(Config{DBPath: path})
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	if _, err := s2.GetDocument(context.Background(), id); err != nil {
		t.Errorf("data lost across reopen: %v", err)
	}
}
