package export

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/docufill/docufill/internal/common"
	"github.com/docufill/docufill/internal/extract"
	"github.com/docufill/docufill/internal/store"
)

func TestExportSlotsXLSX(t *testing.T) {
	st, err := store.NewStore(store.Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	docID, _ := st.AddDocument(ctx, &store.Document{Name: "lease.txt", Content: "Hello [NAME], pay [RENT]"})
	slots := []extract.Slot{
		{ID: 0, Start: 6, End: 12, RawToken: "[NAME]", Type: extract.TypePersonName,
			Prompt: "Who?", Value: "Jane Doe", Status: extract.StatusFilled},
		{ID: 1, Start: 18, End: 24, RawToken: "[RENT]", Type: extract.TypeMonetaryAmount,
			Prompt: "How much?", Status: extract.StatusPending},
	}
	if err := st.ReplaceSlots(ctx, docID, slots); err != nil {
		t.Fatalf("ReplaceSlots: %v", err)
	}

	data, err := NewService(st, nil).ExportSlotsXLSX(ctx, docID)
	if err != nil {
		t.Fatalf("ExportSlotsXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("opening workbook: %v", err)
	}
	defer f.Close()

	const sheet = "Slots"
	if got, _ := f.GetCellValue(sheet, "B1"); got != "Placeholder" {
		t.Errorf("header B1: got %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "B2"); got != "[NAME]" {
		t.Errorf("B2: got %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "F2"); got != "Jane Doe" {
		t.Errorf("F2: got %q", got)
	}
	if got, _ := f.GetCellValue(sheet, "E3"); got != "PENDING" {
		t.Errorf("E3: got %q", got)
	}
}

func TestExportSlotsXLSX_UnknownDocument(t *testing.T) {
	st, err := store.NewStore(store.Config{DBPath: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()

	if _, err := NewService(st, nil).ExportSlotsXLSX(context.Background(), 42); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
