// Package export produces XLSX slot reports for documents.
package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/docufill/docufill/internal/store"
)

// Service is a tiny facade over the store that produces XLSX bytes for slot
// reports.
type Service struct {
	store store.Store
	log   *zap.SugaredLogger
}

func NewService(st store.Store, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{store: st, log: log}
}

// ExportSlotsXLSX returns an XLSX workbook listing every slot of a document
// with its type, prompt, fill state, and value. Useful as a review sheet
// before assembly.
func (s *Service) ExportSlotsXLSX(ctx context.Context, documentID int64) ([]byte, error) {
	start := time.Now()

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading document: %w", err)
	}
	slots, err := s.store.GetSlots(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading slots: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Slots"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	// Drop the default sheet so the workbook opens on Slots.
	if index, _ := f.GetSheetIndex("Sheet1"); index != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Slot",
		"Placeholder",
		"Type",
		"Prompt",
		"Status",
		"Value",
		"Position",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, sl := range slots {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		write(1, sl.ID)
		write(2, sl.RawToken)
		write(3, string(sl.Type))
		write(4, sl.Prompt)
		write(5, string(sl.Status))
		write(6, sl.Value)
		write(7, fmt.Sprintf("%d..%d", sl.Start, sl.End))

		row++
	}

	_ = f.SetColWidth(sheet, "B", "B", 24) // placeholder
	_ = f.SetColWidth(sheet, "C", "C", 18) // type
	_ = f.SetColWidth(sheet, "D", "D", 48) // prompt
	_ = f.SetColWidth(sheet, "F", "F", 32) // value

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}

	s.log.Infow("exported slot report",
		"document_id", documentID,
		"document", doc.Name,
		"slots", len(slots),
		"elapsed", time.Since(start),
	)
	return buf.Bytes(), nil
}
