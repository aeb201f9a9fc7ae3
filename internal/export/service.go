// Package export produces XLSX case reports from persisted records.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"casetrace/internal/common"
	"casetrace/internal/repository"
)

// Service is a tiny façade over the case repository that produces XLSX bytes.
type Service struct {
	repo   repository.CaseRepository
	logger *slog.Logger
}

func NewService(repo repository.CaseRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportCaseXLSX returns a workbook with Summary, Timeline and Evidence
// sheets for the given case. Returns common.ErrNotFound when the case has not
// been extracted.
func (s *Service) ExportCaseXLSX(ctx context.Context, caseID string) ([]byte, error) {
	start := time.Now()

	rec, err := s.repo.GetByCaseID(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("query case: %w", err)
	}
	if rec == nil {
		return nil, common.ErrNotFound
	}

	f := excelize.NewFile()

	const summarySheet = "Summary"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	_ = f.SetCellValue(summarySheet, "A1", "Case ID")
	_ = f.SetCellValue(summarySheet, "B1", rec.CaseID)
	_ = f.SetCellValue(summarySheet, "A2", "Persisted At")
	_ = f.SetCellValue(summarySheet, "B2", rec.PersistedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A3", "Summary")
	_ = f.SetCellValue(summarySheet, "B3", rec.Summary)

	const timelineSheet = "Timeline"
	if _, err := f.NewSheet(timelineSheet); err != nil {
		return nil, err
	}
	timelineHeaders := []string{"Event ID", "Name", "Description", "Date", "Page Start", "Page End"}
	for i, h := range timelineHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(timelineSheet, cell, h)
	}
	for row, ev := range rec.Timeline {
		values := []any{ev.EventID, ev.Name, ev.Description, ev.Date, ev.PageStart, ev.PageEnd}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(timelineSheet, cell, v)
		}
	}

	const evidenceSheet = "Evidence"
	if _, err := f.NewSheet(evidenceSheet); err != nil {
		return nil, err
	}
	evidenceHeaders := []string{"Evidence ID", "Name", "Flaw", "Page Start", "Page End"}
	for i, h := range evidenceHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(evidenceSheet, cell, h)
	}
	for row, item := range rec.Evidence {
		values := []any{item.EvidenceID, item.Name, item.Flaw, item.PageStart, item.PageEnd}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(evidenceSheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("case exported",
		"case_id", caseID,
		"timeline_events", len(rec.Timeline),
		"evidence_items", len(rec.Evidence),
		"bytes", buf.Len(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
