package reporting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mamadbah2/mouldtrack/internal/domain/models"
	repo "github.com/mamadbah2/mouldtrack/internal/repository/sheets"
)

const (
	timeLayout    = "2006-01-02 15:04"
	workbookSheet = "Shift"
	defaultRange  = "Shifts!A:J"
	headerRow     = 1
)

// ErrExportDisabled is returned when no spreadsheet is configured.
var ErrExportDisabled = errors.New("sheet export is not configured")

var headers = []string{"Generated", "Kind", "Unit", "Target/batch", "Started", "Ended", "Duration", "Loss", "Achieved", "Stage"}

// DetailSource lists the batch details of one collection.
type DetailSource interface {
	Details(kind models.UnitKind) []models.BatchDetail
}

// Service builds shift reports from the current batch details.
type Service struct {
	details    DetailSource
	repo       repo.Repository
	sheetRange string
	location   *time.Location
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a new reporting service instance. A nil repository
// disables the sheet export.
func NewService(details DetailSource, repository repo.Repository, sheetRange string, location *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sheetRange == "" {
		sheetRange = defaultRange
	}
	if location == nil {
		location = time.UTC
	}
	return &Service{
		details:    details,
		repo:       repository,
		sheetRange: sheetRange,
		location:   location,
		logger:     logger,
		now:        time.Now,
	}
}

// Build collects the details of both collections and totals them. Achieved
// quantities only count once a batch has ended.
func (s *Service) Build() models.ShiftReport {
	report := models.ShiftReport{GeneratedAt: s.now().In(s.location)}

	for _, kind := range []models.UnitKind{models.KindGrouped, models.KindUngrouped} {
		for _, d := range s.details.Details(kind) {
			report.Rows = append(report.Rows, d)
			report.TotalTarget = report.TotalTarget.Add(d.TargetQuantityPerBatch)

			switch d.Stage {
			case models.StageStarted:
				report.InProgress++
			case models.StageEnded, models.StageLossRecorded:
				report.Completed++
				report.TotalAchieved = report.TotalAchieved.Add(d.AchievedQuantity)
				if d.ProductionLoss != nil {
					report.TotalLoss = report.TotalLoss.Add(*d.ProductionLoss)
				}
			}
		}
	}

	return report
}

// ExportToSheet appends one row per unit to the configured spreadsheet range.
// Units already exported under the same generation time are skipped, so a
// rerun within the same minute does not duplicate rows.
func (s *Service) ExportToSheet(ctx context.Context) (int, error) {
	if s.repo == nil {
		return 0, ErrExportDisabled
	}

	report := s.Build()
	rows := s.Rows(report)
	if len(rows) == 0 {
		s.logger.Info("shift report skipped, no units listed")
		return 0, nil
	}

	existing, err := s.repo.ReadRange(ctx, s.sheetRange)
	if err != nil {
		return 0, fmt.Errorf("read exported rows: %w", err)
	}
	rows = s.withoutExported(rows, existing)
	if len(rows) == 0 {
		s.logger.Info("shift report already exported", zap.String("generated", report.GeneratedAt.Format(timeLayout)))
		return 0, nil
	}

	if err := s.repo.AppendRows(ctx, s.sheetRange, rows); err != nil {
		return 0, fmt.Errorf("export shift report: %w", err)
	}

	s.logger.Info("shift report exported",
		zap.Int("rows", len(rows)),
		zap.Int("completed", report.Completed),
		zap.String("achieved", report.TotalAchieved.String()))
	return len(rows), nil
}

// withoutExported drops rows whose generation time, kind and unit already
// appear in the sheet.
func (s *Service) withoutExported(rows, existing [][]interface{}) [][]interface{} {
	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		if len(row) < 3 {
			continue
		}
		seen[rowKey(row)] = struct{}{}
	}

	kept := rows[:0]
	for _, row := range rows {
		if _, dup := seen[rowKey(row)]; dup {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

func rowKey(row []interface{}) string {
	return fmt.Sprintf("%v|%v|%v", row[0], row[1], row[2])
}

// Rows flattens a report into spreadsheet rows, one per unit.
func (s *Service) Rows(report models.ShiftReport) [][]interface{} {
	rows := make([][]interface{}, 0, len(report.Rows))
	generated := report.GeneratedAt.Format(timeLayout)

	for _, d := range report.Rows {
		rows = append(rows, []interface{}{
			generated,
			string(d.Kind),
			d.DisplayName,
			d.TargetQuantityPerBatch.String(),
			s.formatTime(d.MouldingStartedAt),
			s.formatTime(d.MouldingEndedAt),
			formatDuration(d.Duration()),
			formatLoss(d.ProductionLoss),
			d.AchievedQuantity.String(),
			string(d.Stage),
		})
	}
	return rows
}

// WriteWorkbook renders the current shift report as an XLSX workbook.
func (s *Service) WriteWorkbook(w io.Writer) error {
	report := s.Build()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", workbookSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	styleHeader, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#3b82f6"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	styleTotal, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Fill:   excelize.Fill{Type: "pattern", Color: []string{"#cbd5e1"}, Pattern: 1},
		Border: []excelize.Border{{Type: "top", Color: "000000", Style: 2}},
	})
	if err != nil {
		return fmt.Errorf("create total style: %w", err)
	}

	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, headerRow)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(workbookSheet, cell, h); err != nil {
			return fmt.Errorf("write header %s: %w", h, err)
		}
	}
	if err := f.SetCellStyle(workbookSheet, "A1", "J1", styleHeader); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	row := headerRow + 1
	for _, values := range s.Rows(report) {
		for i, v := range values {
			cell, err := excelize.CoordinatesToCellName(i+1, row)
			if err != nil {
				return fmt.Errorf("row %d cell: %w", row, err)
			}
			if err := f.SetCellValue(workbookSheet, cell, v); err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
		row++
	}

	totals := map[string]interface{}{
		"A": "TOTAL",
		"D": report.TotalTarget.String(),
		"H": report.TotalLoss.String(),
		"I": report.TotalAchieved.String(),
		"J": fmt.Sprintf("%d completed, %d in progress", report.Completed, report.InProgress),
	}
	for col, v := range totals {
		if err := f.SetCellValue(workbookSheet, fmt.Sprintf("%s%d", col, row), v); err != nil {
			return fmt.Errorf("write total %s: %w", col, err)
		}
	}
	if err := f.SetCellStyle(workbookSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("J%d", row), styleTotal); err != nil {
		return fmt.Errorf("style totals: %w", err)
	}

	widths := []struct {
		from, to string
		width    float64
	}{
		{"A", "A", 18},
		{"C", "C", 28},
		{"E", "F", 18},
		{"J", "J", 26},
	}
	for _, col := range widths {
		if err := f.SetColWidth(workbookSheet, col.from, col.to, col.width); err != nil {
			return fmt.Errorf("column width %s: %w", col.from, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func (s *Service) formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(s.location).Format(timeLayout)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Minute)
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatLoss(loss *decimal.Decimal) string {
	if loss == nil {
		return ""
	}
	return loss.String()
}
