package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reswatch/internal/config"
	"reswatch/internal/domain"
	"reswatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "History"

// ExcelExporter renders the booking history for a date range into an
// xlsx report on disk.
type ExcelExporter struct {
	repo   domain.Repository
	cfg    config.ExportConfig
	logger *zerolog.Logger
}

func NewExcelExporter(repo domain.Repository, cfg config.ExportConfig, logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{repo: repo, cfg: cfg, logger: logger}
}

// ExportHistory writes the report and returns its path.
func (e *ExcelExporter) ExportHistory(ctx context.Context, start, end time.Time) (string, error) {
	if err := os.MkdirAll(e.cfg.Path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	records, err := e.repo.GetHistoryByDateRange(ctx, start, end)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	writeHeaders(f)
	for i, rec := range records {
		writeRecord(f, i+2, &rec)
	}

	applyColumnWidths(f)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("history_%s_to_%s.xlsx", start.Format("2006-01-02"), end.Format("2006-01-02"))
	filePath := filepath.Join(e.cfg.Path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("records", len(records)).Msg("history export created")
	return filePath, nil
}

func writeHeaders(f *excelize.File) {
	headers := []string{
		"ID", "Watch Job", "Restaurant", "Date", "Time", "Party Size",
		"Platform", "Status", "Confirmation", "Error", "Created At",
	}
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func writeRecord(f *excelize.File, row int, rec *models.BookingHistoryRecord) {
	jobID := ""
	if rec.WatchJobID != nil {
		jobID = *rec.WatchJobID
	}
	values := []interface{}{
		rec.ID,
		jobID,
		rec.Restaurant,
		rec.Date,
		rec.Time,
		rec.PartySize,
		rec.Platform,
		rec.Status,
		rec.ConfirmationCode,
		rec.ErrorDetails,
		rec.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}

	// Status tint: green for wins, red for losses, yellow for conflicts.
	var fill string
	switch rec.Status {
	case models.HistorySuccess:
		fill = "#C6EFCE"
	case models.HistoryFailed:
		fill = "#FFC7CE"
	case models.HistoryConflict:
		fill = "#FFEB9C"
	}
	if fill != "" {
		style, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		})
		if err == nil {
			cell, _ := excelize.CoordinatesToCellName(8, row)
			_ = f.SetCellStyle(sheetName, cell, cell, style)
		}
	}
}

func applyColumnWidths(f *excelize.File) {
	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 38)
	_ = f.SetColWidth(sheetName, "C", "C", 25)
	_ = f.SetColWidth(sheetName, "D", "E", 12)
	_ = f.SetColWidth(sheetName, "F", "H", 12)
	_ = f.SetColWidth(sheetName, "I", "J", 30)
	_ = f.SetColWidth(sheetName, "K", "K", 20)
}
