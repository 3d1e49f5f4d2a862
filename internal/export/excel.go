package export

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"vitalsync/internal/config"
	"vitalsync/internal/models"
)

// Exporter writes diagnostic spreadsheets: permanently failed
// operations for support triage and metric-record reports for manual
// inspection.
type Exporter struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

func NewExporter(cfg config.ExportConfig, logger *zerolog.Logger) *Exporter {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "export").Logger()
	}
	return &Exporter{
		path:   cfg.Path,
		logger: log,
		now:    time.Now,
	}
}

// FailedOperations writes the permanently-failed set to an xlsx file
// and returns its path.
func (e *Exporter) FailedOperations(operations []models.Operation) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Failed Operations"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Type", "Priority", "Attempts", "Last Error", "Created At", "Last Attempt At"}
	writeHeaderRow(f, sheetName, headers)

	for i, op := range operations {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), op.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), string(op.Type))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), op.Priority.String())
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), op.Attempts)
		if op.LastError != nil {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), *op.LastError)
		}
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), op.CreatedAt.Format("02.01.2006 15:04"))
		if op.LastAttemptAt != nil {
			_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), op.LastAttemptAt.Format("02.01.2006 15:04"))
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 38)
	_ = f.SetColWidth(sheetName, "B", "C", 18)
	_ = f.SetColWidth(sheetName, "D", "D", 10)
	_ = f.SetColWidth(sheetName, "E", "E", 50)
	_ = f.SetColWidth(sheetName, "F", "G", 18)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("failed_operations_%s.xlsx", e.now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("operations", len(operations)).Msg("failed operations exported")
	return filePath, nil
}

// MetricReport writes one sheet per metric type with the converted
// records of a sync window.
func (e *Exporter) MetricReport(records []models.MetricRecord) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	byType := make(map[models.MetricType][]models.MetricRecord)
	for _, record := range records {
		byType[record.Type] = append(byType[record.Type], record)
	}
	types := make([]models.MetricType, 0, len(byType))
	for metricType := range byType {
		types = append(types, metricType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for i, metricType := range types {
		sheetName := sheetTitle(metricType)
		index, err := f.NewSheet(sheetName)
		if err != nil {
			return "", fmt.Errorf("error creating sheet: %w", err)
		}
		if i == 0 {
			f.SetActiveSheet(index)
		}

		writeHeaderRow(f, sheetName, []string{"Timestamp", "Value", "Unit", "Source", "Metadata"})

		group := byType[metricType]
		sort.Slice(group, func(a, b int) bool { return group[a].Timestamp.Before(group[b].Timestamp) })
		for j, record := range group {
			row := j + 2
			_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), record.Timestamp.Format("02.01.2006 15:04"))
			_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), record.Value)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), record.Unit)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), record.Source)
			_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), formatMetadata(record.Metadata))
		}

		_ = f.SetColWidth(sheetName, "A", "A", 18)
		_ = f.SetColWidth(sheetName, "B", "D", 14)
		_ = f.SetColWidth(sheetName, "E", "E", 40)
	}

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("metrics_%s.xlsx", e.now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("records", len(records)).Msg("metric report exported")
	return filePath, nil
}

func writeHeaderRow(f *excelize.File, sheetName string, headers []string) {
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

func sheetTitle(metricType models.MetricType) string {
	parts := strings.Split(string(metricType), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, " ")
}

func formatMetadata(metadata map[string]string) string {
	if len(metadata) == 0 {
		return ""
	}
	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, metadata[k]))
	}
	return strings.Join(parts, "; ")
}
