package aggregate

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/dashpull/dashpull/internal/constants"
	"github.com/dashpull/dashpull/internal/models"
)

// SummaryColumns is the header row of the summary sheet.
var SummaryColumns = []string{"Type", "Name", "Value/Path", "Status", "Detail", "Timestamp"}

const timestampLayout = "2006-01-02 15:04:05"

// TypeLabel is the human-readable type column for r.
func TypeLabel(r models.Record) string {
	if r.Kind == models.KindDownload {
		return "Downloaded File"
	}
	return "Scraped Data"
}

// ValueText is the Value/Path column for r.
func ValueText(r models.Record) string {
	switch {
	case r.Kind == models.KindDownload:
		return r.Path
	case r.Failed():
		return ""
	default:
		return strconv.FormatInt(r.Value, 10)
	}
}

func row(r models.Record) []interface{} {
	var value interface{} = ValueText(r)
	if r.Kind == models.KindMetric && !r.Failed() {
		value = r.Value
	}
	return []interface{}{
		TypeLabel(r),
		r.Name,
		value,
		string(r.Status),
		r.Reason,
		r.At.Format(timestampLayout),
	}
}

// WriteXLSX writes records to path as a single "Summary" sheet, replacing any
// previous file only once the new workbook is complete.
func (c *Collector) WriteXLSX(path string) error {
	return WriteXLSX(path, c.Records())
}

// WriteXLSX writes records to path.
func WriteXLSX(path string, records []models.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := constants.SummarySheetName
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}

	header := make([]interface{}, len(SummaryColumns))
	for i, col := range SummaryColumns {
		header[i] = col
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write summary header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(r)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "C", "C", 60)
	_ = f.SetColWidth(sheet, "F", "F", 20)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create summary directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".summary-*.xlsx")
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}
