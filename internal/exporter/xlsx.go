package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// defaultSheet is the worksheet excelize creates with every new file
const defaultSheet = "Sheet1"

// Sheet is one table written as a worksheet
type Sheet struct {
	Name    string
	Headers []string
	Records [][]string
}

// WorkbookWriter writes tables into XLSX workbooks
type WorkbookWriter struct {
	logger *slog.Logger
}

// NewWorkbookWriter creates a workbook writer
func NewWorkbookWriter() *WorkbookWriter {
	return &WorkbookWriter{logger: slog.Default()}
}

// WriteWorkbook writes every sheet into a new workbook at path, replacing any existing file
func (w *WorkbookWriter) WriteWorkbook(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	seen := make(map[string]bool, len(sheets))
	for i, sheet := range sheets {
		name := sheetName(sheet.Name)
		if seen[name] {
			return fmt.Errorf("duplicate sheet name %q", name)
		}
		seen[name] = true

		idx, err := f.NewSheet(name)
		if err != nil {
			return fmt.Errorf("create sheet %s: %w", name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, name, sheet); err != nil {
			return fmt.Errorf("write sheet %s: %w", name, err)
		}
	}

	if !seen[defaultSheet] {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("remove default sheet: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}

	w.logger.Debug("Wrote workbook",
		slog.String("path", path),
		slog.Int("sheets", len(sheets)))
	return nil
}

func writeSheet(f *excelize.File, name string, sheet Sheet) error {
	sw, err := f.NewStreamWriter(name)
	if err != nil {
		return err
	}

	row := 1
	if len(sheet.Headers) > 0 {
		values := make([]interface{}, len(sheet.Headers))
		for i, h := range sheet.Headers {
			values[i] = h
		}
		if err := sw.SetRow("A1", values); err != nil {
			return err
		}
		row++
	}

	for _, record := range sheet.Records {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(record))
		for i, field := range record {
			values[i] = cellValue(field)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return err
		}
		row++
	}

	return sw.Flush()
}

// ReadSheet returns the rows of a worksheet; an empty name selects the first sheet
func ReadSheet(path, name string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if name == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		name = sheets[0]
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", name, err)
	}
	return rows, nil
}
