package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ernyzasxash/clientt/internal/config"
)

// defaultSheet is created by excelize.NewFile
const defaultSheet = "Sheet1"

// Export writes r to path. A .xlsx path produces one workbook with a sheet
// per table; a .csv path produces one file per table, named
// <base>_<table>.csv next to it. The written files are returned.
func Export(path string, r Report, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := config.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tables := r.Tables()

	var files []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		if err := WriteXLSX(path, tables); err != nil {
			return nil, err
		}
		files = []string{path}
	case ".csv":
		base := strings.TrimSuffix(path, filepath.Ext(path))
		for _, t := range tables {
			name := fmt.Sprintf("%s_%s.csv", base, slug(t.Name))
			if err := writeCSVFile(name, t); err != nil {
				return files, err
			}
			files = append(files, name)
		}
	default:
		return nil, fmt.Errorf("unsupported export format %q (use .xlsx or .csv)", filepath.Ext(path))
	}

	logger.Info("export written",
		slog.Any("files", files),
		slog.Int("connections", len(r.Connections)),
		slog.Int("failed_logins", len(r.FailedLogins)),
		slog.Int("bans", len(r.Bans)),
		slog.Int("attempts", len(r.Attempts)))
	return files, nil
}

// WriteXLSX writes tables to a workbook at path, one sheet each, with a
// bold frozen header row.
func WriteXLSX(path string, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, t := range tables {
		if _, err := f.NewSheet(t.Name); err != nil {
			return fmt.Errorf("failed to create sheet %q: %w", t.Name, err)
		}
		if err := writeSheet(f, t, header); err != nil {
			return fmt.Errorf("failed to write sheet %q: %w", t.Name, err)
		}
		if i == 0 {
			idx, err := f.GetSheetIndex(t.Name)
			if err == nil {
				f.SetActiveSheet(idx)
			}
		}
	}

	if len(tables) > 0 {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("failed to remove default sheet: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table, headerStyle int) error {
	if err := setRow(f, t.Name, 1, t.Headers); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(f, t.Name, i+2, row); err != nil {
			return err
		}
	}

	if len(t.Headers) == 0 {
		return nil
	}
	if err := f.SetRowStyle(t.Name, 1, 1, headerStyle); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(t.Headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(t.Name, "A", last, 18); err != nil {
		return err
	}
	return f.SetPanes(t.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

// WriteCSV writes t as CSV to w. bom prefixes a UTF-8 byte order mark so
// Excel detects the encoding.
func WriteCSV(w io.Writer, t Table, bom bool) error {
	if bom {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if len(t.Headers) > 0 {
		if err := cw.Write(t.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVFile(path string, t Table) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	if err := WriteCSV(file, t, true); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func slug(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
