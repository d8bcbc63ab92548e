package tabular

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet names the sheet of written workbooks.
const DefaultSheet = "Report"

func Write(w io.Writer, format Format, header []string, records [][]string) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, header, records)
	case FormatXLSX:
		return WriteXLSX(w, DefaultSheet, header, records)
	}
	return fmt.Errorf("unsupported format %q", format)
}

func WriteCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// WriteXLSX writes a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, sheet string, header []string, records [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return err
	}
	for i, rec := range records {
		if err := setRow(f, sheet, i+2, rec); err != nil {
			return err
		}
	}
	return f.Write(w)
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
