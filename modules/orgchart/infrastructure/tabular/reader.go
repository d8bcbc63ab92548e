// Package tabular reads rosters from CSV or XLSX and writes reports back out.
package tabular

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/iota-uz/orgchart/modules/orgchart/domain/roster"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case, with or without a leading dot.
func ParseFormat(v string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "."))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX, "xlsm":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("unsupported format %q (expected csv|xlsx)", v)
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Table is a header plus the records under it.
type Table struct {
	Header  []string
	Records [][]string
}

// Rows decodes the table into roster rows.
func (t Table) Rows() ([]roster.Row, error) {
	return roster.Decode(t.Header, t.Records)
}

// ReadFile reads path in the format its extension names.
func ReadFile(path string) (Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Table{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	return Read(f, format)
}

func Read(r io.Reader, format Format) (Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r)
	case FormatXLSX:
		return ReadXLSX(r, "")
	}
	return Table{}, fmt.Errorf("unsupported format %q", format)
}

// ReadCSV reads a comma or semicolon separated file. A UTF-8 BOM is skipped and the
// delimiter is taken from whichever of the two is more frequent in the header line.
func ReadCSV(r io.Reader) (Table, error) {
	br := stripUTF8BOM(bufio.NewReader(r))

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := readHeader(cr)
	if err != nil {
		return Table{}, err
	}
	records, err := cr.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("read csv: %w", err)
	}
	return Table{Header: header, Records: records}, nil
}

func stripUTF8BOM(r *bufio.Reader) *bufio.Reader {
	b, err := r.Peek(3)
	if err == nil && len(b) == 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		_, _ = r.Discard(3)
	}
	return r
}

func sniffDelimiter(r *bufio.Reader) rune {
	b, _ := r.Peek(r.Size())
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	if bytes.Count(b, []byte{';'}) > bytes.Count(b, []byte{','}) {
		return ';'
	}
	return ','
}

func readHeader(r *csv.Reader) ([]string, error) {
	h, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("missing header")
		}
		return nil, err
	}
	for i := range h {
		h[i] = strings.TrimSpace(h[i])
		if !utf8.ValidString(h[i]) {
			return nil, fmt.Errorf("invalid header encoding")
		}
	}
	return h, nil
}

// ReadXLSX reads sheet, or the first sheet when sheet is empty. The first non-empty
// row is the header.
func ReadXLSX(r io.Reader, sheet string) (Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return Table{}, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return Table{}, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return Table{}, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	for len(rows) > 0 && isBlank(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return Table{}, fmt.Errorf("missing header")
	}
	header := make([]string, len(rows[0]))
	for i, v := range rows[0] {
		header[i] = strings.TrimSpace(v)
	}
	return Table{Header: header, Records: rows[1:]}, nil
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
