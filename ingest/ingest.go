/*
Package ingest parses uploaded spreadsheets into ordered rows.

PURPOSE:
  Turns a CSV or XLSX file into a sequence of Rows. Each Row keeps its
  headers in file order because downstream mapping is positional: the first
  four columns describe the unit, the rest are repair types.

FORMATS:
  .csv          comma-separated text, first line is the header
  .xlsx .xlsm   Office Open XML workbook, first sheet, first row is the header
  anything else UnsupportedFormatError (legacy .xls included)

HEADER CLEANUP:
  - UTF-8 byte order mark stripped from the first header
  - surrounding whitespace trimmed
  - blank headers named column_<n> (1-based)
  - duplicate headers suffixed _2, _3, ... so no cell is silently lost

TEMPORARY FILES:
  ParseAndRemove deletes the file after a successful parse. Uploads that fail
  to parse are left for the upload sweeper.

SEE ALSO:
  - ../repairs/mapper.go: Consumes the rows
  - ../api/sweeper.go: Collects leftover upload files
*/
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/condo-repairs/repairs"
)

// Format is a declared spreadsheet format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatWorkbook Format = "xlsx"
)

// FormatFromFilename resolves the format from a file name's extension.
func FormatFromFilename(name string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "xlsm":
		return FormatWorkbook, nil
	default:
		return "", &repairs.UnsupportedFormatError{Extension: ext}
	}
}

// =============================================================================
// ROW
// =============================================================================

// Row is one data row: headers in file order and the cell for each.
type Row struct {
	Headers []string
	Values  map[string]string
}

// Columns returns the headers in file order.
func (r Row) Columns() []string {
	return r.Headers
}

// Get returns the cell for column, or "" when absent.
func (r Row) Get(column string) string {
	return r.Values[column]
}

func newRow(headers, cells []string) Row {
	row := Row{Headers: headers, Values: make(map[string]string, len(headers))}
	for i, h := range headers {
		if i < len(cells) {
			row.Values[h] = cells[i]
		} else {
			row.Values[h] = ""
		}
	}
	return row
}

// =============================================================================
// PARSING
// =============================================================================

// Parse reads path in the declared format.
func Parse(path string, format Format) ([]Row, error) {
	switch format {
	case FormatCSV:
		return parseCSV(path)
	case FormatWorkbook:
		return parseWorkbook(path)
	default:
		return nil, &repairs.UnsupportedFormatError{Extension: string(format)}
	}
}

// ParseAndRemove parses path and deletes it once parsing succeeds.
func ParseAndRemove(path string, format Format) ([]Row, error) {
	rows, err := Parse(path, format)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return rows, fmt.Errorf("removing upload %s: %w", path, err)
	}
	return rows, nil
}

// cleanHeaders applies the header rules described in the package comment.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, h := range raw {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		base := h
		for n := 2; used[h]; n++ {
			h = fmt.Sprintf("%s_%d", base, n)
		}
		used[h] = true
		headers[i] = h
	}
	return headers
}

func isRowEmpty(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
