package ingest

import (
	"encoding/csv"
	"errors"
	"io"
	"os"

	"github.com/warp/condo-repairs/repairs"
)

func parseCSV(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &repairs.ParseError{File: path, Format: string(FormatCSV), Err: err}
	}
	defer f.Close()

	return readCSV(path, f)
}

func readCSV(name string, r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // ragged rows are padded or truncated below
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, csvError(name, err)
	}
	headers := cleanHeaders(header)

	rows := []Row{}
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvError(name, err)
		}
		if isRowEmpty(cells) {
			continue
		}
		rows = append(rows, newRow(headers, cells))
	}
	return rows, nil
}

func csvError(name string, err error) error {
	perr := &repairs.ParseError{File: name, Format: string(FormatCSV), Err: err}
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		perr.Line = pe.Line
	}
	return perr
}
