package ingest

import (
	"errors"

	"github.com/xuri/excelize/v2"

	"github.com/warp/condo-repairs/repairs"
)

func parseWorkbook(path string) ([]Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &repairs.ParseError{File: path, Format: string(FormatWorkbook), Err: err}
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, &repairs.ParseError{File: path, Format: string(FormatWorkbook), Err: errors.New("workbook has no sheets")}
	}

	all, err := f.GetRows(sheet)
	if err != nil {
		return nil, &repairs.ParseError{File: path, Format: string(FormatWorkbook), Err: err}
	}
	if len(all) == 0 {
		return []Row{}, nil
	}

	headers := cleanHeaders(all[0])
	rows := []Row{}
	for _, cells := range all[1:] {
		// GetRows trims trailing empty cells; newRow pads them back.
		if isRowEmpty(cells) {
			continue
		}
		rows = append(rows, newRow(headers, cells))
	}
	return rows, nil
}
