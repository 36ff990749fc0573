/*
mapper.go - Spreadsheet row to UnitRecord

PURPOSE:
  Turns one generic row (column header -> cell) into the domain shape.

COLUMN CONTRACT:
  Column ORDER is the only schema the spreadsheet has:
  - Columns 1-4 are the unit: address number, street, name 1, name 2.
    Their header text is ignored.
  - Every remaining column is a repair type. Its header becomes
    repair_type and the cell becomes description.
  - A repair column whose cell is empty or whitespace is dropped.

  Two files with the same columns in a different order therefore produce
  different repair_type labels. That is intended.

MAPPING MODES:
  plain:     every item gets priority 1, cost 0, status incomplete. A person
             fills these in later. Default.
  heuristic: priority score and estimated cost are derived from fixed
             keyword tables (heuristics.go).

  A deployment picks one. The modes are never combined.

SEE ALSO:
  - heuristics.go: Scoring and cost tables
  - ../ingest: Produces the rows
*/
package repairs

import (
	"fmt"
	"strings"
)

// UnitColumns is the number of leading columns that describe the unit.
const UnitColumns = 4

// Row is a parsed spreadsheet row with its headers in source order.
type Row interface {
	Columns() []string
	Get(column string) string
}

// Mapper converts rows into UnitRecords.
type Mapper interface {
	MapRow(row Row) UnitRecord
}

// Mode selects the mapping variant.
type Mode string

const (
	ModePlain     Mode = "plain"
	ModeHeuristic Mode = "heuristic"
)

// NewMapper returns the mapper for mode. An empty mode means plain.
func NewMapper(mode Mode) (Mapper, error) {
	switch Mode(strings.ToLower(string(mode))) {
	case "", ModePlain:
		return PlainMapper{}, nil
	case ModeHeuristic:
		return HeuristicMapper{}, nil
	default:
		return nil, &ValidationError{Field: "mapping mode", Message: fmt.Sprintf("unknown mode %q", mode)}
	}
}

// MapRows maps every row in order.
func MapRows[R Row](m Mapper, rows []R) []UnitRecord {
	out := make([]UnitRecord, len(rows))
	for i, row := range rows {
		out[i] = m.MapRow(row)
	}
	return out
}

// =============================================================================
// PLAIN MAPPER
// =============================================================================

// PlainMapper maps rows with zero cost and default priority.
type PlainMapper struct{}

func (PlainMapper) MapRow(row Row) UnitRecord {
	unitCols, repairCols := splitColumns(row.Columns())

	rec := UnitRecord{
		Unit:        unitFromRow(row, unitCols),
		RepairItems: []RepairItem{},
	}
	for _, col := range repairCols {
		desc := row.Get(col)
		if strings.TrimSpace(desc) == "" {
			continue
		}
		rec.RepairItems = append(rec.RepairItems, NewRepairItem(col, desc))
	}
	return rec
}

func splitColumns(cols []string) (unitCols, repairCols []string) {
	if len(cols) <= UnitColumns {
		return cols, nil
	}
	return cols[:UnitColumns], cols[UnitColumns:]
}

func unitFromRow(row Row, unitCols []string) Unit {
	field := func(i int) string {
		if i >= len(unitCols) {
			return ""
		}
		return row.Get(unitCols[i])
	}
	return Unit{
		AddressNumber: field(0),
		AddressStreet: field(1),
		Name1:         field(2),
		Name2:         field(3),
	}
}
