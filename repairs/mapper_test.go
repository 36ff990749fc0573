package repairs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-repairs/repairs"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testRow struct {
	cols   []string
	values map[string]string
}

func (r testRow) Columns() []string     { return r.cols }
func (r testRow) Get(col string) string { return r.values[col] }

func row(pairs ...string) testRow {
	r := testRow{values: map[string]string{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		r.cols = append(r.cols, pairs[i])
		r.values[pairs[i]] = pairs[i+1]
	}
	return r
}

// =============================================================================
// PLAIN MAPPER
// =============================================================================

func TestPlainMapper_UnitAndRepairColumns(t *testing.T) {
	// GIVEN: A row with four unit columns and two repair columns, one blank
	r := row(
		"Address Number", "12",
		"Street", "Elm St",
		"Owner", "A",
		"Co-owner", "B",
		"Roof", "leaks",
		"Paint", "",
	)

	// WHEN: Mapping it in plain mode
	rec := repairs.PlainMapper{}.MapRow(r)

	// THEN: The unit comes from the first four columns and only the
	// non-empty repair column becomes an item with plain defaults
	assert.Equal(t, repairs.Unit{AddressNumber: "12", AddressStreet: "Elm St", Name1: "A", Name2: "B"}, rec.Unit)
	require.Len(t, rec.RepairItems, 1)

	item := rec.RepairItems[0]
	assert.Equal(t, "Roof", item.RepairType)
	assert.Equal(t, "leaks", item.Description)
	assert.Equal(t, 1, item.Priority)
	assert.Equal(t, 0.0, item.EstimatedCost)
	assert.Equal(t, "", item.Supplier)
	assert.Equal(t, repairs.StatusIncomplete, item.ActualCompletionStatus)
}

func TestPlainMapper_WhitespaceDescriptionDropped(t *testing.T) {
	r := row("n", "1", "s", "x", "a", "", "b", "", "Windows", "   ", "Doors", " sticky ")

	rec := repairs.PlainMapper{}.MapRow(r)

	require.Len(t, rec.RepairItems, 1)
	assert.Equal(t, "Doors", rec.RepairItems[0].RepairType)
	assert.Equal(t, " sticky ", rec.RepairItems[0].Description, "description is stored untrimmed")
}

func TestPlainMapper_FewerThanFourColumns(t *testing.T) {
	// GIVEN: Only two columns
	r := row("Address Number", "7", "Street", "Oak")

	// WHEN
	rec := repairs.PlainMapper{}.MapRow(r)

	// THEN: Missing unit fields are empty and there are no items
	assert.Equal(t, "7", rec.AddressNumber)
	assert.Equal(t, "Oak", rec.AddressStreet)
	assert.Empty(t, rec.Name1)
	assert.Empty(t, rec.Name2)
	assert.NotNil(t, rec.RepairItems)
	assert.Empty(t, rec.RepairItems)
}

func TestPlainMapper_AttributeColumnsAreRepairs(t *testing.T) {
	// Plain mode has no attribute columns; "urgency" is just another repair.
	r := row("n", "1", "s", "x", "a", "", "b", "", "urgency", "High")

	rec := repairs.PlainMapper{}.MapRow(r)

	require.Len(t, rec.RepairItems, 1)
	assert.Equal(t, "urgency", rec.RepairItems[0].RepairType)
}

func TestMapRows_PreservesOrder(t *testing.T) {
	rows := []testRow{
		row("n", "1", "s", "A", "a", "", "b", ""),
		row("n", "2", "s", "B", "a", "", "b", ""),
	}

	recs := repairs.MapRows(repairs.PlainMapper{}, rows)

	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[0].AddressNumber)
	assert.Equal(t, "2", recs[1].AddressNumber)
}

func TestNewMapper(t *testing.T) {
	m, err := repairs.NewMapper("")
	require.NoError(t, err)
	assert.IsType(t, repairs.PlainMapper{}, m)

	m, err = repairs.NewMapper("Heuristic")
	require.NoError(t, err)
	assert.IsType(t, repairs.HeuristicMapper{}, m)

	_, err = repairs.NewMapper("fancy")
	assert.ErrorIs(t, err, repairs.ErrValidation)
}

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestRepairItem_Normalize(t *testing.T) {
	item := repairs.RepairItem{
		Supplier:               "  Acme  ",
		EstimatedCost:          -5,
		ActualCompletionStatus: "COMPLETED",
	}

	item.Normalize()

	assert.Equal(t, "Acme", item.Supplier)
	assert.Equal(t, 1, item.Priority)
	assert.Equal(t, 0.0, item.EstimatedCost)
	assert.Equal(t, repairs.StatusCompleted, item.ActualCompletionStatus)

	item.ActualCompletionStatus = "done"
	item.Normalize()
	assert.Equal(t, repairs.StatusIncomplete, item.ActualCompletionStatus)
}

func TestParseID(t *testing.T) {
	id, err := repairs.ParseID("unit id", " 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, raw := range []string{"abc", "", "0", "-3", "1.5"} {
		_, err := repairs.ParseID("unit id", raw)
		var verr *repairs.ValidationError
		assert.ErrorAs(t, err, &verr, "raw=%q", raw)
		assert.True(t, repairs.IsClientError(err), "raw=%q", raw)
	}
}
