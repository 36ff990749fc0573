package repairs_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-repairs/repairs"
)

func decodeUnits(t *testing.T, payload string) []*repairs.UnitInput {
	t.Helper()
	var units []*repairs.UnitInput
	require.NoError(t, json.Unmarshal([]byte(payload), &units))
	return units
}

func TestResolve_DualShape(t *testing.T) {
	// GIVEN: One flat unit, one nested unit, and one with both where the
	// top level is blank for some fields
	units := decodeUnits(t, `[
		{"address_number": "1", "address_street": "Elm", "name1": "A", "name2": "", "repair_items": []},
		{"unit": {"address_number": "2", "address_street": "Oak", "name1": "B", "name2": "C"}, "repair_items": []},
		{"address_number": "3", "address_street": "", "unit": {"address_number": "99", "address_street": "Pine"}, "repair_items": []}
	]`)

	// WHEN
	recs := repairs.ResolveAll(units)

	// THEN
	require.Len(t, recs, 3)
	assert.Equal(t, repairs.Unit{AddressNumber: "1", AddressStreet: "Elm", Name1: "A"}, recs[0].Unit)
	assert.Equal(t, repairs.Unit{AddressNumber: "2", AddressStreet: "Oak", Name1: "B", Name2: "C"}, recs[1].Unit)
	assert.Equal(t, "3", recs[2].AddressNumber, "non-empty top level wins")
	assert.Equal(t, "Pine", recs[2].AddressStreet, "nested is the fallback")
}

func TestResolve_NullEntriesSkipped(t *testing.T) {
	units := decodeUnits(t, `[
		null,
		{"address_number": "1", "repair_items": [null, {"repair_type": "Roof", "description": "leak"}, null]},
		null
	]`)

	recs := repairs.ResolveAll(units)

	require.Len(t, recs, 1)
	require.Len(t, recs[0].RepairItems, 1)
	assert.Equal(t, "Roof", recs[0].RepairItems[0].RepairType)
}

func TestResolve_LenientScalars(t *testing.T) {
	// GIVEN: Form-style values: numbers as strings, blanks, nulls
	units := decodeUnits(t, `[{
		"address_number": 12,
		"repair_items": [
			{"repair_type": "Roof", "description": "a", "priority": "", "estimated_cost": "250.5", "supplier": " Acme "},
			{"repair_type": "Paint", "description": "b", "priority": 7, "estimated_cost": null, "actual_completion_status": ""},
			{"repair_type": "Door", "description": "c", "priority": "3", "estimated_cost": -10, "completion_date": "2024-05-01"}
		]
	}]`)

	// WHEN
	recs := repairs.ResolveAll(units)

	// THEN
	require.Len(t, recs, 1)
	assert.Equal(t, "12", recs[0].AddressNumber)

	items := recs[0].RepairItems
	require.Len(t, items, 3)

	assert.Equal(t, 1, items[0].Priority, "blank priority defaults to 1")
	assert.Equal(t, 250.5, items[0].EstimatedCost)
	assert.Equal(t, "Acme", items[0].Supplier)

	assert.Equal(t, 7, items[1].Priority)
	assert.Equal(t, 0.0, items[1].EstimatedCost)
	assert.Equal(t, repairs.StatusIncomplete, items[1].ActualCompletionStatus)

	assert.Equal(t, 3, items[2].Priority)
	assert.Equal(t, 0.0, items[2].EstimatedCost, "negative cost clamps to 0")
	assert.Equal(t, "2024-05-01", items[2].RequiredCompletionDate, "legacy completion_date is accepted")
}

func TestFlexInt_RejectsGarbage(t *testing.T) {
	var units []*repairs.UnitInput
	err := json.Unmarshal([]byte(`[{"repair_items": [{"priority": "high"}]}]`), &units)
	assert.Error(t, err)
}

func TestFlexFloat_RejectsNonFinite(t *testing.T) {
	for _, raw := range []string{`"Infinity"`, `"Inf"`, `"-inf"`, `"NaN"`, `1e400`, `"1e400"`} {
		t.Run(raw, func(t *testing.T) {
			var f repairs.FlexFloat
			err := json.Unmarshal([]byte(raw), &f)

			var verr *repairs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "estimated_cost", verr.Field)
			assert.ErrorIs(t, err, repairs.ErrValidation)
		})
	}
}

func TestFlexInt_RejectsNonFiniteAndOutOfRange(t *testing.T) {
	for _, raw := range []string{`"Infinity"`, `"NaN"`, `"1e300"`, `1e300`, `-1e300`, `"1e400"`} {
		t.Run(raw, func(t *testing.T) {
			var n repairs.FlexInt
			err := json.Unmarshal([]byte(raw), &n)

			var verr *repairs.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "priority", verr.Field)
		})
	}
}

func TestFlexScalars_BulkPayloadWithInfinity(t *testing.T) {
	var units []*repairs.UnitInput
	err := json.Unmarshal([]byte(`[{"repair_items": [{"estimated_cost": "Infinity"}]}]`), &units)
	assert.ErrorIs(t, err, repairs.ErrValidation)
}

func TestNormalize_NonFiniteCostClampsToZero(t *testing.T) {
	item := repairs.RepairItem{EstimatedCost: math.Inf(1)}
	item.Normalize()
	assert.Equal(t, 0.0, item.EstimatedCost)

	item = repairs.RepairItem{EstimatedCost: math.NaN()}
	item.Normalize()
	assert.Equal(t, 0.0, item.EstimatedCost)
}

func TestAsInputs_RoundTrip(t *testing.T) {
	// GIVEN: Records in their canonical form
	recs := []repairs.UnitRecord{{
		Unit: repairs.Unit{ID: 5, AddressNumber: "1", AddressStreet: "Elm", Name1: "A", Name2: "B"},
		RepairItems: []repairs.RepairItem{{
			ID:                     9,
			RepairType:             "Roof",
			Description:            "leak",
			Priority:               4,
			EstimatedCost:          100,
			Supplier:               "Acme",
			RequiredCompletionDate: "2024-01-01",
			ActualCompletionStatus: repairs.StatusInProgress,
		}},
	}}

	// WHEN: Converting to inputs and resolving again
	back := repairs.ResolveAll(repairs.AsInputs(recs))

	// THEN: Everything but the store ids survives
	require.Len(t, back, 1)
	assert.Equal(t, "Elm", back[0].AddressStreet)
	assert.Zero(t, back[0].ID)
	require.Len(t, back[0].RepairItems, 1)
	item := back[0].RepairItems[0]
	assert.Zero(t, item.ID)
	assert.Equal(t, 4, item.Priority)
	assert.Equal(t, repairs.StatusInProgress, item.ActualCompletionStatus)
}
