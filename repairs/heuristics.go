/*
heuristics.go - Fixed priority-scoring and cost-estimation tables

PURPOSE:
  The heuristic mapping mode derives a priority score and an estimated cost
  for every repair item from a handful of keyword tables and linear formulas.

ORDER IS BEHAVIOR:
  Both tables are matched by case-insensitive substring and the FIRST match
  wins. The slices below are evaluated top to bottom. Reordering them
  changes output (e.g. "Structural Roof Repair" prices as Roof Repair
  because Roof Repair is listed first). Changes need product sign-off.

PRIORITY SCORE:
  score = categoryWeight x urgency x ageFactor x ln(unitsAffected + 1)
  rounded half up.

ESTIMATED COST:
  cost = (base + perSqFt x size) x urgencyCostMultiplier, rounded half up.
  No table match: base 2000, 5 per sq ft.

ROW ATTRIBUTES (optional columns, case-insensitive headers):
  urgency         Critical | High | Medium | Low   (default Medium)
  unit_age        years                            (default 0)
  units_affected  count                            (default 1)
  unit_size       square feet                      (default 1000)
*/
package repairs

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TABLES
// =============================================================================

// PriorityCategory maps repair-type keywords to a base weight.
type PriorityCategory struct {
	Name     string
	Keywords []string
	Weight   int
}

// priorityCategories is checked in order; the first category with a
// matching keyword wins.
var priorityCategories = []PriorityCategory{
	{Name: "safety", Keywords: []string{"safety", "structural"}, Weight: 10},
	{Name: "water_damage", Keywords: []string{"water", "leak"}, Weight: 8},
	{Name: "electrical", Keywords: []string{"electrical"}, Weight: 7},
	{Name: "hvac", Keywords: []string{"hvac", "heating", "cooling"}, Weight: 6},
	{Name: "plumbing", Keywords: []string{"plumbing", "pipe"}, Weight: 5},
}

// cosmeticWeight applies when no category matches.
const cosmeticWeight = 3

// CostEstimate is a base cost plus a per-square-foot rate.
type CostEstimate struct {
	Type    string
	Base    int64
	PerSqFt int64
}

// costTable is checked in order; the first type contained in the repair
// type wins.
var costTable = []CostEstimate{
	{Type: "Roof Repair", Base: 5000, PerSqFt: 15},
	{Type: "HVAC System", Base: 3000, PerSqFt: 8},
	{Type: "Plumbing", Base: 800, PerSqFt: 3},
	{Type: "Electrical", Base: 1200, PerSqFt: 4},
	{Type: "Flooring", Base: 2000, PerSqFt: 6},
	{Type: "Windows", Base: 1500, PerSqFt: 12},
	{Type: "Paint", Base: 500, PerSqFt: 2},
	{Type: "Appliances", Base: 1000, PerSqFt: 0},
	{Type: "Structural", Base: 8000, PerSqFt: 20},
	{Type: "Water Damage", Base: 2000, PerSqFt: 8},
}

var generalEstimate = CostEstimate{Type: "General", Base: 2000, PerSqFt: 5}

// Urgency levels.
const (
	UrgencyCritical = "Critical"
	UrgencyHigh     = "High"
	UrgencyMedium   = "Medium"
	UrgencyLow      = "Low"
)

var urgencyWeights = map[string]int{
	UrgencyCritical: 10,
	UrgencyHigh:     7,
	UrgencyMedium:   4,
	UrgencyLow:      1,
}

var urgencyCostMultipliers = map[string]decimal.Decimal{
	UrgencyCritical: decimal.RequireFromString("1.5"),
	UrgencyHigh:     decimal.RequireFromString("1.3"),
	UrgencyMedium:   decimal.NewFromInt(1),
	UrgencyLow:      decimal.RequireFromString("0.8"),
}

const (
	defaultUnitSize      = 1000
	defaultUnitsAffected = 1
)

// PriorityCategories returns a copy of the ordered category table.
func PriorityCategories() []PriorityCategory {
	out := make([]PriorityCategory, len(priorityCategories))
	copy(out, priorityCategories)
	return out
}

// CostTable returns a copy of the ordered cost table.
func CostTable() []CostEstimate {
	out := make([]CostEstimate, len(costTable))
	copy(out, costTable)
	return out
}

// =============================================================================
// INPUTS
// =============================================================================

// Attribute column names read by the heuristic mapper.
const (
	ColumnUrgency       = "urgency"
	ColumnUnitAge       = "unit_age"
	ColumnUnitsAffected = "units_affected"
	ColumnUnitSize      = "unit_size"
)

var attributeColumns = map[string]bool{
	ColumnUrgency:       true,
	ColumnUnitAge:       true,
	ColumnUnitsAffected: true,
	ColumnUnitSize:      true,
}

// RepairFactors are the inputs of the scoring and cost formulas.
type RepairFactors struct {
	RepairType    string
	Urgency       string
	UnitAge       int
	UnitsAffected int
	UnitSize      float64
}

// CanonicalUrgency returns the table spelling of raw, or Medium when raw is
// not a known level.
func CanonicalUrgency(raw string) string {
	raw = strings.TrimSpace(raw)
	for level := range urgencyWeights {
		if strings.EqualFold(level, raw) {
			return level
		}
	}
	return UrgencyMedium
}

// =============================================================================
// FORMULAS
// =============================================================================

// CategoryFor returns the priority category matching repairType, and false
// when it falls through to cosmetic.
func CategoryFor(repairType string) (PriorityCategory, bool) {
	lower := strings.ToLower(repairType)
	for _, cat := range priorityCategories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				return cat, true
			}
		}
	}
	return PriorityCategory{Name: "cosmetic", Weight: cosmeticWeight}, false
}

// PriorityScore computes the rounded priority score.
func PriorityScore(f RepairFactors) int {
	cat, _ := CategoryFor(f.RepairType)
	score := float64(cat.Weight)

	score *= float64(urgencyWeights[CanonicalUrgency(f.Urgency)])

	switch {
	case f.UnitAge > 20:
		score *= 1.5
	case f.UnitAge > 10:
		score *= 1.2
	}

	affected := f.UnitsAffected
	if affected < 1 {
		affected = defaultUnitsAffected
	}
	score *= math.Log(float64(affected) + 1)

	return int(math.Floor(score + 0.5))
}

// EstimateFor returns the cost table entry matching repairType, and false
// when the general formula applies.
func EstimateFor(repairType string) (CostEstimate, bool) {
	lower := strings.ToLower(repairType)
	for _, est := range costTable {
		if strings.Contains(lower, strings.ToLower(est.Type)) {
			return est, true
		}
	}
	return generalEstimate, false
}

// EstimateCost computes the rounded estimated cost.
func EstimateCost(f RepairFactors) decimal.Decimal {
	size := decimal.NewFromFloat(f.UnitSize)
	if f.UnitSize <= 0 {
		size = decimal.NewFromInt(defaultUnitSize)
	}

	est, _ := EstimateFor(f.RepairType)
	cost := est.apply(size)
	if cost.IsZero() {
		cost = generalEstimate.apply(size)
	}

	cost = cost.Mul(urgencyCostMultipliers[CanonicalUrgency(f.Urgency)])
	return cost.Round(0)
}

func (e CostEstimate) apply(size decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(e.Base).Add(decimal.NewFromInt(e.PerSqFt).Mul(size))
}

// =============================================================================
// HEURISTIC MAPPER
// =============================================================================

// HeuristicMapper maps rows like PlainMapper, then scores and prices every
// item. Attribute columns (urgency, unit_age, ...) are not repair columns.
type HeuristicMapper struct{}

func (HeuristicMapper) MapRow(row Row) UnitRecord {
	unitCols, rest := splitColumns(row.Columns())

	base := RepairFactors{UnitsAffected: defaultUnitsAffected, UnitSize: defaultUnitSize}
	var repairCols []string
	for _, col := range rest {
		name := strings.ToLower(strings.TrimSpace(col))
		if !attributeColumns[name] {
			repairCols = append(repairCols, col)
			continue
		}
		val := row.Get(col)
		switch name {
		case ColumnUrgency:
			base.Urgency = val
		case ColumnUnitAge:
			base.UnitAge = int(leadingNumber(val, 0))
		case ColumnUnitsAffected:
			base.UnitsAffected = int(leadingNumber(val, defaultUnitsAffected))
		case ColumnUnitSize:
			base.UnitSize = leadingNumber(val, defaultUnitSize)
		}
	}

	rec := UnitRecord{Unit: unitFromRow(row, unitCols), RepairItems: []RepairItem{}}
	for _, col := range repairCols {
		desc := row.Get(col)
		if strings.TrimSpace(desc) == "" {
			continue
		}
		f := base
		f.RepairType = col

		item := NewRepairItem(col, desc)
		item.Urgency = CanonicalUrgency(f.Urgency)
		item.PriorityScore = PriorityScore(f)
		item.EstimatedCost = EstimateCost(f).InexactFloat64()
		rec.RepairItems = append(rec.RepairItems, item)
	}
	return rec
}

var leadingNumberRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// leadingNumber parses the numeric prefix of s ("25 years" -> 25). Missing,
// unparseable, or zero values return def.
func leadingNumber(s string, def float64) float64 {
	m := leadingNumberRe.FindString(strings.TrimSpace(s))
	if m == "" {
		return def
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v == 0 {
		return def
	}
	return v
}
