/*
Package repairs holds the condominium repair domain model.

PURPOSE:
  Every other package speaks in these types. A spreadsheet row becomes a
  UnitRecord (one Unit plus its RepairItems), the store persists and returns
  UnitRecords, and the API serializes them as-is.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: one physical condominium unit (address + occupant names)
  - RepairItem: one repair line owned by exactly one Unit
  - UnitRecord: the Unit + RepairItems shape shared by upload, save, and
    resume-session
  - Status: the three completion states a RepairItem moves through

JSON SHAPE:
  UnitRecord embeds Unit, so unit fields sit at the top level next to
  "repair_items". That is the same shape the bulk save accepts back.

SEE ALSO:
  - input.go: Lenient decoding of UI payloads (dual shape, null entries)
  - mapper.go: Spreadsheet row to UnitRecord
  - errors.go: Error taxonomy
*/
package repairs

import (
	"math"
	"strings"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the actual completion status of a RepairItem.
type Status string

const (
	StatusIncomplete Status = "incomplete"
	StatusInProgress Status = "in progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists every valid status in workflow order.
var Statuses = []Status{StatusIncomplete, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIncomplete, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus matches raw against the known statuses ignoring case and
// surrounding space.
func ParseStatus(raw string) (Status, bool) {
	raw = strings.TrimSpace(raw)
	for _, s := range Statuses {
		if strings.EqualFold(string(s), raw) {
			return s, true
		}
	}
	return "", false
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultPriority is assigned to every item the spreadsheet creates.
	DefaultPriority = 1

	// HighPriorityCostThreshold is the priority at or above which an item's
	// cost counts toward the "high priority cost" total.
	HighPriorityCostThreshold = 8

	// HighPriorityCountThreshold is the priority at or above which an item is
	// counted as high priority in the repair-type breakdown.
	HighPriorityCountThreshold = 7
)

// =============================================================================
// ENTITIES
// =============================================================================

// Unit is one condominium unit. ID is assigned by the store on insert.
type Unit struct {
	ID            int64  `json:"id,omitempty"`
	AddressNumber string `json:"address_number"`
	AddressStreet string `json:"address_street"`
	Name1         string `json:"name1"`
	Name2         string `json:"name2"`
}

// RepairItem is one repair line for one Unit.
type RepairItem struct {
	ID                     int64   `json:"id,omitempty"`
	UnitID                 int64   `json:"unit_id,omitempty"`
	RepairType             string  `json:"repair_type"`
	Description            string  `json:"description"`
	Priority               int     `json:"priority"`
	EstimatedCost          float64 `json:"estimated_cost"`
	Supplier               string  `json:"supplier"`
	RequiredCompletionDate string  `json:"required_completion_date"`
	ActualCompletionStatus Status  `json:"actual_completion_status"`
	ActualCompletionDate   string  `json:"actual_completion_date"`

	// Set only by the heuristic mapper.
	PriorityScore int    `json:"priority_score,omitempty"`
	Urgency       string `json:"urgency,omitempty"`
}

// NewRepairItem returns an item with the plain ingestion defaults.
func NewRepairItem(repairType, description string) RepairItem {
	return RepairItem{
		RepairType:             repairType,
		Description:            description,
		Priority:               DefaultPriority,
		ActualCompletionStatus: StatusIncomplete,
	}
}

// Normalize applies the storage rules: trimmed supplier, default priority,
// non-negative finite cost, and a known status (unknown values become incomplete).
func (ri *RepairItem) Normalize() {
	ri.Supplier = strings.TrimSpace(ri.Supplier)
	if ri.Priority == 0 {
		ri.Priority = DefaultPriority
	}
	if ri.EstimatedCost < 0 || math.IsNaN(ri.EstimatedCost) || math.IsInf(ri.EstimatedCost, 0) {
		ri.EstimatedCost = 0
	}
	if status, ok := ParseStatus(string(ri.ActualCompletionStatus)); ok {
		ri.ActualCompletionStatus = status
	} else {
		ri.ActualCompletionStatus = StatusIncomplete
	}
}

// UnitRecord is a Unit together with the RepairItems it owns.
type UnitRecord struct {
	Unit
	RepairItems []RepairItem `json:"repair_items"`
}

// TotalCost sums the estimated cost of every item.
func (r UnitRecord) TotalCost() float64 {
	var total float64
	for _, item := range r.RepairItems {
		total += item.EstimatedCost
	}
	return total
}

// UnitSummary is a Unit with aggregate counts, as listed by the store.
type UnitSummary struct {
	Unit
	RepairCount int     `json:"repair_count"`
	TotalCost   float64 `json:"total_cost"`
}

// ItemUpdate carries the editable fields of a RepairItem. Nil fields keep
// the stored value.
type ItemUpdate struct {
	Priority               *int
	EstimatedCost          *float64
	Supplier               *string
	RequiredCompletionDate *string
	ActualCompletionStatus *Status
	ActualCompletionDate   *string
}
