/*
input.go - Lenient decoding of bulk-save payloads

PURPOSE:
  The UI sends back whatever shape it last received. Over time that has been:
  - flat units:    {"address_number": "12", ..., "repair_items": [...]}
  - nested units:  {"unit": {"address_number": "12", ...}, "repair_items": [...]}
  - null entries:  [{"..."}, null, {"..."}]
  - form values:   {"priority": "", "estimated_cost": "250"}

  UnitInput and RepairItemInput accept all of these and Resolve() them into
  the canonical UnitRecord. Query code downstream never sees the variants.

PRECEDENCE:
  A non-empty top-level field wins; the nested "unit" field is the fallback.
*/
package repairs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// UnitInput is one entry of a bulk-save payload.
type UnitInput struct {
	ID            int64              `json:"id,omitempty"`
	AddressNumber FlexString         `json:"address_number"`
	AddressStreet FlexString         `json:"address_street"`
	Name1         FlexString         `json:"name1"`
	Name2         FlexString         `json:"name2"`
	Unit          *UnitFields        `json:"unit,omitempty"`
	RepairItems   []*RepairItemInput `json:"repair_items"`
}

// UnitFields is the nested "unit" object of the older payload shape.
type UnitFields struct {
	ID            int64      `json:"id,omitempty"`
	AddressNumber FlexString `json:"address_number"`
	AddressStreet FlexString `json:"address_street"`
	Name1         FlexString `json:"name1"`
	Name2         FlexString `json:"name2"`
}

// RepairItemInput is one repair line of a bulk-save payload.
type RepairItemInput struct {
	ID                     int64      `json:"id,omitempty"`
	RepairType             FlexString `json:"repair_type"`
	Description            FlexString `json:"description"`
	Priority               FlexInt    `json:"priority"`
	EstimatedCost          FlexFloat  `json:"estimated_cost"`
	Supplier               FlexString `json:"supplier"`
	RequiredCompletionDate FlexString `json:"required_completion_date"`
	CompletionDate         FlexString `json:"completion_date"` // legacy name
	ActualCompletionStatus FlexString `json:"actual_completion_status"`
	ActualCompletionDate   FlexString `json:"actual_completion_date"`
	PriorityScore          FlexInt    `json:"priority_score"`
	Urgency                FlexString `json:"urgency"`
}

// Resolve collapses the dual shape into a UnitRecord. Nil repair items are
// skipped.
func (in *UnitInput) Resolve() UnitRecord {
	var nested UnitFields
	if in.Unit != nil {
		nested = *in.Unit
	}

	rec := UnitRecord{
		Unit: Unit{
			AddressNumber: firstNonEmpty(string(in.AddressNumber), string(nested.AddressNumber)),
			AddressStreet: firstNonEmpty(string(in.AddressStreet), string(nested.AddressStreet)),
			Name1:         firstNonEmpty(string(in.Name1), string(nested.Name1)),
			Name2:         firstNonEmpty(string(in.Name2), string(nested.Name2)),
		},
		RepairItems: make([]RepairItem, 0, len(in.RepairItems)),
	}

	for _, ri := range in.RepairItems {
		if ri == nil {
			continue
		}
		rec.RepairItems = append(rec.RepairItems, ri.Resolve())
	}
	return rec
}

// Resolve converts the payload item into a normalized RepairItem.
func (in *RepairItemInput) Resolve() RepairItem {
	item := RepairItem{
		RepairType:             string(in.RepairType),
		Description:            string(in.Description),
		Priority:               int(in.Priority),
		EstimatedCost:          float64(in.EstimatedCost),
		Supplier:               string(in.Supplier),
		RequiredCompletionDate: firstNonEmpty(string(in.RequiredCompletionDate), string(in.CompletionDate)),
		ActualCompletionStatus: Status(strings.TrimSpace(string(in.ActualCompletionStatus))),
		ActualCompletionDate:   string(in.ActualCompletionDate),
		PriorityScore:          int(in.PriorityScore),
		Urgency:                string(in.Urgency),
	}
	item.Normalize()
	return item
}

// ResolveAll resolves every non-nil entry, preserving order.
func ResolveAll(inputs []*UnitInput) []UnitRecord {
	out := make([]UnitRecord, 0, len(inputs))
	for _, in := range inputs {
		if in == nil {
			continue
		}
		out = append(out, in.Resolve())
	}
	return out
}

// AsInputs converts records back into the flat input shape. Store ids are
// dropped since a replace assigns new ones.
func AsInputs(records []UnitRecord) []*UnitInput {
	out := make([]*UnitInput, len(records))
	for i, rec := range records {
		in := &UnitInput{
			AddressNumber: FlexString(rec.AddressNumber),
			AddressStreet: FlexString(rec.AddressStreet),
			Name1:         FlexString(rec.Name1),
			Name2:         FlexString(rec.Name2),
			RepairItems:   make([]*RepairItemInput, len(rec.RepairItems)),
		}
		for j, ri := range rec.RepairItems {
			in.RepairItems[j] = &RepairItemInput{
				RepairType:             FlexString(ri.RepairType),
				Description:            FlexString(ri.Description),
				Priority:               FlexInt(ri.Priority),
				EstimatedCost:          FlexFloat(ri.EstimatedCost),
				Supplier:               FlexString(ri.Supplier),
				RequiredCompletionDate: FlexString(ri.RequiredCompletionDate),
				ActualCompletionStatus: FlexString(ri.ActualCompletionStatus),
				ActualCompletionDate:   FlexString(ri.ActualCompletionDate),
				PriorityScore:          FlexInt(ri.PriorityScore),
				Urgency:                FlexString(ri.Urgency),
			}
		}
		out[i] = in
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// =============================================================================
// FLEXIBLE SCALARS
// =============================================================================

// FlexString decodes a JSON string, number, bool, or null into a string.
// Spreadsheet cells round-trip through the UI as numbers ("address_number": 12).
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("expected scalar, got %s", data)
	}
	*s = FlexString(data)
	return nil
}

// FlexInt decodes a JSON number, numeric string, empty string, or null.
// Empty and null decode to zero, which Normalize turns into the default.
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	raw, err := scalarText(data)
	if err != nil {
		return err
	}
	if raw == "" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return &ValidationError{Field: "priority", Message: fmt.Sprintf("out of range: %q", raw)}
		}
		return fmt.Errorf("invalid integer %q", raw)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("must be a finite number, got %q", raw)}
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("out of range: %q", raw)}
	}
	*n = FlexInt(int(f))
	return nil
}

// FlexFloat decodes a JSON number, numeric string, empty string, or null.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	raw, err := scalarText(data)
	if err != nil {
		return err
	}
	if raw == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		// ParseFloat reports overflow ("1e400") as ErrRange with v = ±Inf.
		if errors.Is(err, strconv.ErrRange) {
			return &ValidationError{Field: "estimated_cost", Message: fmt.Sprintf("out of range: %q", raw)}
		}
		return fmt.Errorf("invalid number %q", raw)
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return &ValidationError{Field: "estimated_cost", Message: fmt.Sprintf("must be a finite number, got %q", raw)}
	}
	*f = FlexFloat(v)
	return nil
}

func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return "", err
		}
		return strings.TrimSpace(v), nil
	}
	return string(data), nil
}
