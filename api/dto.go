/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types from
  package repairs are serialized directly where their shape already matches
  the wire contract; the types here cover envelopes and request bodies.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Upload:
    UploadResponse

  Bulk save:
    SaveDataRequest, SaveDataResponse

  Units:
    UnitDetailResponse

  Repair items:
    UpdateRepairItemRequest, UpdateRepairItemResponse

  Sessions:
    SessionResponse, LoadDatabaseRequest, DebugDatabaseResponse

VALIDATION:
  UpdateRepairItemRequest is decoded leniently (the UI sends numbers as
  strings or ""), converted to repairItemFields, and validated with
  go-playground/validator. Only fields present in the body are validated.

SEE ALSO:
  - handlers.go: Uses these types
  - repairs/input.go: Lenient bulk-save decoding
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/warp/condo-repairs/repairs"
)

// =============================================================================
// UPLOAD
// =============================================================================

// UploadResponse is returned by POST /api/upload.
type UploadResponse struct {
	Success      bool                   `json:"success"`
	Data         []repairs.UnitRecord   `json:"data"`
	TotalUnits   int                    `json:"total_units"`
	DatabasePath string                 `json:"database_path"`
	Summary      *repairs.BudgetSummary `json:"summary,omitempty"`
}

// =============================================================================
// BULK SAVE
// =============================================================================

// SaveDataRequest is the body of POST /api/save-data.
type SaveDataRequest struct {
	Units []*repairs.UnitInput `json:"units"`
}

// SaveDataResponse echoes the stored shape with assigned ids.
type SaveDataResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message"`
	SavedData []repairs.UnitRecord `json:"savedData"`
}

// =============================================================================
// UNITS
// =============================================================================

// UnitDetailResponse is returned by GET /api/units/{id}.
type UnitDetailResponse struct {
	Unit        repairs.Unit         `json:"unit"`
	RepairItems []repairs.RepairItem `json:"repair_items"`
}

// =============================================================================
// REPAIR ITEMS
// =============================================================================

// UpdateRepairItemRequest is the body of PUT /api/repair-items/{id}.
// Absent fields keep the stored value. The numeric fields are raw so that
// "", null, 5 and "5" can all be told apart from "not sent".
type UpdateRepairItemRequest struct {
	Priority               json.RawMessage `json:"priority"`
	EstimatedCost          json.RawMessage `json:"estimated_cost"`
	Supplier               *string         `json:"supplier"`
	RequiredCompletionDate *string         `json:"required_completion_date"`
	ActualCompletionStatus *string         `json:"actual_completion_status"`
	ActualCompletionDate   *string         `json:"actual_completion_date"`
}

// repairItemFields is the validated form of an update.
type repairItemFields struct {
	Priority               int     `validate:"min=1,max=10"`
	EstimatedCost          float64 `validate:"min=0"`
	Supplier               string  `validate:"max=200"`
	RequiredCompletionDate string  `validate:"omitempty,datetime=2006-01-02"`
	ActualCompletionStatus string  `validate:"oneof=incomplete 'in progress' completed"`
	ActualCompletionDate   string  `validate:"omitempty,datetime=2006-01-02"`
}

// fields converts the request and returns the names of the fields that were
// sent. Blank numeric values and a blank status count as not sent.
func (req UpdateRepairItemRequest) fields() (repairItemFields, []string, error) {
	var (
		f       repairItemFields
		present []string
	)

	if !isBlankJSON(req.Priority) {
		var n repairs.FlexInt
		if err := json.Unmarshal(req.Priority, &n); err != nil {
			return f, nil, asValidationError("priority", err)
		}
		f.Priority = int(n)
		present = append(present, "Priority")
	}
	if !isBlankJSON(req.EstimatedCost) {
		var c repairs.FlexFloat
		if err := json.Unmarshal(req.EstimatedCost, &c); err != nil {
			return f, nil, asValidationError("estimated_cost", err)
		}
		f.EstimatedCost = float64(c)
		present = append(present, "EstimatedCost")
	}
	if req.Supplier != nil {
		f.Supplier = *req.Supplier
		present = append(present, "Supplier")
	}
	if req.RequiredCompletionDate != nil {
		f.RequiredCompletionDate = *req.RequiredCompletionDate
		present = append(present, "RequiredCompletionDate")
	}
	if req.ActualCompletionStatus != nil && *req.ActualCompletionStatus != "" {
		f.ActualCompletionStatus = *req.ActualCompletionStatus
		if status, ok := repairs.ParseStatus(f.ActualCompletionStatus); ok {
			f.ActualCompletionStatus = string(status)
		}
		present = append(present, "ActualCompletionStatus")
	}
	if req.ActualCompletionDate != nil {
		f.ActualCompletionDate = *req.ActualCompletionDate
		present = append(present, "ActualCompletionDate")
	}
	return f, present, nil
}

// update builds the store update from validated fields.
func (f repairItemFields) update(present []string) repairs.ItemUpdate {
	var u repairs.ItemUpdate
	for _, name := range present {
		switch name {
		case "Priority":
			u.Priority = &f.Priority
		case "EstimatedCost":
			u.EstimatedCost = &f.EstimatedCost
		case "Supplier":
			u.Supplier = &f.Supplier
		case "RequiredCompletionDate":
			u.RequiredCompletionDate = &f.RequiredCompletionDate
		case "ActualCompletionStatus":
			status := repairs.Status(f.ActualCompletionStatus)
			u.ActualCompletionStatus = &status
		case "ActualCompletionDate":
			u.ActualCompletionDate = &f.ActualCompletionDate
		}
	}
	return u
}

func isBlankJSON(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte(`""`))
}

// UpdateRepairItemResponse reports rows matched by the update.
type UpdateRepairItemResponse struct {
	Success bool  `json:"success"`
	Changes int64 `json:"changes"`
}

// =============================================================================
// SESSIONS
// =============================================================================

// SessionResponse is returned by session transitions.
type SessionResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	DatabasePath string `json:"databasePath"`
}

// LoadDatabaseRequest is the body of POST /api/load-database.
type LoadDatabaseRequest struct {
	DBPath string `json:"dbPath"`
}

// DebugDatabaseResponse is returned by GET /api/debug/database.
type DebugDatabaseResponse struct {
	Units          int    `json:"units"`
	RepairItems    int    `json:"repair_items"`
	DatabaseLoaded bool   `json:"database_loaded"`
	DatabasePath   string `json:"database_path"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// asValidationError keeps a decoder's own ValidationError and wraps anything
// else under field.
func asValidationError(field string, err error) error {
	var verr *repairs.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &repairs.ValidationError{Field: field, Message: err.Error()}
}
