/*
handlers.go - HTTP API handlers for the condo repair tracker

PURPOSE:
  Exposes ingestion, persistence, reporting, and session control via REST.
  Handles HTTP request/response, JSON serialization, and delegates to the
  session controller and the active store.

ENDPOINTS:
  Data:
    POST   /api/upload                 Upload spreadsheet, start new session
    POST   /api/save-data              Replace all units and repair items
    GET    /api/units                  List units with totals
    GET    /api/units/{id}             Unit detail with repair items
    PUT    /api/repair-items/{id}      Update one repair item

  Analysis:
    GET    /api/analysis/costs         Cost summary
    GET    /api/analysis/suppliers     Per supplier
    GET    /api/analysis/units         Per unit
    GET    /api/analysis/dates         Per required completion date
    GET    /api/analysis/repair-types  Per repair type
    GET    /api/analysis/overview      All of the above

  Sessions:
    POST   /api/new-session            Start an empty session
    GET    /api/load-session           Every unit with nested repair items
    GET    /api/databases              Session files, newest first
    POST   /api/load-database          Activate a specific session file
    POST   /api/reload-session         Activate the newest session file
    GET    /api/debug/database         Row counts of the active session

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Sessions: owns the active store; every store call goes through With
  - mapper: plain or heuristic row mapping, fixed at startup
  - validate: update payload rules

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Run the operation inside Sessions.With
  4. Serialize response
  5. Handle errors (writeDomainError)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation, parse, unsupported format, no database loaded
  - 404: Unit, repair item, or database file not found
  - 413: Upload larger than the configured limit
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - sweeper.go: Upload directory cleanup
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/condo-repairs/ingest"
	"github.com/warp/condo-repairs/repairs"
	"github.com/warp/condo-repairs/session"
	"github.com/warp/condo-repairs/store/sqlite"
)

const (
	defaultMaxUploadBytes = 32 << 20
	uploadFormField       = "file"
	noDatabaseMessage     = "No database loaded. Please upload a CSV file first."
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Mode           repairs.Mode
	UploadDir      string
	MaxUploadBytes int64
	Logger         logrus.FieldLogger
	Metrics        *Metrics
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sessions *session.Controller

	mode           repairs.Mode
	mapper         repairs.Mapper
	uploadDir      string
	maxUploadBytes int64
	log            logrus.FieldLogger
	metrics        *Metrics
	validate       *validator.Validate
}

// NewHandler creates a handler over the given session controller.
func NewHandler(sessions *session.Controller, cfg HandlerConfig) (*Handler, error) {
	mapper, err := repairs.NewMapper(cfg.Mode)
	if err != nil {
		return nil, err
	}

	h := &Handler{
		Sessions:       sessions,
		mode:           repairs.Mode(strings.ToLower(string(cfg.Mode))),
		mapper:         mapper,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: cfg.MaxUploadBytes,
		log:            cfg.Logger,
		metrics:        cfg.Metrics,
		validate:       validator.New(),
	}
	if h.uploadDir == "" {
		h.uploadDir = filepath.Join(os.TempDir(), "condo-uploads")
	}
	if h.maxUploadBytes <= 0 {
		h.maxUploadBytes = defaultMaxUploadBytes
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return h, nil
}

// UploadDir returns where uploads are staged before parsing.
func (h *Handler) UploadDir() string {
	return h.uploadDir
}

// withStore runs fn against the active store.
func (h *Handler) withStore(ctx context.Context, fn func(*sqlite.Store) error) error {
	return h.Sessions.With(ctx, fn)
}

// =============================================================================
// UPLOAD
// =============================================================================

// Upload ingests a spreadsheet into a brand new session.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		h.metrics.uploadResult("rejected")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "No file uploaded", err)
		return
	}
	defer file.Close()

	format, err := ingest.FormatFromFilename(header.Filename)
	if err != nil {
		h.metrics.uploadResult("rejected")
		writeDomainError(w, "Unsupported file format", err)
		return
	}

	staged, err := h.stageUpload(file, header.Filename)
	if err != nil {
		h.metrics.uploadResult("failed")
		writeError(w, http.StatusInternalServerError, "Failed to store upload", err)
		return
	}

	log := h.log.WithFields(logrus.Fields{"file": header.Filename, "format": format})

	rows, err := ingest.ParseAndRemove(staged, format)
	if err != nil {
		h.metrics.uploadResult("rejected")
		log.WithError(err).Warn("Upload could not be parsed")
		writeDomainError(w, "Failed to parse file", err)
		return
	}
	records := repairs.MapRows(h.mapper, rows)

	var saved []repairs.UnitRecord
	dbPath, err := h.Sessions.NewSessionWith(ctx, func(s *sqlite.Store) error {
		var err error
		saved, err = s.SaveRecords(ctx, records)
		return err
	})
	if err != nil {
		h.metrics.uploadResult("failed")
		log.WithError(err).Error("Failed to save uploaded data")
		writeError(w, http.StatusInternalServerError, "Failed to save uploaded data", err)
		return
	}

	h.metrics.uploadResult("ok")
	h.metrics.unitsStored(len(saved))
	log.WithFields(logrus.Fields{"units": len(saved), "session": dbPath}).Info("Upload stored")

	resp := UploadResponse{
		Success:      true,
		Data:         saved,
		TotalUnits:   len(saved),
		DatabasePath: dbPath,
	}
	if h.mode == repairs.ModeHeuristic {
		summary := repairs.Summarize(saved)
		resp.Summary = &summary
	}
	writeJSON(w, http.StatusOK, resp)
}

// stageUpload copies the upload to a uniquely named file in the upload
// directory, keeping the original extension.
func (h *Handler) stageUpload(src io.Reader, originalName string) (string, error) {
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(h.uploadDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// =============================================================================
// BULK SAVE
// =============================================================================

// SaveData replaces every unit and repair item in the active session.
func (h *Handler) SaveData(w http.ResponseWriter, r *http.Request) {
	var req SaveDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Units == nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", &repairs.ValidationError{Field: "units", Message: "required"})
		return
	}

	var saved []repairs.UnitRecord
	err := h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		saved, err = s.ReplaceAll(r.Context(), req.Units)
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to save data", err)
		return
	}

	h.log.WithField("units", len(saved)).Info("Data saved")
	writeJSON(w, http.StatusOK, SaveDataResponse{
		Success:   true,
		Message:   "Data saved successfully",
		SavedData: saved,
	})
}

// =============================================================================
// UNIT HANDLERS
// =============================================================================

// ListUnits returns every unit with its repair count and total cost.
func (h *Handler) ListUnits(w http.ResponseWriter, r *http.Request) {
	var units []repairs.UnitSummary
	err := h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		units, err = s.ListUnits(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to list units", err)
		return
	}
	writeJSON(w, http.StatusOK, units)
}

// GetUnit returns one unit and its repair items.
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	id, err := repairs.ParseID("unit id", chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Invalid unit id", err)
		return
	}

	var rec *repairs.UnitRecord
	err = h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		rec, err = s.GetUnit(r.Context(), id)
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to get unit", err)
		return
	}
	if rec == nil {
		writeDomainError(w, "Unit not found", &repairs.NotFoundError{Kind: "unit", Key: chi.URLParam(r, "id")})
		return
	}

	writeJSON(w, http.StatusOK, UnitDetailResponse{
		Unit:        rec.Unit,
		RepairItems: rec.RepairItems,
	})
}

// =============================================================================
// REPAIR ITEM HANDLERS
// =============================================================================

// UpdateRepairItem edits one repair item. Fields absent from the body keep
// their stored values.
func (h *Handler) UpdateRepairItem(w http.ResponseWriter, r *http.Request) {
	id, err := repairs.ParseID("repair item id", chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, "Invalid repair item id", err)
		return
	}

	var req UpdateRepairItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	fields, present, err := req.fields()
	if err != nil {
		writeDomainError(w, "Invalid repair item update", err)
		return
	}
	if len(present) > 0 {
		if err := h.validate.StructPartialCtx(r.Context(), fields, present...); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Error:   "Invalid repair item update",
					Details: formatValidationErrors(verrs),
				})
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid repair item update", err)
			return
		}
	}

	var changes int64
	err = h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		changes, err = s.UpdateRepairItem(r.Context(), id, fields.update(present))
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to update repair item", err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateRepairItemResponse{Success: true, Changes: changes})
}

// formatValidationErrors converts validator errors into field messages.
func formatValidationErrors(errs validator.ValidationErrors) []FieldError {
	details := make([]FieldError, 0, len(errs))
	for _, err := range errs {
		var message string
		switch err.Tag() {
		case "min":
			message = fmt.Sprintf("Field '%s' must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("Field '%s' must not exceed %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("Field '%s' must be one of [%s]", err.Field(), err.Param())
		case "datetime":
			message = fmt.Sprintf("Field '%s' must be a date in YYYY-MM-DD format", err.Field())
		default:
			message = fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", err.Field(), err.Tag())
		}
		details = append(details, FieldError{Field: jsonFieldName(err.Field()), Message: message})
	}
	return details
}

var jsonFieldNames = map[string]string{
	"Priority":               "priority",
	"EstimatedCost":          "estimated_cost",
	"Supplier":               "supplier",
	"RequiredCompletionDate": "required_completion_date",
	"ActualCompletionStatus": "actual_completion_status",
	"ActualCompletionDate":   "actual_completion_date",
}

func jsonFieldName(field string) string {
	if name, ok := jsonFieldNames[field]; ok {
		return name
	}
	return field
}

// =============================================================================
// ANALYSIS
// =============================================================================

// analysis adapts a read-only store query to a handler.
func analysis[T any](h *Handler, message string, query func(*sqlite.Store, context.Context) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var result T
		err := h.withStore(r.Context(), func(s *sqlite.Store) error {
			var err error
			result, err = query(s, r.Context())
			return err
		})
		if err != nil {
			writeDomainError(w, message, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// CostAnalysis returns the cost summary.
func (h *Handler) CostAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute cost summary", (*sqlite.Store).CostSummary)(w, r)
}

// SupplierAnalysis returns the per-supplier breakdown.
func (h *Handler) SupplierAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute supplier breakdown", (*sqlite.Store).SupplierBreakdown)(w, r)
}

// UnitAnalysis returns the per-unit breakdown.
func (h *Handler) UnitAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute unit breakdown", (*sqlite.Store).UnitBreakdown)(w, r)
}

// DateAnalysis returns the per-date breakdown.
func (h *Handler) DateAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute date breakdown", (*sqlite.Store).DateBreakdown)(w, r)
}

// RepairTypeAnalysis returns the per-repair-type breakdown.
func (h *Handler) RepairTypeAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute repair type breakdown", (*sqlite.Store).RepairTypeBreakdown)(w, r)
}

// OverviewAnalysis returns all five reports.
func (h *Handler) OverviewAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis(h, "Failed to compute overview", (*sqlite.Store).Overview)(w, r)
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// NewSession starts an empty session.
func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	path, err := h.Sessions.NewSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create new session", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:      true,
		Message:      "New session created successfully",
		DatabasePath: path,
	})
}

// LoadSession returns every unit with nested repair items.
func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	var records []repairs.UnitRecord
	err := h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		records, err = s.LoadAll(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to load session", err)
		return
	}
	if records == nil {
		records = []repairs.UnitRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// ListDatabases lists session files, newest first.
func (h *Handler) ListDatabases(w http.ResponseWriter, r *http.Request) {
	infos, err := h.Sessions.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list databases", err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// LoadDatabase activates a specific session file.
func (h *Handler) LoadDatabase(w http.ResponseWriter, r *http.Request) {
	var req LoadDatabaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.Sessions.LoadSpecific(r.Context(), req.DBPath); err != nil {
		writeDomainError(w, "Failed to load database", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:      true,
		Message:      "Database loaded successfully",
		DatabasePath: h.Sessions.Current(),
	})
}

// ReloadSession activates the newest session file.
func (h *Handler) ReloadSession(w http.ResponseWriter, r *http.Request) {
	path, err := h.Sessions.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload session", err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Success:      true,
		Message:      "Session reloaded successfully",
		DatabasePath: path,
	})
}

// DebugDatabase reports row counts of the active session.
func (h *Handler) DebugDatabase(w http.ResponseWriter, r *http.Request) {
	var stats sqlite.Stats
	err := h.withStore(r.Context(), func(s *sqlite.Store) error {
		var err error
		stats, err = s.Stats(r.Context())
		return err
	})
	if err != nil {
		writeDomainError(w, "Failed to read database", err)
		return
	}
	writeJSON(w, http.StatusOK, DebugDatabaseResponse{
		Units:          stats.Units,
		RepairItems:    stats.RepairItems,
		DatabaseLoaded: true,
		DatabasePath:   h.Sessions.Current(),
	})
}

// Health reports liveness and whether a session is active.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"database_loaded": h.Sessions.Active(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

// writeJSON encodes before writing the header so an unencodable value turns
// into a 500 instead of a success status with an empty body.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		buf.Reset()
		json.NewEncoder(&buf).Encode(ErrorResponse{Error: "Failed to encode response", Details: err.Error()})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the repairs error taxonomy to a status code.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, repairs.ErrStoreUnavailable):
		writeError(w, http.StatusBadRequest, noDatabaseMessage, nil)
	case repairs.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case repairs.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
