/*
handlers_test.go - HTTP tests for the API

Tests for:
- Upload (CSV, workbook errors, heuristic summary)
- Bulk save and unit reads
- Repair item updates and their validation
- Session switching endpoints
- Health and metrics
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/condo-repairs/repairs"
	"github.com/warp/condo-repairs/session"
	"github.com/warp/condo-repairs/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler  *Handler
	router   http.Handler
	sessions *session.Controller
	metrics  *Metrics
}

func newTestServer(t *testing.T, mode repairs.Mode, boot bool) *testServer {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	sessions, err := session.New(filepath.Join(t.TempDir(), "databases"), session.WithLogger(logger))
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })
	if boot {
		require.NoError(t, sessions.Boot(context.Background()))
	}

	metrics := NewMetrics()
	h, err := NewHandler(sessions, HandlerConfig{
		Mode:      mode,
		UploadDir: filepath.Join(t.TempDir(), "uploads"),
		Logger:    logger,
		Metrics:   metrics,
	})
	require.NoError(t, err)

	return &testServer{
		handler:  h,
		router:   NewRouter(h, RouterOptions{Metrics: metrics}),
		sessions: sessions,
		metrics:  metrics,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(uploadFormField, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const twoUnitCSV = "Address Number,Street,Owner,Co-owner,Roof,Paint\n" +
	"12,Elm St,Alice,Bob,leaks,\n" +
	"14,Elm St,Carol,,,peeling\n"

// =============================================================================
// UPLOAD
// =============================================================================

func TestUpload_CSVCreatesSession(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	before := srv.sessions.Current()

	// WHEN
	rec := srv.upload(t, "units.csv", []byte(twoUnitCSV))

	// THEN: Two units with ids in a brand new session
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[UploadResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalUnits)
	require.Len(t, resp.Data, 2)
	assert.NotZero(t, resp.Data[0].ID)
	assert.Equal(t, "Alice", resp.Data[0].Name1)
	require.Len(t, resp.Data[0].RepairItems, 1)
	assert.Equal(t, "Roof", resp.Data[0].RepairItems[0].RepairType)
	assert.Nil(t, resp.Summary, "plain mode has no budget summary")

	assert.NotEqual(t, before, resp.DatabasePath)
	assert.Equal(t, resp.DatabasePath, srv.sessions.Current())
	assert.FileExists(t, before, "the previous session stays on disk")

	// The staged upload is gone.
	entries, err := os.ReadDir(srv.handler.UploadDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpload_WithoutPriorSession(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, false)

	rec := srv.upload(t, "units.csv", []byte(twoUnitCSV))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, srv.sessions.Active())
}

func TestUpload_Heuristic(t *testing.T) {
	srv := newTestServer(t, repairs.ModeHeuristic, true)
	csv := "Address Number,Street,Owner,Co-owner,Urgency,Unit_Age,Units_Affected,Structural\n" +
		"12,Elm St,A,B,Critical,25,3,cracked beam\n"

	rec := srv.upload(t, "units.csv", []byte(csv))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[UploadResponse](t, rec)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 1, resp.Summary.TotalRepairs)
	assert.Equal(t, 1, resp.Summary.CriticalRepairs)
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].RepairItems, 1)
	assert.Equal(t, 208, resp.Data[0].RepairItems[0].PriorityScore)
}

func TestUpload_Rejections(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	before := srv.sessions.Current()

	tests := []struct {
		name     string
		filename string
		content  string
		status   int
	}{
		{"unsupported format", "units.txt", "a,b\n", http.StatusBadRequest},
		{"legacy xls", "units.xls", "a,b\n", http.StatusBadRequest},
		{"corrupt workbook", "units.xlsx", "definitely not a zip", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.upload(t, tt.filename, []byte(tt.content))

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.NotEmpty(t, resp.Error)
		})
	}

	assert.Equal(t, before, srv.sessions.Current(), "rejected uploads keep the active session")
}

func TestUpload_MissingFile(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	rec := srv.do(t, http.MethodPost, "/api/upload", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode[ErrorResponse](t, rec).Error)
}

func TestUpload_TooLarge(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	srv.handler.maxUploadBytes = 64

	rec := srv.upload(t, "units.csv", []byte(strings.Repeat(twoUnitCSV, 20)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// =============================================================================
// SAVE AND READ
// =============================================================================

func TestSaveData_RoundTrip(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	// GIVEN: A payload mixing both unit shapes and form-style values
	body := `{"units": [
		{"address_number": "1", "address_street": "Elm", "name1": "A", "name2": "",
		 "repair_items": [{"repair_type": "Roof", "description": "leak", "priority": "6",
		                   "estimated_cost": "120.5", "supplier": " Acme "}]},
		null,
		{"unit": {"address_number": "2", "address_street": "Oak", "name1": "B", "name2": "C"},
		 "repair_items": []}
	]}`

	// WHEN
	rec := srv.do(t, http.MethodPost, "/api/save-data", body)

	// THEN
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SaveDataResponse](t, rec)
	assert.Equal(t, "Data saved successfully", resp.Message)
	require.Len(t, resp.SavedData, 2)
	assert.Equal(t, "Acme", resp.SavedData[0].RepairItems[0].Supplier)

	// AND: load-session returns the same records
	loaded := decode[[]repairs.UnitRecord](t, srv.do(t, http.MethodGet, "/api/load-session", nil))
	assert.Equal(t, resp.SavedData, loaded)

	// AND: saving what was loaded is a fixed point apart from ids
	again := decode[SaveDataResponse](t, srv.do(t, http.MethodPost, "/api/save-data", map[string]any{"units": loaded}))
	require.Len(t, again.SavedData, 2)
	assert.Equal(t, loaded[1].AddressStreet, again.SavedData[1].AddressStreet)
	assert.Equal(t, loaded[0].RepairItems[0].EstimatedCost, again.SavedData[0].RepairItems[0].EstimatedCost)
}

func TestSaveData_NonFiniteCostRejected(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	srv.do(t, http.MethodPost, "/api/save-data", `{"units": [{"address_street": "Elm", "repair_items": [{"estimated_cost": 10}]}]}`)

	rec := srv.do(t, http.MethodPost, "/api/save-data",
		`{"units": [{"address_street": "Oak", "repair_items": [{"estimated_cost": "Infinity"}]}]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	// AND: The previous data is still served as valid JSON
	loaded := decode[[]repairs.UnitRecord](t, srv.do(t, http.MethodGet, "/api/load-session", nil))
	require.Len(t, loaded, 1)
	assert.Equal(t, "Elm", loaded[0].AddressStreet)
}

func TestWriteJSON_UnencodableValueIs500(t *testing.T) {
	rec := httptest.NewRecorder()

	writeJSON(rec, http.StatusOK, map[string]float64{"cost": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()))
	assert.Contains(t, rec.Body.String(), "Failed to encode response")
}

func TestSaveData_MissingUnits(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/save-data", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/save-data", `not json`).Code)
}

func TestUnits_ListAndGet(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	saved := decode[UploadResponse](t, srv.upload(t, "units.csv", []byte(twoUnitCSV))).Data

	list := decode[[]repairs.UnitSummary](t, srv.do(t, http.MethodGet, "/api/units", nil))
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].RepairCount)

	rec := srv.do(t, http.MethodGet, "/api/units/"+itoa(saved[1].ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[UnitDetailResponse](t, rec)
	assert.Equal(t, "14", detail.Unit.AddressNumber)
	require.Len(t, detail.RepairItems, 1)
	assert.Equal(t, "Paint", detail.RepairItems[0].RepairType)
}

func TestGetUnit_Errors(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/units/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/units/999", nil).Code)
}

func TestNoActiveStore(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, false)

	for _, path := range []string{"/api/units", "/api/analysis/costs", "/api/load-session", "/api/debug/database"} {
		rec := srv.do(t, http.MethodGet, path, nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		assert.Equal(t, noDatabaseMessage, decode[ErrorResponse](t, rec).Error, path)
	}
}

// =============================================================================
// REPAIR ITEM UPDATES
// =============================================================================

func firstItemID(t *testing.T, srv *testServer) int64 {
	t.Helper()
	saved := decode[UploadResponse](t, srv.upload(t, "units.csv", []byte(twoUnitCSV))).Data
	return saved[0].RepairItems[0].ID
}

func TestUpdateRepairItem(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	id := firstItemID(t, srv)
	path := "/api/repair-items/" + itoa(id)

	// WHEN: A partial update sent twice, with a blank priority from the form
	body := `{"priority": "", "estimated_cost": "450", "supplier": "Acme", "actual_completion_status": "in progress"}`
	first := srv.do(t, http.MethodPut, path, body)
	second := srv.do(t, http.MethodPut, path, body)

	// THEN: Both match one row
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, int64(1), decode[UpdateRepairItemResponse](t, first).Changes)
	assert.Equal(t, int64(1), decode[UpdateRepairItemResponse](t, second).Changes)

	var item *repairs.RepairItem
	require.NoError(t, srv.sessions.Read(context.Background(), func(s *sqlite.Store) error {
		var err error
		item, err = s.GetRepairItem(context.Background(), id)
		return err
	}))
	require.NotNil(t, item)
	assert.Equal(t, 1, item.Priority, "blank priority is left untouched")
	assert.Equal(t, 450.0, item.EstimatedCost)
	assert.Equal(t, repairs.StatusInProgress, item.ActualCompletionStatus)
	assert.Equal(t, "leaks", item.Description)
}

func TestUpdateRepairItem_Missing(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	rec := srv.do(t, http.MethodPut, "/api/repair-items/999", `{"priority": 3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[UpdateRepairItemResponse](t, rec).Changes)
}

func TestUpdateRepairItem_Validation(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	id := firstItemID(t, srv)
	path := "/api/repair-items/" + itoa(id)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"priority too high", `{"priority": 11}`, "priority"},
		{"priority zero", `{"priority": 0}`, "priority"},
		{"negative cost", `{"estimated_cost": -1}`, "estimated_cost"},
		{"unknown status", `{"actual_completion_status": "done"}`, "actual_completion_status"},
		{"bad date", `{"required_completion_date": "01/02/2024"}`, "required_completion_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPut, path, tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			var resp struct {
				Error   string       `json:"error"`
				Details []FieldError `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			require.Len(t, resp.Details, 1)
			assert.Equal(t, tt.field, resp.Details[0].Field)
		})
	}

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut, path, `{"priority": "high"}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPut, "/api/repair-items/x", `{}`).Code)
}

func TestUpdateRepairItem_NonFiniteCost(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	id := firstItemID(t, srv)
	path := "/api/repair-items/" + itoa(id)

	for _, body := range []string{`{"estimated_cost": "Inf"}`, `{"estimated_cost": "NaN"}`, `{"priority": "1e300"}`} {
		rec := srv.do(t, http.MethodPut, path, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	// THEN: Nothing unencodable reached the store
	rec := srv.do(t, http.MethodGet, "/api/units", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, json.Valid(rec.Body.Bytes()), rec.Body.String())
}

// =============================================================================
// ANALYSIS
// =============================================================================

func TestAnalysis(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	id := firstItemID(t, srv)
	srv.do(t, http.MethodPut, "/api/repair-items/"+itoa(id), `{"estimated_cost": 300, "priority": 9, "supplier": "Acme"}`)

	costs := decode[sqlite.CostSummary](t, srv.do(t, http.MethodGet, "/api/analysis/costs", nil))
	assert.Equal(t, 300.0, costs.TotalCost)
	assert.Equal(t, 300.0, costs.HighPriorityCost)
	assert.Equal(t, 2, costs.TotalRepairs)

	suppliers := decode[[]sqlite.SupplierReport](t, srv.do(t, http.MethodGet, "/api/analysis/suppliers", nil))
	require.Len(t, suppliers, 1)
	assert.Equal(t, "Acme", suppliers[0].Supplier)

	for _, path := range []string{"/api/analysis/units", "/api/analysis/dates", "/api/analysis/repair-types", "/api/analysis/overview"} {
		assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, path, nil).Code, path)
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestSessionEndpoints(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	uploaded := decode[UploadResponse](t, srv.upload(t, "units.csv", []byte(twoUnitCSV)))

	// New session starts empty.
	created := decode[SessionResponse](t, srv.do(t, http.MethodPost, "/api/new-session", nil))
	assert.Equal(t, "New session created successfully", created.Message)
	units := decode[[]repairs.UnitSummary](t, srv.do(t, http.MethodGet, "/api/units", nil))
	assert.Empty(t, units)

	// Databases are listed newest first.
	dbs := decode[[]session.Info](t, srv.do(t, http.MethodGet, "/api/databases", nil))
	require.Len(t, dbs, 3)
	assert.True(t, dbs[0].Active)

	// Loading the uploaded session brings its units back.
	rec := srv.do(t, http.MethodPost, "/api/load-database", LoadDatabaseRequest{DBPath: uploaded.DatabasePath})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[[]repairs.UnitSummary](t, srv.do(t, http.MethodGet, "/api/units", nil)), 2)

	// Reload returns to the newest file.
	reloaded := decode[SessionResponse](t, srv.do(t, http.MethodPost, "/api/reload-session", nil))
	assert.Equal(t, created.DatabasePath, reloaded.DatabasePath)

	debug := decode[DebugDatabaseResponse](t, srv.do(t, http.MethodGet, "/api/debug/database", nil))
	assert.True(t, debug.DatabaseLoaded)
	assert.Zero(t, debug.Units)
}

func TestLoadSession_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	rec := srv.do(t, http.MethodGet, "/api/load-session", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLoadDatabase_Errors(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/load-database", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/load-database", `{"dbPath": "notes.txt"}`).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodPost, "/api/load-database", `{"dbPath": "/nowhere/x.db"}`).Code,
		"paths outside the session directory are rejected")

	missing := filepath.Join(srv.sessions.Dir(), "missing.db")
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/api/load-database", map[string]string{"dbPath": missing}).Code)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, false)

	rec := srv.do(t, http.MethodGet, "/healthz", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "database_loaded": false}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, true)
	srv.upload(t, "units.csv", []byte(twoUnitCSV))
	srv.do(t, http.MethodGet, "/api/units", nil)

	rec := srv.do(t, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `condo_uploads_total{result="ok"} 1`)
	assert.Contains(t, body, `condo_units_ingested_total 2`)
	assert.Contains(t, body, `condo_http_requests_total{method="GET",route="/api/units`)
}

func TestLandingPage(t *testing.T) {
	srv := newTestServer(t, repairs.ModePlain, false)

	rec := srv.do(t, http.MethodGet, "/", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Condo Repair Tracker API")
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
