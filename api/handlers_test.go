/*
handlers_test.go - HTTP tests for the API handlers

Tests run the full router against an in-memory store seeded with the demo
fixtures, with the clock pinned to 2025-10-15 10:00 EAT.

Tests for:
- Farmer registration, charges and statements
- Weighment capture, review and sessions
- Payroll computation and settlement (including stale and repeated runs)
- Tariff versioning, sign-in, audit and exports
*/
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majani/coop-engine/ai"
	"github.com/majani/coop-engine/store/sqlite"
)

var eat = time.FixedZone("EAT", 3*60*60)

type testServer struct {
	h      *Handler
	router http.Handler
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := &testServer{now: time.Date(2025, time.October, 15, 10, 0, 0, 0, eat)}
	ts.h = NewHandler(store, nil, logger, eat)
	ts.h.Clock = func() time.Time { return ts.now }
	require.NoError(t, ts.h.LoadFixtures(testContext(t)))

	ts.router = NewRouter(ts.h, RouterOptions{CORSOrigins: []string{"*"}, LogLevel: slog.LevelError})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, user string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User", user)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// FARMERS
// =============================================================================

func TestFarmers_RegisterChargeAndStatement(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: A new farmer with an opening advance
	rec := ts.do(t, http.MethodPost, "/api/farmers", FarmerRequest{
		ID: "F006", FirstName: "Tegla", LastName: "Loroupe", Phone: "+254700000006",
		CooperativeID: "COOP-KERICHO-01", Acreage: 1.5, Route: "Kapsoit", BalanceAdvances: 300,
	}, "admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeAs[FarmerDTO](t, rec)
	assert.Equal(t, "Tegla Loroupe", created.Name)
	assert.Equal(t, 300.0, created.BalanceAdvances)

	// WHEN: Registering the same id again
	rec = ts.do(t, http.MethodPost, "/api/farmers", FarmerRequest{ID: "F006", Name: "Someone", Acreage: 1}, "admin")
	// THEN: Conflict
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN: Issuing inputs typed as text
	rec = ts.do(t, http.MethodPost, "/api/farmers/F006/charges", map[string]any{"type": "inputs", "amount": "1250.50"}, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	charged := decodeAs[FarmerDTO](t, rec)
	assert.InDelta(t, 1250.50, charged.BalanceInputs, 0.001)
	assert.InDelta(t, 300.0, charged.BalanceAdvances, 0.001)

	// THEN: The statement holds the opening advance and the charge
	rec = ts.do(t, http.MethodGet, "/api/farmers/F006/statement", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeAs[[]StatementEntryDTO](t, rec)
	require.Len(t, entries, 2)
	byAccount := map[string]StatementEntryDTO{}
	for _, e := range entries {
		byAccount[e.Account] = e
	}
	assert.InDelta(t, 1250.50, byAccount["inputs"].Balance, 0.001)
	assert.InDelta(t, 300.0, byAccount["advances"].Balance, 0.001)
}

func TestFarmers_ChargeRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		body   map[string]any
		status int
	}{
		{"non-numeric amount", "/api/farmers/F001/charges", map[string]any{"type": "inputs", "amount": "abc"}, http.StatusBadRequest},
		{"negative amount", "/api/farmers/F001/charges", map[string]any{"type": "advances", "amount": -10}, http.StatusBadRequest},
		{"unknown account", "/api/farmers/F001/charges", map[string]any{"type": "loan", "amount": 10}, http.StatusBadRequest},
		{"unknown farmer", "/api/farmers/F999/charges", map[string]any{"type": "inputs", "amount": 10}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, tt.body, "admin")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	// THEN: F001's balance is untouched
	f := decodeAs[FarmerDTO](t, ts.do(t, http.MethodGet, "/api/farmers/F001", nil, ""))
	assert.InDelta(t, 5000.0, f.BalanceInputs, 0.001)
}

func TestFarmers_UpdateKeepsBalances(t *testing.T) {
	ts := newTestServer(t)

	// WHEN: Updating F002's profile with balances in the body
	rec := ts.do(t, http.MethodPut, "/api/farmers/F002", FarmerRequest{
		FirstName: "Wangari", LastName: "Maathai", Phone: "+254711111111",
		Acreage: 6, Route: "Kapsoit", BalanceInputs: 0, BalanceAdvances: 0,
	}, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Profile changed, debt did not
	f := decodeAs[FarmerDTO](t, rec)
	assert.Equal(t, "+254711111111", f.Phone)
	assert.InDelta(t, 1200.0, f.BalanceInputs, 0.001)
	assert.InDelta(t, 2000.0, f.BalanceAdvances, 0.001)
}

func TestFarmers_RunningBalance(t *testing.T) {
	ts := newTestServer(t)

	// F001 has REC-101 (10.75 kg net) and REC-103 (13.2 kg net) this month
	rec := ts.do(t, http.MethodGet, "/api/farmers/F001/balance", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rb := decodeAs[RunningBalanceDTO](t, rec)
	assert.Equal(t, "2025-10", rb.Month)
	assert.InDelta(t, 23.95, rb.Weight, 0.001)
	assert.InDelta(t, 598.75, rb.Gross, 0.001)
}

// =============================================================================
// RECORDS
// =============================================================================

func TestRecords_CaptureLowQualityGoesToReview(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/sessions/clerk1/open", nil, "clerk1").Code)

	// WHEN: Capturing 20 kg at quality 60
	rec := ts.do(t, http.MethodPost, "/api/records", CaptureRequest{
		FarmerID: "F002", Weight: 20, QualityScore: 60, ClerkID: "clerk1",
	}, "clerk1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: Pending, net 18.1 kg, counted in the session
	resp := decodeAs[CaptureResponse](t, rec)
	assert.Equal(t, "pending", resp.Record.Status)
	assert.InDelta(t, 18.1, resp.Record.NetWeight, 0.001)
	assert.True(t, resp.Session.Active)
	assert.Equal(t, 1, resp.Session.Count)

	pending := decodeAs[[]RecordDTO](t, ts.do(t, http.MethodGet, "/api/records/pending", nil, ""))
	assert.Len(t, pending, 2)
}

func TestRecords_CaptureRejectsBadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		req    CaptureRequest
		status int
	}{
		{"zero weight", CaptureRequest{FarmerID: "F001", Weight: 0, QualityScore: 90}, http.StatusBadRequest},
		{"over the limit", CaptureRequest{FarmerID: "F001", Weight: 250, QualityScore: 90}, http.StatusBadRequest},
		{"quality out of range", CaptureRequest{FarmerID: "F001", Weight: 10, QualityScore: 101}, http.StatusBadRequest},
		{"no farmer", CaptureRequest{Weight: 10, QualityScore: 90}, http.StatusBadRequest},
		{"unknown farmer", CaptureRequest{FarmerID: "F999", Weight: 10, QualityScore: 90}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/records", tt.req, "clerk1")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	records := decodeAs[[]RecordDTO](t, ts.do(t, http.MethodGet, "/api/records", nil, ""))
	assert.Len(t, records, 5)
}

func TestRecords_Preview(t *testing.T) {
	ts := newTestServer(t)

	// F005 is on Roret: 26 KES/kg, 3 KES/kg transport
	rec := ts.do(t, http.MethodPost, "/api/records/preview", PreviewRequest{FarmerID: "F005", Weight: 51.5}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	b := decodeAs[BreakdownDTO](t, rec)
	assert.InDelta(t, 48.97, b.Net, 0.001)
	assert.InDelta(t, 1273.22, b.GrossPay, 0.001)
	assert.InDelta(t, 146.91, b.Transport, 0.001)
}

func TestRecords_ReviewOnlyOnce(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/records/REC-104/approve", nil, "manager")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "approved", decodeAs[RecordDTO](t, rec).Status)

	// WHEN: Rejecting a record that is no longer pending
	rec = ts.do(t, http.MethodPost, "/api/records/REC-104/reject", nil, "manager")
	// THEN: Conflict
	assert.Equal(t, http.StatusConflict, rec.Code)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/records/REC-999/approve", nil, "manager").Code)
}

// =============================================================================
// PAYROLL
// =============================================================================

func TestPayroll_SettleRecoversDebtOnce(t *testing.T) {
	ts := newTestServer(t)
	query := "?start=2025-10-01&end=2025-10-31"

	// GIVEN: The pending payroll for October
	rec := ts.do(t, http.MethodGet, "/api/payroll"+query+"&mode=pending", nil, "payroll")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pay := decodeAs[PayrollDTO](t, rec)
	assert.Equal(t, []string{"REC-101", "REC-102", "REC-103", "REC-105"}, pay.RecordIDs)
	// F003 only has a pending record and no debt
	ids := make([]string, len(pay.Payments))
	for i, p := range pay.Payments {
		ids[i] = p.FarmerID
	}
	assert.Equal(t, []string{"F001", "F002", "F004", "F005"}, ids)
	assert.InDelta(t, 598.75, pay.Payments[0].Deductions.Inputs, 0.001)
	assert.InDelta(t, -500.0, pay.Payments[2].NetPay, 0.001)

	// WHEN: Settling exactly the reviewed batch
	rec = ts.do(t, http.MethodPost, "/api/payroll/settle", pay.Reviewed("2025-10-01", "2025-10-31"), "payroll")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	settled := decodeAs[SettleResponse](t, rec)
	assert.Equal(t, "Finance Lead", settled.Run.ProcessedBy)
	assert.Equal(t, 3, settled.Run.TotalFarmers) // F004 only had debt
	assert.Equal(t, 1, settled.Run.TariffVersion)
	assert.InDelta(t, pay.Summary.Net, settled.Run.TotalPayout, 0.001)

	// THEN: Debt was recovered once
	f001 := decodeAs[FarmerDTO](t, ts.do(t, http.MethodGet, "/api/farmers/F001", nil, ""))
	assert.InDelta(t, 4401.25, f001.BalanceInputs, 0.001)
	f002 := decodeAs[FarmerDTO](t, ts.do(t, http.MethodGet, "/api/farmers/F002", nil, ""))
	assert.InDelta(t, 130.0, f002.BalanceInputs, 0.001)
	assert.InDelta(t, 0.0, f002.BalanceAdvances, 0.001)

	// AND: The records carry the run
	records := decodeAs[[]RecordDTO](t, ts.do(t, http.MethodGet, "/api/records?farmer_id=F001", nil, ""))
	for _, r := range records {
		assert.Equal(t, settled.Run.ID, r.PayrollRunID)
	}

	// WHEN: Settling again
	rec = ts.do(t, http.MethodPost, "/api/payroll/settle", SettleRequest{Start: "2025-10-01", End: "2025-10-31"}, "payroll")
	// THEN: Nothing left to settle, balances unchanged
	assert.Equal(t, http.StatusConflict, rec.Code)
	f001 = decodeAs[FarmerDTO](t, ts.do(t, http.MethodGet, "/api/farmers/F001", nil, ""))
	assert.InDelta(t, 4401.25, f001.BalanceInputs, 0.001)

	// AND: History mode still shows the settled payments
	hist := decodeAs[PayrollDTO](t, ts.do(t, http.MethodGet, "/api/payroll"+query+"&mode=history", nil, ""))
	require.NotEmpty(t, hist.Payments)
	assert.True(t, hist.Payments[0].IsSettled)

	runs := decodeAs[[]RunDTO](t, ts.do(t, http.MethodGet, "/api/payroll/runs", nil, ""))
	require.Len(t, runs, 2)
	assert.Equal(t, settled.Run.ID, runs[0].ID)
}

func TestPayroll_StaleBatchIsRejected(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: An officer reviewed the batch before REC-104 was approved
	pay := decodeAs[PayrollDTO](t, ts.do(t, http.MethodGet, "/api/payroll?start=2025-10-01&end=2025-10-31", nil, "payroll"))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/records/REC-104/approve", nil, "manager").Code)

	// WHEN: Settling the reviewed ids
	rec := ts.do(t, http.MethodPost, "/api/payroll/settle", SettleRequest{
		Start: "2025-10-01", End: "2025-10-31", RecordIDs: pay.RecordIDs,
	}, "payroll")

	// THEN: Conflict, and no run was written
	assert.Equal(t, http.StatusConflict, rec.Code)
	runs := decodeAs[[]RunDTO](t, ts.do(t, http.MethodGet, "/api/payroll/runs", nil, ""))
	assert.Len(t, runs, 1)
}

func TestPayroll_ChargeAfterReviewIsRejected(t *testing.T) {
	ts := newTestServer(t)
	query := "/api/payroll?start=2025-10-01&end=2025-10-31"

	// GIVEN: The officer reviewed October, then F001 was advanced 1000
	pay := decodeAs[PayrollDTO](t, ts.do(t, http.MethodGet, query, nil, "payroll"))
	rec := ts.do(t, http.MethodPost, "/api/farmers/F001/charges", map[string]any{"type": "advances", "amount": 1000}, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Settling what was reviewed
	rec = ts.do(t, http.MethodPost, "/api/payroll/settle", pay.Reviewed("2025-10-01", "2025-10-31"), "payroll")

	// THEN: Conflict naming the farmer, and nothing was written
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "F001")
	runs := decodeAs[[]RunDTO](t, ts.do(t, http.MethodGet, "/api/payroll/runs", nil, ""))
	assert.Len(t, runs, 1)
	f001 := decodeAs[FarmerDTO](t, ts.do(t, http.MethodGet, "/api/farmers/F001", nil, ""))
	assert.InDelta(t, 1000.0, f001.BalanceAdvances, 0.001)
	assert.InDelta(t, 5000.0, f001.BalanceInputs, 0.001)

	// AND: A fresh review settles with the advance deducted
	again := decodeAs[PayrollDTO](t, ts.do(t, http.MethodGet, query, nil, "payroll"))
	assert.InDelta(t, pay.Summary.Net-1000, again.Summary.Net, 0.001)
	rec = ts.do(t, http.MethodPost, "/api/payroll/settle", again.Reviewed("2025-10-01", "2025-10-31"), "payroll")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.InDelta(t, again.Summary.Net, decodeAs[SettleResponse](t, rec).Run.TotalPayout, 0.001)
}

func TestPayroll_TariffChangeAfterReviewIsRejected(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: The cess rose after the officer reviewed the batch
	pay := decodeAs[PayrollDTO](t, ts.do(t, http.MethodGet, "/api/payroll?start=2025-10-01&end=2025-10-31", nil, "payroll"))
	rec := ts.do(t, http.MethodPut, "/api/tariff/settings", map[string]any{"cess_per_kg": 4.0}, "manager")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: Settling the reviewed figures
	rec = ts.do(t, http.MethodPost, "/api/payroll/settle", pay.Reviewed("2025-10-01", "2025-10-31"), "payroll")

	// THEN: Conflict on the tariff version
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeAs[ErrorResponse](t, rec).Details, "tariff version 1 is now 2")
	runs := decodeAs[[]RunDTO](t, ts.do(t, http.MethodGet, "/api/payroll/runs", nil, ""))
	assert.Len(t, runs, 1)
}

func TestPayroll_RejectsBadQuery(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/payroll?start=2025-10-31&end=2025-10-01", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/payroll?mode=weekly", nil, "").Code)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/payroll/settle",
		SettleRequest{Start: "2024-01-01", End: "2024-01-31"}, "payroll").Code)
}

func TestPayroll_Export(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/payroll/export?start=2025-10-01&end=2025-10-31", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "2025-10-01")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 5) // header + four farmers
}

// =============================================================================
// TARIFF
// =============================================================================

func TestTariff_UpdatesCreateVersions(t *testing.T) {
	ts := newTestServer(t)

	// WHEN: Raising moisture to 3%
	rec := ts.do(t, http.MethodPut, "/api/tariff/settings", map[string]any{"moisture_deduction": 3.0}, "manager")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Version 2 is in force and version 1 is kept
	versions := decodeAs[[]map[string]any](t, ts.do(t, http.MethodGet, "/api/tariff/versions", nil, ""))
	require.Len(t, versions, 2)
	assert.EqualValues(t, 2, versions[0]["version"])
	assert.EqualValues(t, 1, versions[1]["version"])

	// AND: New captures use it: 10 kg -> 8.5 - 0.3 = 8.2 kg
	capture := decodeAs[CaptureResponse](t, ts.do(t, http.MethodPost, "/api/records",
		CaptureRequest{FarmerID: "F001", Weight: 10, QualityScore: 90}, "clerk1"))
	assert.InDelta(t, 8.2, capture.Record.NetWeight, 0.001)

	// WHEN: Setting a negative cess
	rec = ts.do(t, http.MethodPut, "/api/tariff/settings", map[string]any{"cess_per_kg": -1.0}, "manager")
	// THEN: Rejected, no version added
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	versions = decodeAs[[]map[string]any](t, ts.do(t, http.MethodGet, "/api/tariff/versions", nil, ""))
	assert.Len(t, versions, 2)
}

// =============================================================================
// DIRECTORY, SESSIONS, AUDIT
// =============================================================================

func TestLogin_ResolvesStaffAndFarmers(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		username  string
		status    int
		role      string
		workspace string
	}{
		{"CLERK1", http.StatusOK, "Clerk", "mobile-app"},
		{"f003", http.StatusOK, "Farmer", "farmer-portal"},
		{"payroll", http.StatusOK, "Payroll Administrator", "admin-dashboard"},
		{"nobody", http.StatusNotFound, "", ""},
		{"  ", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.username, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/login", LoginRequest{Username: tt.username}, "")
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			u := decodeAs[UserDTO](t, rec)
			assert.Equal(t, tt.role, u.Role)
			assert.Equal(t, tt.workspace, u.Workspace)
		})
	}
}

func TestUsers_CreateThenUpdate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/users", UserRequest{Username: "clerk3", Name: "Amos Kirui", Role: "Clerk"}, "admin")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/users", UserRequest{Username: "clerk3", Name: "Amos Kirui", Role: "Manager"}, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "admin-dashboard", decodeAs[UserDTO](t, rec).Workspace)

	assert.Equal(t, http.StatusBadRequest,
		ts.do(t, http.MethodPost, "/api/users", UserRequest{Username: "x", Name: "X", Role: "Janitor"}, "admin").Code)

	entries := decodeAs[[]AuditEntryDTO](t, ts.do(t, http.MethodGet, "/api/audit?action=CREATE_USER&action=UPDATE_USER", nil, ""))
	require.Len(t, entries, 2)
	assert.Equal(t, "UPDATE_USER", entries[0].Action)
	assert.Equal(t, "System Administrator", entries[0].UserName)
}

func TestSessions_ExpireAtMidnight(t *testing.T) {
	ts := newTestServer(t)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/sessions/clerk2/open", nil, "clerk2").Code)
	ts.do(t, http.MethodPost, "/api/records", CaptureRequest{FarmerID: "F005", Weight: 30, QualityScore: 90, ClerkID: "clerk2"}, "clerk2")

	// Later the same day the session is intact
	ts.now = ts.now.Add(10 * time.Hour)
	s := decodeAs[SessionDTO](t, ts.do(t, http.MethodGet, "/api/sessions/clerk2", nil, ""))
	assert.True(t, s.Active)
	assert.Equal(t, 1, s.Count)

	// WHEN: Reading it after midnight
	ts.now = ts.now.Add(4 * time.Hour)
	s = decodeAs[SessionDTO](t, ts.do(t, http.MethodGet, "/api/sessions/clerk2", nil, ""))

	// THEN: Discarded and reported as expired
	assert.False(t, s.Active)
	assert.True(t, s.Expired)
	assert.Zero(t, s.Count)
}

func TestSessions_CloseReturnsSummary(t *testing.T) {
	ts := newTestServer(t)

	ts.do(t, http.MethodPost, "/api/sessions/clerk1/open", nil, "clerk1")
	ts.do(t, http.MethodPost, "/api/records", CaptureRequest{FarmerID: "F001", Weight: 10, QualityScore: 90, ClerkID: "clerk1"}, "clerk1")
	ts.do(t, http.MethodPost, "/api/records", CaptureRequest{FarmerID: "F002", Weight: 20, QualityScore: 90, ClerkID: "clerk1"}, "clerk1")

	rec := ts.do(t, http.MethodPost, "/api/sessions/clerk1/close", nil, "clerk1")
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeAs[SessionDTO](t, rec)
	assert.False(t, s.Active)
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 26.4, s.Weight, 0.001) // 8.3 + 18.1
}

func TestAudit_FiltersByUserAndAction(t *testing.T) {
	ts := newTestServer(t)

	entries := decodeAs[[]AuditEntryDTO](t, ts.do(t, http.MethodGet, "/api/audit?user_id=clerk1", nil, ""))
	require.Len(t, entries, 2)
	assert.Equal(t, "LOG-003", entries[0].ID)

	entries = decodeAs[[]AuditEntryDTO](t, ts.do(t, http.MethodGet, "/api/audit?action=login&limit=1", nil, ""))
	require.Len(t, entries, 1)
	assert.Equal(t, "LOG-004", entries[0].ID)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/audit?limit=-1", nil, "").Code)
}

// =============================================================================
// COMPLIANCE, DASHBOARD, AI
// =============================================================================

func TestInspections_ScoreAndSummary(t *testing.T) {
	ts := newTestServer(t)

	checklist := decodeAs[[]ChecklistItemDTO](t, ts.do(t, http.MethodGet, "/api/inspections/criteria", nil, ""))
	require.Len(t, checklist, 8)
	for i := range checklist {
		checklist[i].Passed = i < 6
	}

	rec := ts.do(t, http.MethodPost, "/api/inspections", InspectionRequest{FarmerID: "F005", Checklist: checklist}, "officer")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	in := decodeAs[InspectionDTO](t, rec)
	assert.InDelta(t, 75.0, in.Score, 0.001)
	assert.Equal(t, "non_compliant", in.Status)
	assert.Equal(t, "officer", in.AuditorID)

	tally := decodeAs[TallyDTO](t, ts.do(t, http.MethodGet, "/api/inspections/summary", nil, ""))
	assert.Equal(t, 3, tally.Total)
	assert.Equal(t, 1, tally.Compliant)
	assert.Equal(t, 1, tally.Conditional)
	assert.Equal(t, 1, tally.NonCompliant)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/dashboard", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeAs[DashboardDTO](t, rec)

	assert.InDelta(t, 201.2, d.TotalWeight, 0.001)
	assert.Equal(t, 4, d.UniqueFarmers)
	assert.Equal(t, 1, d.PendingCount)
	assert.Len(t, d.Daily, 3)
	require.NotEmpty(t, d.RouteWeights)
	assert.Equal(t, "Roret", d.RouteWeights[0].Route)
}

func TestAI_UnavailableWithoutKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/ai/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decodeAs[TextDTO](t, rec)
	assert.False(t, out.Available)
	assert.Equal(t, ai.MsgUnavailableKey, out.Text)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/ai/analyze", AnalyzeRequest{Model: "regression"}, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/ai/ask", AskRequest{}, "").Code)
}
