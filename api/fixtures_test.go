/*
fixtures_test.go - Tests for the demo data loader

Checks the seeded state matches what the demo walkthrough relies on:
opening debt is in the ledger, net weights follow the tariff, and a
reset returns to the same state.
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majani/coop-engine/farmer"
)

func TestFixtures_SeededState(t *testing.T) {
	ts := newTestServer(t)
	ctx := testContext(t)

	farmers, err := ts.h.Store.ListFarmers(ctx)
	require.NoError(t, err)
	require.Len(t, farmers, 5)
	assert.Equal(t, "Ngugi wa Thiong'o", farmers[2].Name)

	// Opening balances are ledger entries, so replay agrees with the row
	ledger := farmer.NewDebtLedger(ts.h.Store)
	for _, f := range farmers {
		for _, account := range farmer.Accounts {
			bal, err := ledger.Balance(ctx, f.ID, account)
			require.NoError(t, err)
			assert.True(t, bal.Value.Equal(f.Balance(account).Value), "%s %s", f.ID, account)
		}
	}

	rec, err := ts.h.Store.GetRecord(ctx, "REC-102")
	require.NoError(t, err)
	assert.Equal(t, "42.8", rec.NetWeight.Value.String())

	sched, err := ts.h.Store.CurrentSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sched.Version)

	users, err := ts.h.Store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 6)
}

func TestFixtures_ResetRestoresDemoData(t *testing.T) {
	ts := newTestServer(t)

	// GIVEN: Changes on top of the fixtures
	ts.do(t, http.MethodPost, "/api/records", CaptureRequest{FarmerID: "F001", Weight: 10, QualityScore: 90}, "clerk1")
	ts.do(t, http.MethodPut, "/api/tariff/settings", map[string]any{"cess_per_kg": 2.0}, "manager")

	// WHEN: Resetting
	rec := ts.do(t, http.MethodPost, "/api/fixtures/reset", nil, "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: Back to the seeded state
	records := decodeAs[[]RecordDTO](t, ts.do(t, http.MethodGet, "/api/records", nil, ""))
	assert.Len(t, records, 5)
	versions := decodeAs[[]map[string]any](t, ts.do(t, http.MethodGet, "/api/tariff/versions", nil, ""))
	assert.Len(t, versions, 1)
	audit := decodeAs[[]AuditEntryDTO](t, ts.do(t, http.MethodGet, "/api/audit", nil, ""))
	assert.Len(t, audit, 5)
}
