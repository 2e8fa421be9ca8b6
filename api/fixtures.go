/*
fixtures.go - Demo data for development and demonstrations

PURPOSE:
  Populates an empty database with a small cooperative: the default tariff,
  staff accounts, five farmers (three carrying debt), a few days of
  weighments including one awaiting review, one historical payroll run,
  two certification inspections and an opening audit trail.

HOW FIXTURES LOAD:
  1. Save tariff version 1 (default settings and five routes)
  2. Save staff accounts
  3. Register farmers through the debt ledger so opening balances are entries
  4. Save weighments, net weight computed from the tariff
  5. Save the historical run, inspections and audit entries

USAGE VIA API:
  POST /api/fixtures/reset

NOTE:
  Reset clears every table. Only use in development/demo environments.

SEE ALSO:
  - cmd/server/main.go: Seeds an empty database on startup
  - tariff/defaults.go: Default schedule
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/access"
	"github.com/majani/coop-engine/compliance"
	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/payroll"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

// ResetFixtures clears the database and reloads the demo data.
// POST /api/fixtures/reset
func (h *Handler) ResetFixtures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, "Failed to reset database", err)
		return
	}
	if err := h.LoadFixtures(ctx); err != nil {
		h.fail(w, r, "Failed to load fixtures", err)
		return
	}
	h.Logger.InfoContext(ctx, "fixtures reloaded")

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded"})
}

// LoadFixtures writes the demo data. The database must be empty.
func (h *Handler) LoadFixtures(ctx context.Context) error {
	now := h.now()
	sched := tariff.Default()
	if err := h.Store.SaveSchedule(ctx, sched); err != nil {
		return err
	}

	users := access.DefaultUsers()
	for _, u := range users {
		if err := h.Store.SaveUser(ctx, u); err != nil {
			return err
		}
	}

	for _, f := range fixtureFarmers() {
		if err := h.Store.CreateFarmer(ctx, f, "admin", now); err != nil {
			return fmt.Errorf("farmer %s: %w", f.ID, err)
		}
	}

	for _, rec := range fixtureRecords(sched.Settings, now) {
		if err := h.Store.SaveRecord(ctx, rec); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}

	if err := h.Store.SaveRun(ctx, payroll.Run{
		ID:            "PAY-2023-OCT",
		PeriodStart:   "2023-10-01",
		PeriodEnd:     "2023-10-31",
		TotalWeight:   generic.Kg(18500),
		TotalPayout:   generic.KES(452000),
		TotalFarmers:  142,
		ProcessedBy:   "payroll",
		Timestamp:     time.Date(2023, time.November, 1, 10, 0, 0, 0, time.UTC),
		Status:        payroll.RunCompleted,
		TariffVersion: sched.Version,
	}); err != nil {
		return err
	}

	for _, in := range fixtureInspections(now) {
		if err := h.Store.SaveInspection(ctx, in); err != nil {
			return fmt.Errorf("inspection %s: %w", in.ID, err)
		}
	}

	byName := make(map[string]access.User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}
	for _, l := range fixtureLog {
		u := byName[l.user]
		if err := h.Store.Audit().Append(ctx, generic.AuditEntry{
			ID:        l.id,
			Timestamp: now.Add(-l.ago),
			UserID:    u.Username,
			UserName:  u.Name,
			UserRole:  string(u.Role),
			Action:    l.action,
			Details:   l.details,
		}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// FIXTURE DATA
// =============================================================================

func fixtureFarmers() []farmer.Farmer {
	type row struct {
		id, first, middle, last, phone, email, coop, route, centre string
		acreage, lat, lng                                          float64
		kin                                                        farmer.NextOfKin
		inputs, advances                                           float64
	}
	rows := []row{
		{"F001", "Jomo", "", "Kenyatta", "+254700000001", "jomo.k@majani.co.ke", "COOP-KERICHO-01", "Kapsoit", "Kapsoit Main",
			2.5, -0.3677, 35.2831, farmer.NextOfKin{Name: "Ngina Kenyatta", Relation: "Spouse", Phone: "+254700000099"}, 5000, 0},
		{"F002", "Wangari", "", "Maathai", "+254700000002", "wangari@greenbelt.org", "COOP-KERICHO-01", "Kapsoit", "Sosiot",
			5.0, -0.3600, 35.2900, farmer.NextOfKin{Name: "Waweru Mathai", Relation: "Son", Phone: "+254700111222"}, 1200, 2000},
		{"F003", "Ngugi", "wa", "Thiong'o", "+254700000003", "", "COOP-LIMURU-02", "Litein", "Cheborge",
			1.2, -1.1155, 36.6645, farmer.NextOfKin{Name: "Njeeri wa Ngugi", Relation: "Spouse", Phone: "+254722333444"}, 0, 0},
		{"F004", "Lupita", "", "Nyong'o", "+254700000004", "", "COOP-LIMURU-02", "Litein", "Kapkatet",
			3.8, -1.1200, 36.6700, farmer.NextOfKin{}, 8500, 500},
		{"F005", "Eliud", "", "Kipchoge", "+254700000005", "", "COOP-NANDI-03", "Roret", "Mabasi",
			10.0, 0.1833, 35.0833, farmer.NextOfKin{}, 0, 0},
	}

	out := make([]farmer.Farmer, len(rows))
	for i, r := range rows {
		out[i] = farmer.Farmer{
			ID:              r.id,
			FirstName:       r.first,
			MiddleName:      r.middle,
			LastName:        r.last,
			Phone:           r.phone,
			Email:           r.email,
			CooperativeID:   r.coop,
			Route:           r.route,
			Centre:          r.centre,
			Acreage:         decimal.NewFromFloat(r.acreage),
			Location:        &generic.Location{Lat: r.lat, Lng: r.lng},
			NextOfKin:       r.kin,
			BalanceInputs:   generic.KES(r.inputs),
			BalanceAdvances: generic.KES(r.advances),
		}.Normalize()
	}
	return out
}

func fixtureRecords(settings tariff.Settings, now time.Time) []weighment.CollectionRecord {
	type row struct {
		id, farmerID string
		gross        float64
		quality      int
		ago          time.Duration
		clerk        string
		status       weighment.Status
		lat, lng     float64
	}
	day := 24 * time.Hour
	rows := []row{
		{"REC-101", "F001", 12.5, 85, 2 * day, "CLK-01", weighment.StatusApproved, -0.3677, 35.2831},
		{"REC-102", "F002", 45.2, 92, 2 * day, "CLK-01", weighment.StatusApproved, -0.3600, 35.2900},
		{"REC-103", "F001", 15.0, 88, day, "CLK-01", weighment.StatusApproved, -0.3675, 35.2835},
		{"REC-104", "F003", 8.5, 75, day, "CLK-02", weighment.StatusPending, -1.1155, 36.6645},
		{"REC-105", "F005", 120.0, 95, 4 * time.Hour, "CLK-02", weighment.StatusApproved, 0.1833, 35.0833},
	}

	out := make([]weighment.CollectionRecord, len(rows))
	for i, r := range rows {
		gross := generic.Kg(r.gross)
		out[i] = weighment.CollectionRecord{
			ID:           r.id,
			FarmerID:     r.farmerID,
			Weight:       gross,
			NetWeight:    settings.NetWeight(gross),
			QualityScore: r.quality,
			Timestamp:    now.Add(-r.ago),
			ClerkID:      r.clerk,
			Location:     &generic.Location{Lat: r.lat, Lng: r.lng},
			Synced:       true,
			Status:       r.status,
		}
	}
	return out
}

func fixtureInspections(now time.Time) []compliance.Inspection {
	day := 24 * time.Hour

	all := compliance.RainforestCriteria()
	for i := range all {
		all[i].Passed = true
	}
	// storage shed lock failed
	partial := compliance.RainforestCriteria()
	for i := range partial {
		partial[i].Passed = i != 5
	}

	mk := func(id, farmerID, notes string, checklist []compliance.ChecklistItem, ago time.Duration) compliance.Inspection {
		score := compliance.Score(checklist)
		return compliance.Inspection{
			ID:        id,
			FarmerID:  farmerID,
			AuditorID: "officer",
			Date:      now.Add(-ago),
			Notes:     notes,
			Checklist: checklist,
			Score:     score,
			Status:    compliance.StatusFor(score),
		}
	}
	return []compliance.Inspection{
		mk("INS-001", "F001", "Excellent farm management. Buffer zones well maintained.", all, 5*day),
		mk("INS-002", "F003", "Minor issue with chemical storage shed lock. Corrective action required.", partial, 12*day),
	}
}

var fixtureLog = []struct {
	id      string
	user    string
	action  generic.AuditAction
	details string
	ago     time.Duration
}{
	{"LOG-001", "admin", generic.AuditSystemStart, "System initialized", 100000 * time.Second},
	{"LOG-002", "clerk1", generic.AuditLogin, "User logged in", 10 * time.Hour},
	{"LOG-003", "clerk1", generic.AuditCollection, "Added collection record for F001", 35000 * time.Second},
	{"LOG-004", "manager", generic.AuditLogin, "User logged in", 5 * time.Hour},
	{"LOG-005", "manager", generic.AuditUpdateRoutes, "Updated pricing for Kapsoit route", 17500 * time.Second},
}
