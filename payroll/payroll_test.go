package payroll_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/payroll"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// FIXTURES
// =============================================================================

var loc = time.FixedZone("EAT", 3*60*60)

func day(d int, hour int) time.Time {
	return time.Date(2025, time.October, d, hour, 0, 0, 0, loc)
}

func grower(id, route string, inputs, advances float64) farmer.Farmer {
	return farmer.Farmer{
		ID:              id,
		Name:            "Farmer " + id,
		Phone:           "0700" + id,
		Route:           route,
		BalanceInputs:   generic.KES(inputs),
		BalanceAdvances: generic.KES(advances),
	}
}

func weighing(id, farmerID string, gross float64, at time.Time) weighment.CollectionRecord {
	s := tariff.DefaultSettings()
	g := generic.Kg(gross)
	return weighment.CollectionRecord{
		ID:           id,
		FarmerID:     farmerID,
		Weight:       g,
		NetWeight:    s.NetWeight(g),
		QualityScore: 90,
		Timestamp:    at,
		Status:       weighment.StatusApproved,
	}
}

func window(t *testing.T, start, end string) generic.DateWindow {
	t.Helper()
	w, err := generic.NewDateWindow(start, end, loc)
	require.NoError(t, err)
	return w
}

func compute(records []weighment.CollectionRecord, farmers []farmer.Farmer, w generic.DateWindow, mode payroll.Mode) payroll.Result {
	return payroll.Compute(payroll.Query{
		Records:  records,
		Farmers:  farmers,
		Schedule: tariff.Default(),
		Window:   w,
		Mode:     mode,
	})
}

// settle runs compute -> settle -> apply, the full cycle a payroll officer drives.
func settle(t *testing.T, records []weighment.CollectionRecord, farmers []farmer.Farmer, w generic.DateWindow) (payroll.Settlement, []weighment.CollectionRecord, []farmer.Farmer) {
	t.Helper()
	res := compute(records, farmers, w, payroll.ModePending)
	s, err := payroll.Settle(res.Command("payroll", day(31, 17)))
	require.NoError(t, err)
	return s, s.ApplyRecords(records), s.ApplyFarmers(farmers)
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestEndToEnd_SingleRecordSettlement(t *testing.T) {
	// GIVEN: Kapsoit (25/kg, transport 2/kg), default settings, one 50 kg bag
	farmers := []farmer.Farmer{grower("F", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{weighing("R1", "F", 50, day(10, 9))}

	// WHEN: the pending payroll is computed
	res := compute(records, farmers, generic.DateWindow{Location: loc}, payroll.ModePending)

	// THEN: 47.5 kg, 1187.5 gross, 147.5 operational deductions, 1040 net
	require.Len(t, res.Payments, 1)
	p := res.Payments[0]
	assert.Equal(t, "47.5", p.TotalKg.Value.String())
	assert.Equal(t, "1187.5", p.GrossPay.Value.String())
	assert.Equal(t, "95", p.Deductions.Transport.Value.String())
	assert.Equal(t, "47.5", p.Deductions.Cess.Value.String())
	assert.Equal(t, "5", p.Deductions.TransactionCost.Value.String())
	assert.Equal(t, "147.5", p.TotalDeductions.Value.String())
	assert.Equal(t, "1040", p.NetPay.Value.String())
	assert.Equal(t, 1, p.Sessions)
	assert.False(t, p.IsSettled)

	// WHEN: it is settled
	s, err := payroll.Settle(res.Command("payroll", day(31, 17)))
	require.NoError(t, err)
	settled := s.ApplyRecords(records)

	// THEN: the run carries the totals and the record carries the run
	assert.Equal(t, "47.5", s.Run.TotalWeight.Value.String())
	assert.Equal(t, "1040", s.Run.TotalPayout.Value.String())
	assert.Equal(t, 1, s.Run.TotalFarmers)
	assert.Equal(t, payroll.RunCompleted, s.Run.Status)
	assert.Equal(t, "payroll", s.Run.ProcessedBy)
	assert.Equal(t, 1, s.Run.TariffVersion)
	assert.True(t, strings.HasPrefix(s.Run.ID, "PAY-"))
	assert.Equal(t, s.Run.ID, settled[0].PayrollRunID)
	assert.Equal(t, weighment.StatusApproved, settled[0].Status)
}

// =============================================================================
// ELIGIBILITY AND WINDOW
// =============================================================================

func TestCompute_PendingModeSkipsUnapprovedAndSettled(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 20, day(1, 8)),
		weighing("R2", "F1", 20, day(2, 8)),
		weighing("R3", "F1", 20, day(3, 8)),
		weighing("R4", "F1", 20, day(4, 8)),
	}
	records[1].Status = weighment.StatusPending
	records[2].Status = weighment.StatusRejected
	records[3].PayrollRunID = "PAY-OLD"

	pending := compute(records, farmers, generic.DateWindow{}, payroll.ModePending)
	history := compute(records, farmers, generic.DateWindow{}, payroll.ModeHistory)

	require.Len(t, pending.Records, 1)
	assert.Equal(t, "R1", pending.Records[0].ID)
	assert.Len(t, history.Records, 4)
	assert.Equal(t, 4, history.Payments[0].Sessions)
}

func TestCompute_WindowIsInclusiveOfWholeDays(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("before", "F1", 10, time.Date(2025, time.October, 4, 23, 59, 59, 999e6, loc)),
		weighing("first", "F1", 10, time.Date(2025, time.October, 5, 0, 0, 0, 0, loc)),
		weighing("last", "F1", 10, time.Date(2025, time.October, 7, 23, 59, 59, 999e6, loc)),
		weighing("after", "F1", 10, time.Date(2025, time.October, 8, 0, 0, 0, 0, loc)),
	}

	res := compute(records, farmers, window(t, "2025-10-05", "2025-10-07"), payroll.ModeHistory)

	var ids []string
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"first", "last"}, ids)

	open := compute(records, farmers, window(t, "2025-10-06", ""), payroll.ModeHistory)
	assert.Len(t, open.Records, 2)
}

func TestCompute_IsSettledOnlyWhenEveryRecordIsStamped(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0), grower("F2", "Roret", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 10, day(1, 8)),
		weighing("R2", "F1", 10, day(2, 8)),
		weighing("R3", "F2", 10, day(2, 8)),
	}
	records[0].PayrollRunID = "PAY-1"
	records[2].PayrollRunID = "PAY-1"

	res := compute(records, farmers, generic.DateWindow{}, payroll.ModeHistory)

	require.Len(t, res.Payments, 2)
	assert.False(t, res.Payments[0].IsSettled)
	assert.True(t, res.Payments[1].IsSettled)
}

// =============================================================================
// DEBT RECOVERY
// =============================================================================

func TestCompute_InputsCappedAtGrossAdvancesTakenInFull(t *testing.T) {
	// GIVEN: 5000 inputs owed, 2000 advances, and a period earning exactly 3000 gross
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 5000, 2000)}
	r := weighing("R1", "F1", 0, day(5, 9))
	r.NetWeight = generic.Kg(120) // 120 kg x 25 = 3000
	res := compute([]weighment.CollectionRecord{r}, farmers, generic.DateWindow{}, payroll.ModePending)

	require.Len(t, res.Payments, 1)
	p := res.Payments[0]
	assert.Equal(t, "3000", p.GrossPay.Value.String())
	assert.Equal(t, "3000", p.Deductions.Inputs.Value.String())
	assert.Equal(t, "2000", p.Deductions.Advances.Value.String())

	// Net is allowed below zero: 3000 - (240 + 120 + 5 + 3000 + 2000)
	assert.Equal(t, "-2365", p.NetPay.Value.String())
}

func TestCompute_DebtOnlyFarmersAppearInPendingMode(t *testing.T) {
	farmers := []farmer.Farmer{
		grower("F1", "Kapsoit", 0, 0),
		grower("F2", "Litein", 1200, 2000), // no collections, owes
		grower("F3", "Roret", 0, 0),        // no collections, owes nothing
		grower("F4", "Atlantis", 500, 0),   // unknown route, no collections
	}
	records := []weighment.CollectionRecord{weighing("R1", "F1", 30, day(3, 8))}

	pending := compute(records, farmers, generic.DateWindow{}, payroll.ModePending)
	history := compute(records, farmers, generic.DateWindow{}, payroll.ModeHistory)

	// F2 appears for its 2000 advances; inputs are capped at zero gross.
	// F4's inputs deduction is min(500, 0) = 0, so it stays hidden.
	require.Len(t, pending.Payments, 2)
	assert.Equal(t, "F1", pending.Payments[0].FarmerID)
	assert.Equal(t, "F2", pending.Payments[1].FarmerID)
	assert.True(t, pending.Payments[1].Deductions.Inputs.IsZero())
	assert.Equal(t, "-2000", pending.Payments[1].NetPay.Value.String())

	require.Len(t, history.Payments, 1)
}

func TestCompute_UnknownRoutePricesAtZero(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Atlantis", 0, 0)}
	res := compute([]weighment.CollectionRecord{weighing("R1", "F1", 50, day(3, 8))}, farmers, generic.DateWindow{}, payroll.ModePending)

	require.Len(t, res.Payments, 1)
	p := res.Payments[0]
	assert.True(t, p.GrossPay.IsZero())
	assert.True(t, p.Deductions.Transport.IsZero())
	assert.Equal(t, "47.5", p.Deductions.Cess.Value.String(), "cess is route-independent")
}

func TestCompute_OrderFollowsFarmerList(t *testing.T) {
	farmers := []farmer.Farmer{grower("F9", "Roret", 0, 0), grower("F1", "Kapsoit", 0, 0), grower("F5", "Litein", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 10, day(1, 8)),
		weighing("R2", "F5", 10, day(1, 8)),
		weighing("R3", "F9", 10, day(1, 8)),
	}

	res := compute(records, farmers, generic.DateWindow{}, payroll.ModePending)

	require.Len(t, res.Payments, 3)
	assert.Equal(t, []string{"F9", "F1", "F5"}, []string{res.Payments[0].FarmerID, res.Payments[1].FarmerID, res.Payments[2].FarmerID})
}

func TestSummary_SumsEmittedPayments(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0), grower("F2", "Roret", 100, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 50, day(1, 8)),
		weighing("R2", "F2", 100, day(1, 8)),
	}

	res := compute(records, farmers, generic.DateWindow{}, payroll.ModePending)

	var net, gross, deductions generic.Amount = generic.KES(0), generic.KES(0), generic.KES(0)
	for _, p := range res.Payments {
		net = net.Add(p.NetPay)
		gross = gross.Add(p.GrossPay)
		deductions = deductions.Add(p.TotalDeductions)
	}
	assert.Equal(t, 2, res.Summary.Farmers)
	assert.Equal(t, "144", res.Summary.Weight.Value.String())
	assert.True(t, res.Summary.Net.Equal(net))
	assert.True(t, res.Summary.Gross.Equal(gross))
	assert.True(t, res.Summary.Deductions.Equal(deductions))
	assert.True(t, res.Summary.Gross.Sub(res.Summary.Deductions).Equal(res.Summary.Net))
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestSettlement_IsOneWay(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 40, day(2, 8)),
		weighing("R2", "F1", 40, day(9, 8)),
	}

	_, after, _ := settle(t, records, farmers, window(t, "2025-10-01", "2025-10-05"))

	// Every later pending aggregation, whatever the window, excludes R1.
	for _, w := range []generic.DateWindow{
		{Location: loc},
		window(t, "2025-10-01", "2025-10-05"),
		window(t, "2025-10-02", "2025-10-02"),
		window(t, "", "2025-12-31"),
	} {
		for _, r := range compute(after, farmers, w, payroll.ModePending).Records {
			assert.NotEqual(t, "R1", r.ID, "window %s", w)
		}
	}
	assert.Len(t, compute(after, farmers, generic.DateWindow{}, payroll.ModePending).Records, 1)
}

func TestSettle_EmptyBatchIsRejected(t *testing.T) {
	farmers := []farmer.Farmer{grower("F2", "Litein", 1200, 2000)}
	res := compute(nil, farmers, generic.DateWindow{}, payroll.ModePending)

	require.Len(t, res.Payments, 1, "debt is visible")
	_, err := payroll.Settle(res.Command("payroll", day(31, 17)))

	assert.ErrorIs(t, err, generic.ErrNothingToSettle)
	assert.True(t, generic.IsConflict(err))
}

func TestSettle_RefusesAlreadyStampedRecords(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{weighing("R1", "F1", 40, day(2, 8))}
	res := compute(records, farmers, generic.DateWindow{}, payroll.ModePending)
	cmd := res.Command("payroll", day(31, 17))

	first, err := payroll.Settle(cmd)
	require.NoError(t, err)

	// A second officer replays the same stale batch after it was applied.
	cmd.Records = first.ApplyRecords(cmd.Records)
	_, err = payroll.Settle(cmd)

	var conflict *generic.SettlementConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"R1"}, conflict.RecordIDs)
	assert.ErrorIs(t, err, generic.ErrAlreadySettled)
}

func TestSettle_ForcesPendingRecordsToApproved(t *testing.T) {
	r := weighing("R1", "F1", 40, day(2, 8))
	r.Status = weighment.StatusPending
	s, err := payroll.Settle(payroll.SettleCommand{
		Records:     []weighment.CollectionRecord{r},
		TotalPayout: generic.KES(100),
		Now:         day(31, 17),
	})
	require.NoError(t, err)

	out := s.ApplyRecords([]weighment.CollectionRecord{r, weighing("R2", "F1", 10, day(3, 8))})

	assert.Equal(t, weighment.StatusApproved, out[0].Status)
	assert.Equal(t, s.Run.ID, out[0].PayrollRunID)
	assert.Empty(t, out[1].PayrollRunID)
	assert.Equal(t, "system", s.Run.ProcessedBy)
}

func TestSettle_PeriodBoundsDefaultToSettlementDate(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	records := []weighment.CollectionRecord{weighing("R1", "F1", 40, day(2, 8))}

	s, _, _ := settle(t, records, farmers, window(t, "2025-10-01", ""))

	assert.Equal(t, "2025-10-01", s.Run.PeriodStart)
	assert.Equal(t, "2025-10-31", s.Run.PeriodEnd)
}

func TestSettlement_RecoversDebtAndKeepsBalancesNonNegative(t *testing.T) {
	// GIVEN: F1 owes 5000 inputs and earns less; F2 owes advances only; F3 owes nothing
	farmers := []farmer.Farmer{
		grower("F1", "Kapsoit", 5000, 0),
		grower("F2", "Roret", 0, 700),
		grower("F3", "Litein", 0, 0),
	}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 100, day(2, 8)),
		weighing("R2", "F2", 10, day(2, 8)),
		weighing("R3", "F3", 10, day(2, 8)),
	}

	// WHEN
	s, _, after := settle(t, records, farmers, generic.DateWindow{Location: loc})

	// THEN: F1 recovered its whole gross (96.5 x 25 = 2412.5), F2 all advances
	require.Len(t, s.Recoveries, 2)
	assert.Equal(t, "F1", s.Recoveries[0].FarmerID)
	assert.Equal(t, "2412.5", s.Recoveries[0].Inputs.Value.String())
	assert.Equal(t, "2587.5", after[0].BalanceInputs.Value.String())
	assert.True(t, after[1].BalanceAdvances.IsZero())
	assert.True(t, after[2].BalanceInputs.IsZero())

	for _, f := range after {
		assert.False(t, f.BalanceInputs.IsNegative(), f.ID)
		assert.False(t, f.BalanceAdvances.IsNegative(), f.ID)
	}
}

func TestSettlement_StaleDeductionsNeverDriveBalancesNegative(t *testing.T) {
	// The displayed deductions were computed before an admin corrected the
	// balance down; applying them must floor at zero.
	s := payroll.Settlement{Recoveries: []payroll.Recovery{
		{FarmerID: "F1", Inputs: generic.KES(900), Advances: generic.KES(900)},
	}}

	after := s.ApplyFarmers([]farmer.Farmer{grower("F1", "Kapsoit", 100, 50)})

	assert.True(t, after[0].BalanceInputs.IsZero())
	assert.True(t, after[0].BalanceAdvances.IsZero())
}

func TestSettlement_ConservesTotals(t *testing.T) {
	// GIVEN: a debt-free farmer with records across two periods
	farmers := []farmer.Farmer{grower("F1", "Chepseon", 0, 0)}
	records := []weighment.CollectionRecord{
		weighing("R1", "F1", 37.2, day(2, 8)),
		weighing("R2", "F1", 61.9, day(6, 15)),
		weighing("R3", "F1", 12.34, day(12, 8)),
		weighing("R4", "F1", 88, day(20, 10)),
	}
	all := generic.DateWindow{Location: loc}
	whole := compute(records, farmers, all, payroll.ModeHistory).Summary.Net

	// WHEN: the first week is settled, then the second week
	s1, after, farmersAfter := settle(t, records, farmers, window(t, "2025-10-01", "2025-10-07"))
	s2, after, farmersAfter := settle(t, after, farmersAfter, window(t, "2025-10-08", "2025-10-14"))

	// THEN: paid out + still pending equals the unsplit aggregation
	pending := compute(after, farmersAfter, all, payroll.ModePending).Summary.Net
	paid := s1.Run.TotalPayout.Add(s2.Run.TotalPayout)
	assert.True(t, paid.Add(pending).Equal(whole), "paid %s + pending %s != %s", paid, pending, whole)

	history := compute(after, farmersAfter, all, payroll.ModeHistory)
	assert.True(t, history.Summary.Net.Equal(whole))
	assert.False(t, history.Payments[0].IsSettled, "R4 is still open")
}

// =============================================================================
// EXPORT
// =============================================================================

func TestWriteCSV(t *testing.T) {
	farmers := []farmer.Farmer{grower("F1", "Kapsoit", 0, 0)}
	farmers[0].Name = `Kiprono "Kip" Langat`
	res := compute([]weighment.CollectionRecord{weighing("R1", "F1", 50, day(1, 8))}, farmers, generic.DateWindow{}, payroll.ModePending)

	var buf strings.Builder
	require.NoError(t, payroll.WriteCSV(&buf, res.Payments))

	lines := strings.Split(buf.String(), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Farmer ID,Name,Phone,Total Kg,Gross Pay,Transport,Cess,Transaction Costs,Inputs Deduction,Advances Deduction,Net Pay", lines[0])
	assert.Equal(t, `"F1","Kiprono ""Kip"" Langat","0700F1","47.50","1187.50","95.00","47.50","5.00","0.00","0.00","1040.00"`, lines[1])
}

func TestExportFileName(t *testing.T) {
	assert.Equal(t, "majani_payroll_export_all_to_all.csv", payroll.ExportFileName(generic.DateWindow{}))
	assert.Equal(t, "majani_payroll_export_2025-10-01_to_all.csv", payroll.ExportFileName(window(t, "2025-10-01", "")))
}

func TestParseMode(t *testing.T) {
	m, err := payroll.ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, payroll.ModePending, m)

	_, err = payroll.ParseMode("draft")
	assert.ErrorIs(t, err, generic.ErrValidation)
}
