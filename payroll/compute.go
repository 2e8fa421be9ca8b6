/*
Package payroll turns collection records into farmer payments.

PURPOSE:
  For a period and a farmer population, aggregate eligible weighments into
  one PaymentCalculation per farmer (gross pay, itemised deductions, net
  pay), sum them into a batch Summary, and settle the batch.

THE CALCULATION:
  1. Eligibility: pending mode keeps approved, unsettled records; history
     mode keeps everything. Then the date window.
  2. Per farmer: totalKg, grossPay, transport, cess, and one transaction
     fee per record, all priced on the farmer's route.
  3. Debt: inputs = min(balanceInputs, grossPay); advances in full.
  4. netPay = grossPay - every deduction. Can be negative.
  5. Emit when totalKg > 0, or in pending mode when debt is deducted.

  The schedule is an argument: recomputing under a newer schedule changes
  unsettled figures but never a settled run.

SEE ALSO:
  - settlement.go: Settle and the Settlement value
  - tariff/netweight.go: Per-record charges
*/
package payroll

import (
	"time"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

type Mode string

const (
	ModePending Mode = "pending"
	ModeHistory Mode = "history"
)

// ParseMode defaults to pending.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModePending:
		return ModePending, nil
	case ModeHistory:
		return ModeHistory, nil
	}
	return "", &generic.FieldError{Field: "mode", Message: "must be pending or history"}
}

type Query struct {
	Records  []weighment.CollectionRecord
	Farmers  []farmer.Farmer
	Schedule tariff.Schedule
	Window   generic.DateWindow
	Mode     Mode
}

// =============================================================================
// RESULT TYPES
// =============================================================================

type Deductions struct {
	Transport       generic.Amount
	Cess            generic.Amount
	TransactionCost generic.Amount
	Inputs          generic.Amount
	Advances        generic.Amount
}

// Operational is transport + cess + fees.
func (d Deductions) Operational() generic.Amount {
	return generic.Sum(generic.UnitKES, d.Transport, d.Cess, d.TransactionCost)
}

// Debt is inputs + advances.
func (d Deductions) Debt() generic.Amount {
	return generic.Sum(generic.UnitKES, d.Inputs, d.Advances)
}

func (d Deductions) Total() generic.Amount {
	return d.Operational().Add(d.Debt())
}

type PaymentCalculation struct {
	FarmerID        string
	FarmerName      string
	FarmerPhone     string
	TotalKg         generic.Amount
	Sessions        int
	GrossPay        generic.Amount
	Deductions      Deductions
	TotalDeductions generic.Amount
	NetPay          generic.Amount
	IsSettled       bool
}

type Summary struct {
	Farmers    int
	Weight     generic.Amount
	Gross      generic.Amount
	Deductions generic.Amount
	Net        generic.Amount
}

// Result is one aggregation: the payments, their summary, and the exact
// records that produced them.
type Result struct {
	Mode     Mode
	Window   generic.DateWindow
	Payments []PaymentCalculation
	Summary  Summary
	Records  []weighment.CollectionRecord
	Schedule tariff.Schedule
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute runs the aggregation.
func Compute(q Query) Result {
	records := Eligible(q.Records, q.Window, q.Mode)

	byFarmer := make(map[string][]weighment.CollectionRecord)
	for _, r := range records {
		byFarmer[r.FarmerID] = append(byFarmer[r.FarmerID], r)
	}

	res := Result{Mode: q.Mode, Window: q.Window, Records: records, Schedule: q.Schedule}
	for _, f := range q.Farmers {
		p := calculate(f, byFarmer[f.ID], q.Schedule)
		if !include(p, q.Mode) {
			continue
		}
		res.Payments = append(res.Payments, p)
	}
	res.Summary = Summarize(res.Payments)
	return res
}

// Eligible applies the mode filter then the date window.
func Eligible(records []weighment.CollectionRecord, window generic.DateWindow, mode Mode) []weighment.CollectionRecord {
	var out []weighment.CollectionRecord
	for _, r := range records {
		if mode == ModePending && !r.IsPayrollEligible() {
			continue
		}
		if !window.Contains(r.Timestamp) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func calculate(f farmer.Farmer, records []weighment.CollectionRecord, schedule tariff.Schedule) PaymentCalculation {
	route := schedule.RouteFor(f.Route)
	p := PaymentCalculation{
		FarmerID:    f.ID,
		FarmerName:  f.Name,
		FarmerPhone: f.Phone,
		TotalKg:     generic.Kg(0),
		Sessions:    len(records),
		GrossPay:    generic.KES(0),
		Deductions: Deductions{
			Transport:       generic.KES(0),
			Cess:            generic.KES(0),
			TransactionCost: generic.KES(0),
		},
		IsSettled: len(records) > 0,
	}

	for _, r := range records {
		if !r.IsSettled() {
			p.IsSettled = false
		}
		c := schedule.Settings.ChargesFor(r.NetWeight, route)
		p.TotalKg = p.TotalKg.Add(r.NetWeight)
		p.GrossPay = p.GrossPay.Add(tariff.GrossPay(r.NetWeight, route))
		p.Deductions.Transport = p.Deductions.Transport.Add(c.Transport)
		p.Deductions.Cess = p.Deductions.Cess.Add(c.Cess)
		p.Deductions.TransactionCost = p.Deductions.TransactionCost.Add(c.TransactionFee)
	}

	// Input debt is capped by what was earned; advances are taken in full.
	p.Deductions.Inputs = balanceOrZero(f.BalanceInputs).Min(p.GrossPay.FloorZero())
	p.Deductions.Advances = balanceOrZero(f.BalanceAdvances)

	p.TotalDeductions = p.Deductions.Total()
	p.NetPay = p.GrossPay.Sub(p.TotalDeductions)
	return p
}

func balanceOrZero(a generic.Amount) generic.Amount {
	if a.Unit == "" {
		return generic.KES(0)
	}
	return a.FloorZero()
}

func include(p PaymentCalculation, mode Mode) bool {
	if p.TotalKg.IsPositive() {
		return true
	}
	return mode == ModePending && p.Deductions.Debt().IsPositive()
}

// Summarize sums payments element-wise.
func Summarize(payments []PaymentCalculation) Summary {
	s := Summary{
		Weight:     generic.Kg(0),
		Gross:      generic.KES(0),
		Deductions: generic.KES(0),
		Net:        generic.KES(0),
	}
	for _, p := range payments {
		s.Farmers++
		s.Weight = s.Weight.Add(p.TotalKg)
		s.Gross = s.Gross.Add(p.GrossPay)
		s.Deductions = s.Deductions.Add(p.TotalDeductions)
		s.Net = s.Net.Add(p.NetPay)
	}
	return s
}

// DebtDeduction is the debt part of one farmer's payment.
type DebtDeduction struct {
	Inputs   generic.Amount
	Advances generic.Amount
}

// DeductionMap is the per-farmer debt the displayed totals assumed.
func (r Result) DeductionMap() map[string]DebtDeduction {
	m := make(map[string]DebtDeduction, len(r.Payments))
	for _, p := range r.Payments {
		m[p.FarmerID] = DebtDeduction{Inputs: p.Deductions.Inputs, Advances: p.Deductions.Advances}
	}
	return m
}

// Command builds the settlement command for exactly this result.
func (r Result) Command(processedBy string, now time.Time) SettleCommand {
	return SettleCommand{
		Window:      r.Window,
		Records:     r.Records,
		Deductions:  r.DeductionMap(),
		TotalPayout: r.Summary.Net,
		Schedule:    r.Schedule,
		ProcessedBy: processedBy,
		Now:         now,
	}
}
