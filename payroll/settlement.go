/*
settlement.go - Turning a displayed payroll batch into a paid one

PURPOSE:
  Settle is a pure command: given the exact records and deductions behind
  the totals the payroll officer approved, it produces a Settlement value.
  Nothing is re-derived at commit time. Stores apply the value in one
  transaction (see store/sqlite/settlement.go); ApplyRecords and
  ApplyFarmers apply it to plain slices.

EFFECTS OF A SETTLEMENT (all or nothing):
  1. One new PayrollRun
  2. Every settled record stamped with the run id and forced to approved
  3. Every farmer's debt reduced by what was deducted, floored at zero

SEE ALSO:
  - compute.go: Where the records and deductions come from
  - farmer/debt.go: Ledger recording of recoveries
*/
package payroll

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/tariff"
	"github.com/majani/coop-engine/weighment"
)

type RunStatus string

const (
	RunCompleted  RunStatus = "completed"
	RunProcessing RunStatus = "processing"
)

// Run is the receipt of one settlement. Never mutated.
type Run struct {
	ID            string
	PeriodStart   string
	PeriodEnd     string
	TotalWeight   generic.Amount
	TotalPayout   generic.Amount
	TotalFarmers  int
	ProcessedBy   string
	Timestamp     time.Time
	Status        RunStatus
	TariffVersion int
}

type SettleCommand struct {
	Window      generic.DateWindow
	Records     []weighment.CollectionRecord
	Deductions  map[string]DebtDeduction
	TotalPayout generic.Amount
	Schedule    tariff.Schedule
	ProcessedBy string
	Now         time.Time
}

// Recovery is the debt taken from one farmer by a settlement.
type Recovery struct {
	FarmerID string
	Inputs   generic.Amount
	Advances generic.Amount
}

// Settlement is everything a store must apply, as one unit.
type Settlement struct {
	Run        Run
	RecordIDs  []string
	Recoveries []Recovery
}

// Settle validates cmd and produces the Settlement. An empty record set is
// ErrNothingToSettle; a record that already carries a run id is a
// SettlementConflictError.
func Settle(cmd SettleCommand) (Settlement, error) {
	if len(cmd.Records) == 0 {
		return Settlement{}, generic.ErrNothingToSettle
	}

	runID := "PAY-" + uuid.NewString()
	var conflicts []string
	seen := make(map[string]bool, len(cmd.Records))
	farmers := make(map[string]bool)
	ids := make([]string, 0, len(cmd.Records))
	weight := generic.Kg(0)

	for _, r := range cmd.Records {
		if r.IsSettled() {
			conflicts = append(conflicts, r.ID)
			continue
		}
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		farmers[r.FarmerID] = true
		ids = append(ids, r.ID)
		weight = weight.Add(r.NetWeight)
	}
	if len(conflicts) > 0 {
		return Settlement{}, &generic.SettlementConflictError{RunID: runID, RecordIDs: conflicts}
	}

	processedBy := cmd.ProcessedBy
	if processedBy == "" {
		processedBy = "system"
	}
	loc := cmd.Window.Location
	today := generic.DateOf(cmd.Now, loc).String()

	run := Run{
		ID:            runID,
		PeriodStart:   boundOr(cmd.Window.Start, today),
		PeriodEnd:     boundOr(cmd.Window.End, today),
		TotalWeight:   weight,
		TotalPayout:   cmd.TotalPayout,
		TotalFarmers:  len(farmers),
		ProcessedBy:   processedBy,
		Timestamp:     cmd.Now,
		Status:        RunCompleted,
		TariffVersion: cmd.Schedule.Version,
	}
	if run.TotalPayout.Unit == "" {
		run.TotalPayout = generic.KES(0)
	}

	return Settlement{Run: run, RecordIDs: ids, Recoveries: recoveries(cmd.Deductions)}, nil
}

// An open window bound is recorded as the settlement date.
func boundOr(tp *generic.TimePoint, fallback string) string {
	if tp == nil {
		return fallback
	}
	return tp.String()
}

func recoveries(deductions map[string]DebtDeduction) []Recovery {
	out := make([]Recovery, 0, len(deductions))
	for id, d := range deductions {
		inputs := balanceOrZero(d.Inputs)
		advances := balanceOrZero(d.Advances)
		if inputs.IsZero() && advances.IsZero() {
			continue
		}
		out = append(out, Recovery{FarmerID: id, Inputs: inputs, Advances: advances})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FarmerID < out[j].FarmerID })
	return out
}

// ApplyRecords stamps the settled records. Other records are untouched.
func (s Settlement) ApplyRecords(records []weighment.CollectionRecord) []weighment.CollectionRecord {
	settled := make(map[string]bool, len(s.RecordIDs))
	for _, id := range s.RecordIDs {
		settled[id] = true
	}
	out := make([]weighment.CollectionRecord, len(records))
	for i, r := range records {
		if settled[r.ID] {
			r.PayrollRunID = s.Run.ID
			r.Status = weighment.StatusApproved
		}
		out[i] = r
	}
	return out
}

// ApplyFarmers reduces each recovered farmer's balances, floored at zero.
func (s Settlement) ApplyFarmers(farmers []farmer.Farmer) []farmer.Farmer {
	byID := make(map[string]Recovery, len(s.Recoveries))
	for _, rc := range s.Recoveries {
		byID[rc.FarmerID] = rc
	}
	out := make([]farmer.Farmer, len(farmers))
	for i, f := range farmers {
		if rc, ok := byID[f.ID]; ok {
			f, _ = f.Recover(farmer.AccountInputs, rc.Inputs)
			f, _ = f.Recover(farmer.AccountAdvances, rc.Advances)
		}
		out[i] = f
	}
	return out
}
