/*
Package compliance scores farm audits against a certification checklist.

SCORING:
  score = passed / total x 100

  100        -> compliant
  [80, 100)  -> conditional
  < 80       -> non_compliant

  Each audit is a new immutable Inspection. Re-auditing a farm adds a
  record; it never edits the previous one.
*/
package compliance

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/generic"
)

type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusConditional  Status = "conditional"
	StatusNonCompliant Status = "non_compliant"
)

var conditionalFloor = decimal.NewFromInt(80)
var full = decimal.NewFromInt(100)

type ChecklistItem struct {
	Category string
	Item     string
	Passed   bool
}

type Inspection struct {
	ID        string
	FarmerID  string
	AuditorID string
	Date      time.Time
	Notes     string
	Checklist []ChecklistItem
	Score     decimal.Decimal
	Status    Status
}

// Score is the percentage of items passed. An empty checklist scores 0.
func Score(checklist []ChecklistItem) decimal.Decimal {
	if len(checklist) == 0 {
		return decimal.Zero
	}
	passed := 0
	for _, c := range checklist {
		if c.Passed {
			passed++
		}
	}
	return decimal.NewFromInt(int64(passed)).Mul(full).Div(decimal.NewFromInt(int64(len(checklist))))
}

func StatusFor(score decimal.Decimal) Status {
	switch {
	case score.GreaterThanOrEqual(full):
		return StatusCompliant
	case score.GreaterThanOrEqual(conditionalFloor):
		return StatusConditional
	default:
		return StatusNonCompliant
	}
}

// NewInspection scores the checklist and records the audit.
func NewInspection(farmerID, auditorID, notes string, checklist []ChecklistItem, at time.Time) (Inspection, error) {
	if farmerID == "" {
		return Inspection{}, &generic.FieldError{Field: "farmerId", Message: "select a farmer to audit"}
	}
	if len(checklist) == 0 {
		return Inspection{}, &generic.FieldError{Field: "checklist", Message: "must not be empty"}
	}
	items := append([]ChecklistItem(nil), checklist...)
	score := Score(items)
	return Inspection{
		ID:        "INS-" + uuid.NewString(),
		FarmerID:  farmerID,
		AuditorID: auditorID,
		Date:      at,
		Notes:     notes,
		Checklist: items,
		Score:     score,
		Status:    StatusFor(score),
	}, nil
}

// RainforestCriteria is the Rainforest Alliance checklist, all unticked.
func RainforestCriteria() []ChecklistItem {
	return []ChecklistItem{
		{Category: "Social", Item: "No Child Labor involved in farm activities"},
		{Category: "Social", Item: "Workers paid at least minimum wage"},
		{Category: "Social", Item: "Access to potable water for workers"},
		{Category: "Environmental", Item: "No deforestation or encroachment"},
		{Category: "Environmental", Item: "Native vegetation buffer zones maintained"},
		{Category: "Environmental", Item: "Safe storage of agrochemicals"},
		{Category: "Agronomic", Item: "Soil erosion control measures in place"},
		{Category: "Agronomic", Item: "Record keeping of fertilizer application"},
	}
}

// Tally counts inspections per tier for the certification dashboard.
type Tally struct {
	Total        int
	Compliant    int
	Conditional  int
	NonCompliant int
	AverageScore decimal.Decimal
}

func Summarize(inspections []Inspection) Tally {
	t := Tally{Total: len(inspections), AverageScore: decimal.Zero}
	sum := decimal.Zero
	for _, in := range inspections {
		sum = sum.Add(in.Score)
		switch in.Status {
		case StatusCompliant:
			t.Compliant++
		case StatusConditional:
			t.Conditional++
		default:
			t.NonCompliant++
		}
	}
	if t.Total > 0 {
		t.AverageScore = sum.Div(decimal.NewFromInt(int64(t.Total))).Round(1)
	}
	return t
}

// Latest keeps the most recent inspection per farmer.
func Latest(inspections []Inspection) map[string]Inspection {
	out := make(map[string]Inspection)
	for _, in := range inspections {
		if prev, ok := out[in.FarmerID]; !ok || in.Date.After(prev.Date) {
			out[in.FarmerID] = in
		}
	}
	return out
}
