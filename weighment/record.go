/*
Package weighment captures green-leaf collections at the buying centre.

KEY CONCEPTS:
  - CollectionRecord: one weighing of one farmer's bag
  - Status: approved, or pending supervisor review when quality < 80
  - Session: a clerk's open collection day (bag count, kg so far)

LIFECYCLE:
  Capture -> approved | pending
  pending -> approved | rejected      (supervisor review)
  approved -> settled                 (payroll stamps PayrollRunID, once)

  A record is never edited after capture apart from review and the
  one-time settlement stamp.

SEE ALSO:
  - tariff/netweight.go: Net weight formula
  - payroll/compute.go: Which records are payroll-eligible
*/
package weighment

import (
	"time"

	"github.com/majani/coop-engine/generic"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusPending  Status = "pending"
	StatusRejected Status = "rejected"
)

// QualityApprovalThreshold is the lowest score approved automatically.
const QualityApprovalThreshold = 80

type CollectionRecord struct {
	ID           string
	FarmerID     string
	Weight       generic.Amount // gross, kg
	NetWeight    generic.Amount // payable, kg
	QualityScore int
	Timestamp    time.Time
	ClerkID      string
	Location     *generic.Location
	Synced       bool
	Status       Status
	PayrollRunID string
}

// IsSettled is true once a payroll run has claimed the record.
func (r CollectionRecord) IsSettled() bool { return r.PayrollRunID != "" }

// IsPayrollEligible is true for approved records not yet settled.
func (r CollectionRecord) IsPayrollEligible() bool {
	return r.Status == StatusApproved && !r.IsSettled()
}

// Review applies a supervisor decision to a pending record.
func (r CollectionRecord) Review(approve bool) (CollectionRecord, error) {
	if r.Status != StatusPending || r.IsSettled() {
		return r, generic.ErrNotPending
	}
	if approve {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	return r, nil
}

// ForFarmer returns the farmer's records in their original order.
func ForFarmer(records []CollectionRecord, farmerID string) []CollectionRecord {
	var out []CollectionRecord
	for _, r := range records {
		if r.FarmerID == farmerID {
			out = append(out, r)
		}
	}
	return out
}
