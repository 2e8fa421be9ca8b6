/*
Package farmer holds the farmer registry and the two debt accounts payroll
recovers from.

KEY CONCEPTS:
  - Farmer: identity, route assignment and two running debt balances
  - Account: "inputs" (fertilizer and seedlings on credit) or "advances"
    (cash paid out ahead of payroll)
  - DebtLedger: every balance movement as an append-only transaction

BALANCE INVARIANT:
  Both balances are >= 0. They grow only through Charge and shrink only
  through settlement recovery, which floors at zero.

SEE ALSO:
  - debt.go: Ledger-backed charge and recovery
  - payroll/compute.go: Reads the balances to size debt deductions
*/
package farmer

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/generic"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

const (
	AccountInputs   generic.AccountID = "inputs"
	AccountAdvances generic.AccountID = "advances"
)

// Accounts lists the debt accounts in recovery order.
var Accounts = []generic.AccountID{AccountInputs, AccountAdvances}

// ParseAccount accepts "inputs" or "advances".
func ParseAccount(s string) (generic.AccountID, error) {
	switch generic.AccountID(strings.ToLower(strings.TrimSpace(s))) {
	case AccountInputs:
		return AccountInputs, nil
	case AccountAdvances:
		return AccountAdvances, nil
	}
	return "", &generic.FieldError{Field: "type", Message: fmt.Sprintf("unknown account %q, want inputs or advances", s)}
}

// =============================================================================
// FARMER
// =============================================================================

type NextOfKin struct {
	Name     string
	Relation string
	Phone    string
}

type Farmer struct {
	ID            string
	Name          string
	FirstName     string
	MiddleName    string
	LastName      string
	Phone         string
	Email         string
	CooperativeID string
	Acreage       decimal.Decimal

	Route  string
	Centre string

	BankName      string
	BankBranch    string
	AccountNumber string

	Location  *generic.Location
	NextOfKin NextOfKin

	BalanceInputs   generic.Amount
	BalanceAdvances generic.Amount
}

// DisplayName is "First Middle Last" when the parts are known, else Name.
func (f Farmer) DisplayName() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{f.FirstName, f.MiddleName, f.LastName} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return f.Name
	}
	return strings.Join(parts, " ")
}

// Validate checks the fields registration requires.
func (f Farmer) Validate() error {
	switch {
	case strings.TrimSpace(f.ID) == "":
		return &generic.FieldError{Field: "id", Message: "is required"}
	case strings.TrimSpace(f.FirstName) == "" && strings.TrimSpace(f.Name) == "":
		return &generic.FieldError{Field: "firstName", Message: "is required"}
	case strings.TrimSpace(f.LastName) == "" && strings.TrimSpace(f.Name) == "":
		return &generic.FieldError{Field: "lastName", Message: "is required"}
	case !f.Acreage.IsPositive():
		return &generic.FieldError{Field: "acreage", Message: "must be greater than zero"}
	case f.BalanceInputs.IsNegative():
		return &generic.FieldError{Field: "balanceInputs", Message: "must not be negative"}
	case f.BalanceAdvances.IsNegative():
		return &generic.FieldError{Field: "balanceAdvances", Message: "must not be negative"}
	}
	return nil
}

// Normalize fills Name from the name parts and zeroes unset balances.
func (f Farmer) Normalize() Farmer {
	if dn := f.DisplayName(); dn != "" {
		f.Name = dn
	}
	if f.BalanceInputs.Unit == "" {
		f.BalanceInputs = generic.KES(0)
	}
	if f.BalanceAdvances.Unit == "" {
		f.BalanceAdvances = generic.KES(0)
	}
	return f
}

// Balance returns the outstanding balance of account.
func (f Farmer) Balance(account generic.AccountID) generic.Amount {
	if account == AccountAdvances {
		return f.BalanceAdvances
	}
	return f.BalanceInputs
}

// HasDebt is true when either account is outstanding.
func (f Farmer) HasDebt() bool {
	return f.BalanceInputs.IsPositive() || f.BalanceAdvances.IsPositive()
}

func (f Farmer) withBalance(account generic.AccountID, amt generic.Amount) Farmer {
	if account == AccountAdvances {
		f.BalanceAdvances = amt
	} else {
		f.BalanceInputs = amt
	}
	return f
}

// Charge adds amount to account. Non-positive amounts are rejected and the
// farmer is returned unchanged.
func (f Farmer) Charge(account generic.AccountID, amount generic.Amount) (Farmer, error) {
	if !amount.IsPositive() {
		return f, generic.ErrInvalidAmount
	}
	return f.withBalance(account, f.Balance(account).Add(amount)), nil
}

// Recover takes up to amount off account and returns the updated farmer
// with what was actually recovered. The balance never drops below zero.
func (f Farmer) Recover(account generic.AccountID, amount generic.Amount) (Farmer, generic.Amount) {
	bal := f.Balance(account)
	taken := amount.FloorZero().Min(bal.FloorZero())
	return f.withBalance(account, bal.Sub(taken).FloorZero()), taken
}

// ParseChargeAmount parses a user-entered charge. Empty, non-numeric and
// non-positive input is ErrInvalidAmount.
func ParseChargeAmount(s string) (generic.Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || !d.IsPositive() {
		return generic.Amount{}, generic.ErrInvalidAmount
	}
	return generic.NewAmountFromDecimal(d, generic.UnitKES), nil
}

// Index maps farmer id to farmer.
func Index(farmers []Farmer) map[string]Farmer {
	m := make(map[string]Farmer, len(farmers))
	for _, f := range farmers {
		m[f.ID] = f
	}
	return m
}
