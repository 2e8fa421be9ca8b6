/*
Package generic provides the core building blocks of the cooperative engine.

PURPOSE:
  This package contains domain-agnostic types shared by the weighment,
  payroll and farmer packages. Whether the quantity is kilograms of green
  leaf or shillings owed for fertilizer, the same Amount type carries it,
  and every debt movement is recorded in the same append-only ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 47.5 kg, 1187.50 KES)
  - Transaction: An immutable ledger entry recording a debt movement
  - Entity/Account IDs: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified
  2. Precision: Uses decimal.Decimal so 47.5 kg x 25 KES is exactly 1187.5
  3. Type Safety: Strong typing for IDs prevents mixing farmer/account IDs
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  pay := generic.NewAmount(1187.5, generic.UnitKES)
  tx := generic.Transaction{
      EntityID:  "F001",
      AccountID: "inputs",
      Delta:     generic.NewAmount(-1000, generic.UnitKES),
      Type:      generic.TxRecovery,
  }

SEE ALSO:
  - time.go: TimePoint and DateWindow used for payroll periods
  - ledger.go: Transaction persistence interface
  - errors.go: Sentinel errors shared across packages
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitKES Unit = "KES"
	UnitKg  Unit = "kg"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

func NewAmountFromDecimal(value decimal.Decimal, unit Unit) Amount {
	return Amount{Value: value, Unit: unit}
}

func KES(value float64) Amount { return NewAmount(value, UnitKES) }
func Kg(value float64) Amount  { return NewAmount(value, UnitKg) }

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) Round(places int32) Amount    { return Amount{Value: a.Value.Round(places), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) && a.Unit == b.Unit }
func (a Amount) Float64() float64             { return a.Value.InexactFloat64() }
func (a Amount) String() string               { return a.Value.StringFixed(2) + " " + string(a.Unit) }

func (a Amount) Min(b Amount) Amount {
	if a.LessThan(b) {
		return a
	}
	return b
}

func (a Amount) Max(b Amount) Amount {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// FloorZero clamps negative amounts to zero in the same unit.
func (a Amount) FloorZero() Amount { return a.Max(a.Zero()) }

// Times multiplies a per-unit rate by a quantity, keeping the rate's unit.
// 47.5 kg Times 25 KES/kg = 1187.5 KES.
func (a Amount) Times(qty Amount) Amount {
	return Amount{Value: a.Value.Mul(qty.Value), Unit: a.Unit}
}

// Sum adds amounts of the same unit. An empty list sums to zero of unit.
func Sum(unit Unit, amounts ...Amount) Amount {
	total := Amount{Value: decimal.Zero, Unit: unit}
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type AccountID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to a debt balance
// =============================================================================

type TransactionType string

const (
	TxCharge     TransactionType = "charge"     // Inputs issued or cash advanced to a farmer
	TxRecovery   TransactionType = "recovery"   // Debt recovered from a payroll settlement
	TxAdjustment TransactionType = "adjustment" // Opening balance or manual admin correction
)

type Transaction struct {
	ID             TransactionID
	EntityID       EntityID
	AccountID      AccountID
	EffectiveAt    TimePoint
	Delta          Amount
	Type           TransactionType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy string
	CreatedAt TimePoint
}

// =============================================================================
// LOCATION
// =============================================================================

// Location is a best-effort GPS fix. Capture never fails for lack of one.
type Location struct {
	Lat float64
	Lng float64
}
