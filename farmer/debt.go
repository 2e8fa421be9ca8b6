/*
debt.go - Farmer debt accounts on top of the generic ledger

PURPOSE:
  The farmer row carries the current balances; the ledger carries how they
  got there. Every charge and every recovery appends one transaction, so a
  farmer's statement always replays to the balance on their record.

WHAT IT ENFORCES:
  1. Charge: amount must be positive
  2. Recover: never more than the outstanding balance, never below zero
  3. Recover: one recovery per (run, farmer, account), by idempotency key

SEE ALSO:
  - generic/ledger.go: Base ledger
  - store/sqlite/settlement.go: Runs recoveries inside the settlement tx
*/
package farmer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/majani/coop-engine/generic"
)

// DebtLedger wraps the generic ledger with the farmer balance rules.
type DebtLedger struct {
	inner generic.Ledger
}

func NewDebtLedger(store generic.Store) *DebtLedger {
	return &DebtLedger{inner: generic.NewLedger(store)}
}

// Charge adds amount to the farmer's account and records it.
func (l *DebtLedger) Charge(ctx context.Context, f Farmer, account generic.AccountID, amount generic.Amount, by string, at time.Time) (Farmer, error) {
	updated, err := f.Charge(account, amount)
	if err != nil {
		return f, err
	}
	tx := generic.Transaction{
		ID:          generic.TransactionID(uuid.NewString()),
		EntityID:    generic.EntityID(f.ID),
		AccountID:   account,
		EffectiveAt: generic.At(at),
		Delta:       amount,
		Type:        generic.TxCharge,
		Reason:      fmt.Sprintf("%s charge", account),
		CreatedBy:   by,
		CreatedAt:   generic.At(at),
	}
	if err := l.inner.Append(ctx, tx); err != nil {
		return f, fmt.Errorf("record %s charge for %s: %w", account, f.ID, err)
	}
	return updated, nil
}

// RecoveryKey identifies one recovery. Replaying a run hits the same key.
func RecoveryKey(runID, farmerID string, account generic.AccountID) string {
	return runID + "/" + farmerID + "/" + string(account)
}

// Recover deducts up to amount from the farmer's account for run. Only the
// amount actually recovered is written, and a zero recovery writes nothing.
func (l *DebtLedger) Recover(ctx context.Context, f Farmer, account generic.AccountID, amount generic.Amount, runID, by string, at time.Time) (Farmer, generic.Amount, error) {
	updated, taken := f.Recover(account, amount)
	if taken.IsZero() {
		return updated, taken, nil
	}
	tx := generic.Transaction{
		ID:             generic.TransactionID(uuid.NewString()),
		EntityID:       generic.EntityID(f.ID),
		AccountID:      account,
		EffectiveAt:    generic.At(at),
		Delta:          taken.Neg(),
		Type:           generic.TxRecovery,
		ReferenceID:    runID,
		Reason:         "payroll recovery",
		IdempotencyKey: RecoveryKey(runID, f.ID, account),
		CreatedBy:      by,
		CreatedAt:      generic.At(at),
	}
	if err := l.inner.Append(ctx, tx); err != nil {
		return f, generic.Amount{}, fmt.Errorf("record %s recovery for %s: %w", account, f.ID, err)
	}
	return updated, taken, nil
}

// Open records a farmer's starting balances as adjustments so the ledger
// agrees with a farmer registered with existing debt. Safe to call twice.
func (l *DebtLedger) Open(ctx context.Context, f Farmer, by string, at time.Time) error {
	var txs []generic.Transaction
	for _, account := range Accounts {
		bal := f.Balance(account)
		if !bal.IsPositive() {
			continue
		}
		txs = append(txs, generic.Transaction{
			ID:             generic.TransactionID(uuid.NewString()),
			EntityID:       generic.EntityID(f.ID),
			AccountID:      account,
			EffectiveAt:    generic.At(at),
			Delta:          bal,
			Type:           generic.TxAdjustment,
			Reason:         "opening balance",
			IdempotencyKey: "opening/" + f.ID + "/" + string(account),
			CreatedBy:      by,
			CreatedAt:      generic.At(at),
		})
	}
	if len(txs) == 0 {
		return nil
	}
	err := l.inner.AppendBatch(ctx, txs)
	if errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
		return nil
	}
	return err
}

// Balance replays the account.
func (l *DebtLedger) Balance(ctx context.Context, farmerID string, account generic.AccountID) (generic.Amount, error) {
	return l.inner.Balance(ctx, generic.EntityID(farmerID), account, generic.UnitKES)
}

// Statement returns both accounts' transactions, oldest first.
func (l *DebtLedger) Statement(ctx context.Context, farmerID string) ([]generic.Transaction, error) {
	var all []generic.Transaction
	for _, account := range Accounts {
		txs, err := l.inner.Transactions(ctx, generic.EntityID(farmerID), account)
		if err != nil {
			return nil, err
		}
		all = append(all, txs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].EffectiveAt.Time.Before(all[j].EffectiveAt.Time)
	})
	return all, nil
}
