/*
settlement.go - Payroll runs and the atomic settlement write

PURPOSE:
  ApplySettlement is the only place records and farmer balances change
  together. Everything happens in one SQL transaction:

    1. INSERT the payroll run
    2. UPDATE each record SET payroll_run_id WHERE payroll_run_id IS NULL
    3. Any record that didn't update means another run claimed it: ROLLBACK
    4. Recover each farmer's inputs and advances through the debt ledger
       and save the new balances
    5. A farmer owing less than the run deducted means the balance moved
       after the payroll was computed: ROLLBACK

  A second settlement over the same records therefore fails with
  ErrAlreadySettled, and one over other records that deducts debt already
  recovered fails with ErrBalanceChanged. Neither leaves a trace.

SEE ALSO:
  - payroll/settlement.go: Builds the Settlement value
  - farmer/debt.go: Recovery idempotency keys
*/
package sqlite

import (
	"context"
	"fmt"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/payroll"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// SETTLEMENT
// =============================================================================

// ApplySettlement commits a settlement, or nothing.
func (s *Store) ApplySettlement(ctx context.Context, st payroll.Settlement) error {
	if len(st.RecordIDs) == 0 {
		return generic.ErrNothingToSettle
	}

	return s.Atomically(ctx, func(tx *Tx) error {
		if err := insertRun(ctx, tx.tx, st.Run); err != nil {
			return err
		}

		var conflicts []string
		for _, id := range st.RecordIDs {
			res, err := tx.tx.ExecContext(ctx, `
				UPDATE records SET payroll_run_id = ?, status = ?
				WHERE id = ? AND payroll_run_id IS NULL
			`, st.Run.ID, weighment.StatusApproved, id)
			if err != nil {
				return fmt.Errorf("failed to stamp record %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				conflicts = append(conflicts, id)
			}
		}
		if len(conflicts) > 0 {
			return &generic.SettlementConflictError{RunID: st.Run.ID, RecordIDs: conflicts}
		}

		ledger := farmer.NewDebtLedger(tx)
		for _, rc := range st.Recoveries {
			f, err := tx.GetFarmer(ctx, rc.FarmerID)
			if err != nil {
				return err
			}
			for _, d := range []struct {
				account generic.AccountID
				amount  generic.Amount
			}{
				{farmer.AccountInputs, rc.Inputs},
				{farmer.AccountAdvances, rc.Advances},
			} {
				var taken generic.Amount
				f, taken, err = ledger.Recover(ctx, f, d.account, d.amount, st.Run.ID, st.Run.ProcessedBy, st.Run.Timestamp)
				if err != nil {
					return err
				}
				// The run's payout already deducted the full amount.
				if taken.LessThan(d.amount.FloorZero()) {
					return fmt.Errorf("farmer %s %s: deducted %s, owed %s: %w",
						rc.FarmerID, d.account, d.amount, taken, generic.ErrBalanceChanged)
				}
			}
			if err := tx.SaveBalances(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// PAYROLL RUN STORE
// =============================================================================

const runColumns = `id, period_start, period_end, total_weight, total_payout, total_farmers,
	processed_by, timestamp, status, tariff_version`

// SaveRun stores a run receipt on its own (historical imports, fixtures).
func (s *Store) SaveRun(ctx context.Context, r payroll.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertRun(ctx, s.db, r)
}

func insertRun(ctx context.Context, db querier, r payroll.Run) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO payroll_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.PeriodStart, r.PeriodEnd, r.TotalWeight.Value.String(), r.TotalPayout.Value.String(),
		r.TotalFarmers, r.ProcessedBy, formatTime(r.Timestamp), r.Status, r.TariffVersion,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payroll run %s: %w", r.ID, generic.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert payroll run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (payroll.Run, error) {
	runs, err := s.queryRuns(ctx, "SELECT "+runColumns+" FROM payroll_runs WHERE id = ?", id)
	if err != nil {
		return payroll.Run{}, err
	}
	if len(runs) == 0 {
		return payroll.Run{}, fmt.Errorf("payroll run %s: %w", id, generic.ErrEntityNotFound)
	}
	return runs[0], nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]payroll.Run, error) {
	return s.queryRuns(ctx, "SELECT "+runColumns+" FROM payroll_runs ORDER BY timestamp DESC, rowid DESC")
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]payroll.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payroll runs: %w", err)
	}
	defer rows.Close()

	var runs []payroll.Run
	for rows.Next() {
		var (
			r              payroll.Run
			weight, payout string
			ts             string
		)
		if err := rows.Scan(&r.ID, &r.PeriodStart, &r.PeriodEnd, &weight, &payout, &r.TotalFarmers,
			&r.ProcessedBy, &ts, &r.Status, &r.TariffVersion); err != nil {
			return nil, fmt.Errorf("failed to scan payroll run: %w", err)
		}
		r.TotalWeight = parseAmount(weight, string(generic.UnitKg))
		r.TotalPayout = parseAmount(payout, string(generic.UnitKES))
		r.Timestamp = parseTime(ts)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
