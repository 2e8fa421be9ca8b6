package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/majani/coop-engine/farmer"
	"github.com/majani/coop-engine/generic"
)

// =============================================================================
// FARMER STORE
// =============================================================================

const farmerColumns = `id, name, first_name, middle_name, last_name, phone, email, cooperative_id,
	acreage, route, centre, bank_name, bank_branch, account_number, lat, lng,
	kin_name, kin_relation, kin_phone, balance_inputs, balance_advances`

// CreateFarmer registers a new farmer and opens their debt ledger with any
// starting balances. A taken id is ErrDuplicateEntity.
func (s *Store) CreateFarmer(ctx context.Context, f farmer.Farmer, by string, at time.Time) error {
	return s.Atomically(ctx, func(tx *Tx) error {
		if err := insertFarmer(ctx, tx.tx, f); err != nil {
			return err
		}
		return farmer.NewDebtLedger(tx).Open(ctx, f, by, at)
	})
}

func insertFarmer(ctx context.Context, db querier, f farmer.Farmer) error {
	lat, lng := nullLocation(f.Location)
	f = f.Normalize()

	_, err := db.ExecContext(ctx, `
		INSERT INTO farmers (`+farmerColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		f.ID, f.Name, f.FirstName, f.MiddleName, f.LastName, f.Phone, f.Email, f.CooperativeID,
		f.Acreage.String(), f.Route, f.Centre, f.BankName, f.BankBranch, f.AccountNumber, lat, lng,
		f.NextOfKin.Name, f.NextOfKin.Relation, f.NextOfKin.Phone,
		f.BalanceInputs.Value.String(), f.BalanceAdvances.Value.String(),
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("farmer %s: %w", f.ID, generic.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert farmer: %w", err)
	}
	return nil
}

// UpdateFarmer replaces a farmer's profile. Balances are left alone: they
// only move through charges and settlements.
func (s *Store) UpdateFarmer(ctx context.Context, f farmer.Farmer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lat, lng := nullLocation(f.Location)
	f = f.Normalize()

	res, err := s.db.ExecContext(ctx, `
		UPDATE farmers SET
			name = ?, first_name = ?, middle_name = ?, last_name = ?, phone = ?, email = ?,
			cooperative_id = ?, acreage = ?, route = ?, centre = ?, bank_name = ?, bank_branch = ?,
			account_number = ?, lat = ?, lng = ?, kin_name = ?, kin_relation = ?, kin_phone = ?
		WHERE id = ?
	`,
		f.Name, f.FirstName, f.MiddleName, f.LastName, f.Phone, f.Email,
		f.CooperativeID, f.Acreage.String(), f.Route, f.Centre, f.BankName, f.BankBranch,
		f.AccountNumber, lat, lng, f.NextOfKin.Name, f.NextOfKin.Relation, f.NextOfKin.Phone,
		f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update farmer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("farmer %s: %w", f.ID, generic.ErrEntityNotFound)
	}
	return nil
}

// GetFarmer retrieves a farmer by ID.
func (s *Store) GetFarmer(ctx context.Context, id string) (farmer.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getFarmer(ctx, s.db, id)
}

// ListFarmers returns all farmers in registration order.
func (s *Store) ListFarmers(ctx context.Context) ([]farmer.Farmer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+farmerColumns+" FROM farmers ORDER BY rowid ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query farmers: %w", err)
	}
	defer rows.Close()

	var farmers []farmer.Farmer
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		farmers = append(farmers, f)
	}
	return farmers, rows.Err()
}

// ChargeFarmer issues inputs or an advance against a farmer. The balance
// update and its ledger entry commit together.
func (s *Store) ChargeFarmer(ctx context.Context, id string, account generic.AccountID, amount generic.Amount, by string, at time.Time) (farmer.Farmer, error) {
	var updated farmer.Farmer
	err := s.Atomically(ctx, func(tx *Tx) error {
		f, err := tx.GetFarmer(ctx, id)
		if err != nil {
			return err
		}
		updated, err = farmer.NewDebtLedger(tx).Charge(ctx, f, account, amount, by, at)
		if err != nil {
			return err
		}
		return tx.SaveBalances(ctx, updated)
	})
	return updated, err
}

// GetFarmer reads a farmer inside the transaction.
func (t *Tx) GetFarmer(ctx context.Context, id string) (farmer.Farmer, error) {
	return getFarmer(ctx, t.tx, id)
}

// SaveBalances writes a farmer's two debt balances.
func (t *Tx) SaveBalances(ctx context.Context, f farmer.Farmer) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE farmers SET balance_inputs = ?, balance_advances = ? WHERE id = ?",
		f.BalanceInputs.Value.String(), f.BalanceAdvances.Value.String(), f.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save balances: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("farmer %s: %w", f.ID, generic.ErrEntityNotFound)
	}
	return nil
}

func getFarmer(ctx context.Context, db querier, id string) (farmer.Farmer, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+farmerColumns+" FROM farmers WHERE id = ?", id)
	if err != nil {
		return farmer.Farmer{}, fmt.Errorf("failed to query farmer: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return farmer.Farmer{}, err
		}
		return farmer.Farmer{}, fmt.Errorf("farmer %s: %w", id, generic.ErrEntityNotFound)
	}
	return scanFarmer(rows)
}

func scanFarmer(rows *sql.Rows) (farmer.Farmer, error) {
	var (
		f                                    farmer.Farmer
		first, middle, last, phone, email    sql.NullString
		coop, route, centre                  sql.NullString
		bank, branch, account                sql.NullString
		kinName, kinRelation, kinPhone       sql.NullString
		acreage, balanceInputs, balanceAdvcs string
		lat, lng                             sql.NullFloat64
	)

	err := rows.Scan(
		&f.ID, &f.Name, &first, &middle, &last, &phone, &email, &coop,
		&acreage, &route, &centre, &bank, &branch, &account, &lat, &lng,
		&kinName, &kinRelation, &kinPhone, &balanceInputs, &balanceAdvcs,
	)
	if err != nil {
		return f, fmt.Errorf("failed to scan farmer: %w", err)
	}

	f.FirstName, f.MiddleName, f.LastName = first.String, middle.String, last.String
	f.Phone, f.Email, f.CooperativeID = phone.String, email.String, coop.String
	f.Route, f.Centre = route.String, centre.String
	f.BankName, f.BankBranch, f.AccountNumber = bank.String, branch.String, account.String
	f.NextOfKin = farmer.NextOfKin{Name: kinName.String, Relation: kinRelation.String, Phone: kinPhone.String}
	f.Location = scanLocation(lat, lng)

	f.Acreage, err = decimal.NewFromString(acreage)
	if err != nil {
		return f, fmt.Errorf("farmer %s acreage: %w", f.ID, err)
	}
	f.BalanceInputs = parseAmount(balanceInputs, string(generic.UnitKES))
	f.BalanceAdvances = parseAmount(balanceAdvcs, string(generic.UnitKES))
	return f, nil
}
