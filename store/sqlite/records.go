package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/majani/coop-engine/generic"
	"github.com/majani/coop-engine/weighment"
)

// =============================================================================
// RECORD STORE
// =============================================================================

const recordColumns = `id, farmer_id, weight, net_weight, quality_score, timestamp,
	clerk_id, lat, lng, synced, status, payroll_run_id`

// SaveRecord inserts a captured weighment. Records are never overwritten:
// a taken id is ErrDuplicateEntity.
func (s *Store) SaveRecord(ctx context.Context, r weighment.CollectionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertRecord(ctx, s.db, r)
}

func insertRecord(ctx context.Context, db querier, r weighment.CollectionRecord) error {
	lat, lng := nullLocation(r.Location)
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.FarmerID, r.Weight.Value.String(), r.NetWeight.Value.String(), r.QualityScore,
		formatTime(r.Timestamp), r.ClerkID, lat, lng, boolInt(r.Synced), r.Status,
		nullString(r.PayrollRunID),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("record %s: %w", r.ID, generic.ErrDuplicateEntity)
		}
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// GetRecord retrieves a record by ID.
func (s *Store) GetRecord(ctx context.Context, id string) (weighment.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getRecord(ctx, s.db, id)
}

func getRecord(ctx context.Context, db querier, id string) (weighment.CollectionRecord, error) {
	recs, err := queryRecords(ctx, db, "SELECT "+recordColumns+" FROM records WHERE id = ?", id)
	if err != nil {
		return weighment.CollectionRecord{}, err
	}
	if len(recs) == 0 {
		return weighment.CollectionRecord{}, fmt.Errorf("record %s: %w", id, generic.ErrEntityNotFound)
	}
	return recs[0], nil
}

// ListRecords returns all records, oldest first.
func (s *Store) ListRecords(ctx context.Context) ([]weighment.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryRecords(ctx, s.db, "SELECT "+recordColumns+" FROM records ORDER BY timestamp ASC, rowid ASC")
}

// ListRecordsByFarmer returns one farmer's records, oldest first.
func (s *Store) ListRecordsByFarmer(ctx context.Context, farmerID string) ([]weighment.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryRecords(ctx, s.db,
		"SELECT "+recordColumns+" FROM records WHERE farmer_id = ? ORDER BY timestamp ASC, rowid ASC", farmerID)
}

// ListPending returns records awaiting supervisor review.
func (s *Store) ListPending(ctx context.Context) ([]weighment.CollectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return queryRecords(ctx, s.db,
		"SELECT "+recordColumns+" FROM records WHERE status = ? AND payroll_run_id IS NULL ORDER BY timestamp ASC, rowid ASC",
		weighment.StatusPending)
}

// ReviewRecord approves or rejects a pending record. Anything not pending,
// or already settled, is ErrNotPending.
func (s *Store) ReviewRecord(ctx context.Context, id string, approve bool) (weighment.CollectionRecord, error) {
	var reviewed weighment.CollectionRecord
	err := s.Atomically(ctx, func(tx *Tx) error {
		r, err := getRecord(ctx, tx.tx, id)
		if err != nil {
			return err
		}
		reviewed, err = r.Review(approve)
		if err != nil {
			return err
		}
		_, err = tx.tx.ExecContext(ctx,
			"UPDATE records SET status = ? WHERE id = ? AND status = ? AND payroll_run_id IS NULL",
			reviewed.Status, id, weighment.StatusPending)
		return err
	})
	return reviewed, err
}

// MarkSynced flags records as uploaded from the clerk's device.
func (s *Store) MarkSynced(ctx context.Context, ids []string) error {
	return s.Atomically(ctx, func(tx *Tx) error {
		for _, id := range ids {
			if _, err := tx.tx.ExecContext(ctx, "UPDATE records SET synced = 1 WHERE id = ?", id); err != nil {
				return fmt.Errorf("failed to mark %s synced: %w", id, err)
			}
		}
		return nil
	})
}

func queryRecords(ctx context.Context, db querier, query string, args ...any) ([]weighment.CollectionRecord, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []weighment.CollectionRecord
	for rows.Next() {
		var (
			r             weighment.CollectionRecord
			weight, net   string
			ts            string
			clerkID, run  sql.NullString
			lat, lng      sql.NullFloat64
			synced        int
		)
		if err := rows.Scan(&r.ID, &r.FarmerID, &weight, &net, &r.QualityScore, &ts,
			&clerkID, &lat, &lng, &synced, &r.Status, &run); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		r.Weight = parseAmount(weight, string(generic.UnitKg))
		r.NetWeight = parseAmount(net, string(generic.UnitKg))
		r.Timestamp = parseTime(ts)
		r.ClerkID = clerkID.String
		r.Location = scanLocation(lat, lng)
		r.Synced = synced != 0
		r.PayrollRunID = run.String
		records = append(records, r)
	}
	return records, rows.Err()
}
