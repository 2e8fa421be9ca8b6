/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Persists every collection the cooperative works with (farmers, weighment
  records, payroll runs, tariff versions, inspections, staff users, clerk
  sessions) plus the append-only debt ledger and the audit log.

INTERFACES IMPLEMENTED:
  generic.Store:    Debt ledger persistence
  generic.TxStore:  Atomic multi-write operations
  generic.AuditLog: Via Store.Audit()

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on transactions or audit_log
  - Corrections are new adjustment transactions

KEY TABLES:
  transactions:    Immutable debt ledger (charges, recoveries, adjustments)
  farmers:         Registry rows carrying the current debt balances
  records:         Weighments; payroll_run_id is written once, by settlement
  payroll_runs:    Settlement receipts
  tariff_versions: Every pricing schedule ever in force
  inspections:     Compliance audits with their checklist as JSON
  users, sessions: Staff directory and clerk collection sessions
  audit_log:       Who did what when

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every caller. Work inside Atomically
  goes through the SQL transaction only.

USAGE:
  store, err := sqlite.New("./data/majani.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := farmer.NewDebtLedger(store)

SEE ALSO:
  - settlement.go: ApplySettlement, the one multi-table write that matters
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory ledger for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/majani/coop-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Debt ledger (append-only)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_entity_account_date
		ON transactions(entity_id, account_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference
		ON transactions(reference_id) WHERE reference_id IS NOT NULL;

	-- Farmer registry
	CREATE TABLE IF NOT EXISTS farmers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		first_name TEXT,
		middle_name TEXT,
		last_name TEXT,
		phone TEXT,
		email TEXT,
		cooperative_id TEXT,
		acreage TEXT NOT NULL DEFAULT '0',
		route TEXT,
		centre TEXT,
		bank_name TEXT,
		bank_branch TEXT,
		account_number TEXT,
		lat REAL,
		lng REAL,
		kin_name TEXT,
		kin_relation TEXT,
		kin_phone TEXT,
		balance_inputs TEXT NOT NULL DEFAULT '0',
		balance_advances TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	-- Weighment records
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL,
		weight TEXT NOT NULL,
		net_weight TEXT NOT NULL,
		quality_score INTEGER NOT NULL,
		timestamp TEXT NOT NULL,
		clerk_id TEXT,
		lat REAL,
		lng REAL,
		synced INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		payroll_run_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_records_farmer ON records(farmer_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_records_unsettled ON records(timestamp) WHERE payroll_run_id IS NULL;

	-- Settlement receipts
	CREATE TABLE IF NOT EXISTS payroll_runs (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		total_weight TEXT NOT NULL,
		total_payout TEXT NOT NULL,
		total_farmers INTEGER NOT NULL,
		processed_by TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		status TEXT NOT NULL,
		tariff_version INTEGER NOT NULL DEFAULT 0
	);

	-- Pricing schedules (one row per version)
	CREATE TABLE IF NOT EXISTS tariff_versions (
		version INTEGER PRIMARY KEY,
		schedule_json TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		updated_by TEXT
	);

	-- Compliance inspections
	CREATE TABLE IF NOT EXISTS inspections (
		id TEXT PRIMARY KEY,
		farmer_id TEXT NOT NULL,
		auditor_id TEXT,
		date TEXT NOT NULL,
		notes TEXT,
		checklist_json TEXT NOT NULL,
		score TEXT NOT NULL,
		status TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inspections_farmer ON inspections(farmer_id, date);

	-- Staff directory
	CREATE TABLE IF NOT EXISTS users (
		username TEXT PRIMARY KEY COLLATE NOCASE,
		name TEXT NOT NULL,
		role TEXT NOT NULL
	);

	-- Clerk collection sessions (one per clerk)
	CREATE TABLE IF NOT EXISTS sessions (
		clerk_id TEXT PRIMARY KEY,
		active INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		count INTEGER NOT NULL,
		weight TEXT NOT NULL
	);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		user_id TEXT,
		user_name TEXT,
		user_role TEXT,
		action TEXT NOT NULL,
		details TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE (generic.Store interface)
// =============================================================================

// Append adds a transaction to the ledger.
func (s *Store) Append(ctx context.Context, tx generic.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendTx(ctx, s.db, tx)
}

func appendTx(ctx context.Context, db querier, tx generic.Transaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)

	createdAt := tx.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO transactions
		(id, entity_id, account_id, effective_at, delta_value, delta_unit,
		 tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		tx.ID,
		tx.EntityID,
		tx.AccountID,
		formatTime(tx.EffectiveAt.Time),
		tx.Delta.Value.String(),
		tx.Delta.Unit,
		tx.Type,
		tx.ReferenceID,
		tx.Reason,
		nullString(tx.IdempotencyKey),
		string(metadataJSON),
		tx.CreatedBy,
		formatTime(createdAt),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

// AppendBatch adds multiple transactions atomically.
func (s *Store) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if err := checkBatchKeys(txs); err != nil {
		return err
	}

	return s.Atomically(ctx, func(tx *Tx) error {
		return tx.AppendBatch(ctx, txs)
	})
}

// checkBatchKeys rejects a batch that repeats its own idempotency key.
func checkBatchKeys(txs []generic.Transaction) error {
	idempotencyKeys := make(map[string]bool)
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			if idempotencyKeys[tx.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			idempotencyKeys[tx.IdempotencyKey] = true
		}
	}
	return nil
}

// Load returns all transactions for an entity+account.
func (s *Store) Load(ctx context.Context, entityID generic.EntityID, accountID generic.AccountID) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadTransactions(ctx, s.db, entityID, accountID)
}

func loadTransactions(ctx context.Context, db querier, entityID generic.EntityID, accountID generic.AccountID) ([]generic.Transaction, error) {
	query := `
		SELECT id, entity_id, account_id, effective_at, delta_value, delta_unit,
		       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
		FROM transactions
		WHERE entity_id = ? AND account_id = ?
		ORDER BY effective_at ASC, created_at ASC, rowid ASC
	`

	return queryTransactions(ctx, db, query, entityID, accountID)
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return keyExists(ctx, s.db, idempotencyKey)
}

func keyExists(ctx context.Context, db querier, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

// Transactions returns the most recent ledger entries across all farmers.
func (s *Store) Transactions(ctx context.Context, limit int) ([]generic.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, entity_id, account_id, effective_at, delta_value, delta_unit,
		       tx_type, reference_id, reason, idempotency_key, metadata_json, created_by, created_at
		FROM transactions
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`
	return queryTransactions(ctx, s.db, query, limit)
}

func queryTransactions(ctx context.Context, db querier, query string, args ...any) ([]generic.Transaction, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []generic.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx             generic.Transaction
		effectiveAt    string
		deltaValue     string
		deltaUnit      string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&tx.ID, &tx.EntityID, &tx.AccountID,
		&effectiveAt, &deltaValue, &deltaUnit, &tx.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.EffectiveAt = generic.At(parseTime(effectiveAt))
	tx.CreatedAt = generic.At(parseTime(createdAt))
	tx.Delta = parseAmount(deltaValue, deltaUnit)
	tx.ReferenceID = referenceID.String
	tx.Reason = reason.String
	tx.IdempotencyKey = idempotencyKey.String
	tx.CreatedBy = createdBy.String

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &tx.Metadata)
	}

	return tx, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// Tx is the view of the store inside one SQL transaction. It satisfies
// generic.Store, so a farmer.DebtLedger built on it writes into the same
// transaction as the row updates around it.
type Tx struct {
	tx *sql.Tx
}

// Atomically runs fn in one SQL transaction. Any error rolls everything back.
func (s *Store) Atomically(ctx context.Context, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	return s.Atomically(ctx, func(tx *Tx) error { return fn(tx) })
}

func (t *Tx) Append(ctx context.Context, tx generic.Transaction) error {
	return appendTx(ctx, t.tx, tx)
}

func (t *Tx) AppendBatch(ctx context.Context, txs []generic.Transaction) error {
	if err := checkBatchKeys(txs); err != nil {
		return err
	}
	for _, tx := range txs {
		if err := appendTx(ctx, t.tx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tx) Load(ctx context.Context, entityID generic.EntityID, accountID generic.AccountID) ([]generic.Transaction, error) {
	return loadTransactions(ctx, t.tx, entityID, accountID)
}

func (t *Tx) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return keyExists(ctx, t.tx, idempotencyKey)
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

type auditLog struct {
	s *Store
}

// Audit returns the store's audit log.
func (s *Store) Audit() generic.AuditLog {
	return &auditLog{s: s}
}

func (a *auditLog) Append(ctx context.Context, e generic.AuditEntry) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	return appendAudit(ctx, a.s.db, e)
}

// AppendAudit writes an audit entry inside the transaction.
func (t *Tx) AppendAudit(ctx context.Context, e generic.AuditEntry) error {
	return appendAudit(ctx, t.tx, e)
}

func appendAudit(ctx context.Context, db querier, e generic.AuditEntry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, user_id, user_name, user_role, action, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), e.UserID, e.UserName, e.UserRole, e.Action, e.Details)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateEntity
		}
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns matching entries, newest first.
func (a *auditLog) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	var (
		where []string
		args  []any
	)
	if filter.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, act := range filter.Actions {
			marks[i] = "?"
			args = append(args, act)
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "timestamp <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := "SELECT id, timestamp, user_id, user_name, user_role, action, details FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := a.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                          generic.AuditEntry
			ts                         string
			userID, userName, userRole sql.NullString
			details                    sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &userID, &userName, &userRole, &e.Action, &details); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.UserID = userID.String
		e.UserName = userName.String
		e.UserRole = userRole.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for fixtures and demos).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"transactions", "records", "payroll_runs", "farmers", "tariff_versions",
		"inspections", "users", "sessions", "audit_log",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullLocation(loc *generic.Location) (sql.NullFloat64, sql.NullFloat64) {
	if loc == nil {
		return sql.NullFloat64{}, sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: loc.Lat, Valid: true}, sql.NullFloat64{Float64: loc.Lng, Valid: true}
}

func scanLocation(lat, lng sql.NullFloat64) *generic.Location {
	if !lat.Valid || !lng.Valid {
		return nil
	}
	return &generic.Location{Lat: lat.Float64, Lng: lng.Float64}
}

func parseAmount(value, unit string) generic.Amount {
	return generic.Amount{
		Value: generic.MustParseDecimal(value),
		Unit:  generic.Unit(unit),
	}
}

// Instants are stored in UTC with nanoseconds so they sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
