/*
store.go - Persistence interfaces for the debt ledger and the activity log

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:    Debt ledger persistence (append, load, exists)
  TxStore:  Transactional operations (atomic multi-table writes)
  AuditLog: Who did what when

APPEND-ONLY CONTRACT:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write may carry an idempotency key. Settlement recoveries use
  "<run id>/<farmer>/<account>" so replaying a settlement can never recover
  the same debt twice.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Application backend
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
  - farmer/debt.go: Farmer debt accounts on top of the ledger
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of debt transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for entity+account, ordered by EffectiveAt.
	Load(ctx context.Context, entityID EntityID, accountID AccountID) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

// AuditEntry records who did what when. Informational only.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	UserID    string
	UserName  string
	UserRole  string
	Action    AuditAction
	Details   string
}

type AuditAction string

const (
	AuditSystemStart    AuditAction = "SYSTEM_START"
	AuditLogin          AuditAction = "LOGIN"
	AuditLogout         AuditAction = "LOGOUT"
	AuditCollection     AuditAction = "COLLECTION"
	AuditApproval       AuditAction = "APPROVE_COLLECTION"
	AuditRejection      AuditAction = "REJECT_COLLECTION"
	AuditCreateFarmer   AuditAction = "CREATE_FARMER"
	AuditUpdateFarmer   AuditAction = "UPDATE_FARMER"
	AuditChargeFarmer   AuditAction = "CHARGE_FARMER"
	AuditUpdateRoutes   AuditAction = "UPDATE_ROUTES"
	AuditUpdateSettings AuditAction = "UPDATE_SETTINGS"
	AuditCreateUser     AuditAction = "CREATE_USER"
	AuditUpdateUser     AuditAction = "UPDATE_USER"
	AuditInspection     AuditAction = "INSPECTION"
	AuditPayrollSettle  AuditAction = "PAYROLL_SETTLE"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	UserID  *string
	Actions []AuditAction
	From    *time.Time
	To      *time.Time
	Limit   int
}
