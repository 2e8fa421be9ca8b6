/*
errors.go - Centralized error types for the engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Transaction persistence failures
  2. Validation errors - Business rule violations (field-scoped)
  3. Settlement errors - Empty batches and double inclusion
  4. Store errors - Database-level failures

USAGE:
  if errors.Is(err, generic.ErrAlreadySettled) {
      // another settlement got there first, reload and retry
  }

SEE ALSO:
  - weighment/capture.go: Returns FieldError for bad weight or quality
  - payroll/settlement.go: Returns ErrNothingToSettle
  - store/sqlite/sqlite.go: Returns ErrAlreadySettled
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when a transaction with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrTransactionFailed is returned when a transaction cannot be persisted.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrValidation is the root of every field-level input error.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAmount is returned for non-positive or non-numeric charges.
	ErrInvalidAmount = errors.New("amount must be a positive number")

	// ErrNothingToSettle is returned when a settlement has no eligible records.
	ErrNothingToSettle = errors.New("no eligible records to settle")

	// ErrAlreadySettled is returned when a record in a settlement batch
	// already carries a payroll run id.
	ErrAlreadySettled = errors.New("record already settled")

	// ErrBalanceChanged is returned when a settlement would recover more debt
	// than the farmer still owes, because another run or a charge moved the
	// balance after the payroll was computed.
	ErrBalanceChanged = errors.New("debt balance changed since payroll was computed")

	// ErrNotPending is returned when approving or rejecting a record that is
	// not awaiting review.
	ErrNotPending = errors.New("record is not pending approval")

	// ErrEntityNotFound is returned when a referenced farmer, record or run doesn't exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrUserNotFound is returned when a username is not in the directory.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateEntity is returned when creating something whose id is taken.
	ErrDuplicateEntity = errors.New("entity already exists")

	// ErrInvalidPeriod is returned when a date window is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidTariff is returned when settings or route rates are out of range.
	ErrInvalidTariff = errors.New("invalid tariff")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError is a recoverable, field-scoped input error. The user corrects
// the field and resubmits; nothing was mutated.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// SettlementConflictError names the records that were already stamped by
// another run when a settlement tried to claim them.
type SettlementConflictError struct {
	RunID     string
	RecordIDs []string
}

func (e *SettlementConflictError) Error() string {
	return fmt.Sprintf("settlement %s conflicts on %d record(s): %v", e.RunID, len(e.RecordIDs), e.RecordIDs)
}

func (e *SettlementConflictError) Unwrap() error {
	return ErrAlreadySettled
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrInvalidTariff)
}

// IsConflict returns true if the request clashes with current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrBalanceChanged) ||
		errors.Is(err, ErrNothingToSettle) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrDuplicateEntity) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntityNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
