/*
store.go - Persistence interface for balances and ledger entries

PURPOSE:
  Defines the interface between the ledger and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:    Balance rows + append-only ledger entries
  TxStore:  Transactional wrapper (all-or-nothing multi-write)
  AuditLog: Who did what when

OPTIMISTIC VERSIONING:
  SaveBalance writes a row only if the stored version equals b.Version
  (zero means "insert"). A mismatch returns ErrConcurrentModification.
  Stores that lock rows inside a transaction (postgres SELECT ... FOR UPDATE)
  keep the version check as a second line.

IDEMPOTENCY:
  AppendEntry rejects a non-empty idempotency key that already exists with
  ErrDuplicateIdempotencyKey. Inside WithTx that also rolls back the balance
  write made earlier in the same callback.

IMPLEMENTATIONS:
  - store/sqlite
  - store/postgres
  - store/memory (tests/dev)

SEE ALSO:
  - ledger.go: Higher-level operations using Store
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Balance rows and ledger entries
// =============================================================================

type Store interface {
	// LoadBalance returns ErrBalanceNotFound for a missing row. Inside a
	// transaction, implementations lock the row for the rest of it.
	LoadBalance(ctx context.Context, key BalanceKey) (Balance, error)

	// ListBalances returns all rows for an employee/year.
	ListBalances(ctx context.Context, employeeID EmployeeID, year int) ([]Balance, error)

	// SaveBalance inserts (Version == 0) or updates (Version == stored version)
	// and returns the stored row with its new version.
	SaveBalance(ctx context.Context, b Balance) (Balance, error)

	// AppendEntry persists a ledger entry. Append-only.
	AppendEntry(ctx context.Context, tx Transaction) error

	// Entries returns the ledger entries for a key, oldest first.
	Entries(ctx context.Context, key BalanceKey) ([]Transaction, error)

	// Exists checks if an idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	// The Store passed to fn does not implement TxStore.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from the ledger, tracks who did what when
// =============================================================================

type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	ActorID    string
	Action     AuditAction
	EmployeeID EmployeeID
	Details    map[string]any
}

type AuditAction string

const (
	AuditBalanceInitialized AuditAction = "balance_initialized"
	AuditRequestSubmitted   AuditAction = "request_submitted"
	AuditRequestApproved    AuditAction = "request_approved"
	AuditRequestRejected    AuditAction = "request_rejected"
	AuditRequestCancelled   AuditAction = "request_cancelled"
	AuditSettlementComputed AuditAction = "settlement_computed"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	EmployeeID *EmployeeID
	ActorID    *string
	Actions    []AuditAction
	From       *time.Time
	To         *time.Time
	Limit      int
}
