/*
ledger.go - Leave ledger: per-category balances initialized from the policy table

PURPOSE:
  Wraps generic.Ledger with leave rules. Balances are keyed by
  (employee, category, year); the year's grant comes from Entitlement.

INITIALIZE:
  Creates a balance for every policy category not yet granted for the
  employee/year. Categories already granted are NOT touched and are reported
  in one *generic.AlreadyInitializedError; the others are still created, so
  a newly added policy category can be topped up without a migration.

  An unpaid/administrative row created by an early debit is not "granted":
  Initialize grants it and keeps its used days.

EXAMPLE:
  ll := leave.NewLeaveLedger(store, leave.DefaultPolicyTable())
  _, err := ll.Initialize(ctx, emp, 2025, nil, "hr-admin")
  _, err = ll.Debit(ctx, emp.ID, leave.Annual, 2025, generic.Days(3), generic.Reference{ID: "req-1"})

SEE ALSO:
  - generic/ledger.go: Atomic open/debit/credit
  - entitlement.go: Days granted per category
*/
package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/warp/leave-engine/generic"
)

type LeaveLedger struct {
	inner    generic.Ledger
	policies *PolicyTable
}

func NewLeaveLedger(store generic.Store, policies *PolicyTable) *LeaveLedger {
	return &LeaveLedger{inner: generic.NewLedger(store), policies: policies}
}

// NewLeaveLedgerFrom wraps an existing generic ledger, e.g. one with a
// fixed clock.
func NewLeaveLedgerFrom(inner generic.Ledger, policies *PolicyTable) *LeaveLedger {
	return &LeaveLedger{inner: inner, policies: policies}
}

func Key(employeeID generic.EmployeeID, category Category, year int) generic.BalanceKey {
	return generic.BalanceKey{EmployeeID: employeeID, Resource: category, Year: year}
}

// InitIdempotencyKey identifies the grant for one employee/category/year.
func InitIdempotencyKey(employeeID generic.EmployeeID, category Category, year int) string {
	return fmt.Sprintf("init:%s:%s:%d", employeeID, category, year)
}

// Initialize grants the year's entitlement for every policy category.
// overrides replaces the computed entitlement per category.
// Returns the balances created by this call; err is *generic.AlreadyInitializedError
// when some categories were already granted.
func (l *LeaveLedger) Initialize(ctx context.Context, emp Employee, year int, overrides map[Category]generic.Amount, actor string) ([]generic.Balance, error) {
	var (
		created  []generic.Balance
		existing []generic.ResourceType
	)
	for _, entry := range l.policies.Entries() {
		total, ok := overrides[entry.Category]
		if !ok {
			total = EmployeeEntitlement(l.policies, emp, entry.Category, year)
		}
		ref := generic.Reference{
			ID:             fmt.Sprintf("init-%s-%d", emp.ID, year),
			Reason:         fmt.Sprintf("%d entitlement (policy %s)", year, l.policies.Version()),
			Actor:          actor,
			IdempotencyKey: InitIdempotencyKey(emp.ID, entry.Category, year),
		}
		b, err := l.inner.Open(ctx, Key(emp.ID, entry.Category, year), total, ref)
		switch {
		case err == nil:
			created = append(created, b)
		case errors.Is(err, generic.ErrAlreadyInitialized), errors.Is(err, generic.ErrDuplicateIdempotencyKey):
			existing = append(existing, entry.Category)
		default:
			return created, fmt.Errorf("initialize %s for %s/%d: %w", entry.Category, emp.ID, year, err)
		}
	}
	if len(existing) > 0 {
		return created, &generic.AlreadyInitializedError{EmployeeID: emp.ID, Year: year, Resources: existing}
	}
	return created, nil
}

func (l *LeaveLedger) Debit(ctx context.Context, employeeID generic.EmployeeID, category Category, year int, days generic.Amount, ref generic.Reference) (generic.Balance, error) {
	return l.inner.Debit(ctx, Key(employeeID, category, year), days, ref)
}

func (l *LeaveLedger) Credit(ctx context.Context, employeeID generic.EmployeeID, category Category, year int, days generic.Amount, ref generic.Reference) (generic.Balance, error) {
	return l.inner.Credit(ctx, Key(employeeID, category, year), days, ref)
}

// Get returns the balance, or a zeroed default if uninitialized.
func (l *LeaveLedger) Get(ctx context.Context, employeeID generic.EmployeeID, category Category, year int) (generic.Balance, error) {
	return l.inner.Get(ctx, Key(employeeID, category, year))
}

// List returns the stored balances for an employee/year.
func (l *LeaveLedger) List(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return l.inner.List(ctx, employeeID, year)
}

func (l *LeaveLedger) Entries(ctx context.Context, employeeID generic.EmployeeID, category Category, year int) ([]generic.Transaction, error) {
	return l.inner.Entries(ctx, Key(employeeID, category, year))
}
