/*
Package generic provides the core balance ledger engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for keeping a
  per-entity, per-resource, per-year balance of days. Leave categories are
  defined by the leave package; this package only knows that a resource has
  an ID and may opt out of balance checking.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days)
  - BalanceKey: (employee, resource, year) - the unit of serialization
  - Balance: Total/used days plus a version for optimistic locking
  - Transaction: An immutable ledger entry recording a balance change

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so remaining == total - used exactly
  2. Derived state: Remaining is computed, never stored independently
  3. Auditability: Every mutation appends a Transaction with an idempotency key

USAGE:
  key := generic.BalanceKey{EmployeeID: "emp-1", Resource: leave.Annual, Year: 2025}
  bal, err := ledger.Debit(ctx, key, generic.Days(3), generic.Reference{ID: "req-1"})

SEE ALSO:
  - ledger.go: Open/Debit/Credit/Get
  - store.go: Persistence interfaces
  - errors.go: Error kinds
*/
package generic

import (
	"fmt"
	"strconv"
	"time"

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
	UnitDays Unit = "days"
)

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewAmountFromInt(value int, unit Unit) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Unit: unit}
}

// Days is shorthand for NewAmount(n, UnitDays).
func Days(n float64) Amount { return NewAmount(n, UnitDays) }

// DaysFromDecimal wraps an existing decimal as a day amount.
func DaysFromDecimal(d decimal.Decimal) Amount { return Amount{Value: d, Unit: UnitDays} }

// ParseAmount parses a stored decimal string. A malformed value is an error,
// never a silent zero.
func ParseAmount(value string, unit Unit) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("invalid %s amount %q: %w", unit, value, err)
	}
	return Amount{Value: d, Unit: unit}, nil
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }
func (a Amount) Float64() float64             { return a.Value.InexactFloat64() }
func (a Amount) String() string               { return a.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type TransactionID string

// ResourceType identifies what kind of balance is being tracked.
// Domain packages define the concrete types:
//
//	// In leave/category.go
//	type Category string
//	func (c Category) ResourceID() string     { return string(c) }
//	func (c Category) ResourceDomain() string { return "leave" }
type ResourceType interface {
	ResourceID() string
	ResourceDomain() string
}

// BalanceChecked is implemented by resource types that can opt out of
// the remaining-balance check on debit. Resources that do not implement
// it are always checked.
type BalanceChecked interface {
	RequiresBalanceCheck() bool
}

func requiresBalanceCheck(r ResourceType) bool {
	if bc, ok := r.(BalanceChecked); ok {
		return bc.RequiresBalanceCheck()
	}
	return true
}

// =============================================================================
// BALANCE - One row per (employee, resource, year)
// =============================================================================

// BalanceKey is the unit of serialization: every mutation of a balance is
// serialized on its key.
type BalanceKey struct {
	EmployeeID EmployeeID
	Resource   ResourceType
	Year       int
}

func (k BalanceKey) lockKey() string {
	id := ""
	if k.Resource != nil {
		id = k.Resource.ResourceID()
	}
	return string(k.EmployeeID) + "|" + id + "|" + strconv.Itoa(k.Year)
}

// Balance is the ledger state for one key.
//
// INVARIANT: Remaining() == Total - Used, always. Used never exceeds Total
// unless the resource opts out of balance checking.
type Balance struct {
	Key   BalanceKey
	Total Amount
	Used  Amount

	// Granted is false for rows created implicitly by a debit against an
	// exempt resource before the year was initialized.
	Granted bool

	// Version is bumped on every write. Zero means "not yet stored".
	Version   int64
	UpdatedAt time.Time
}

// ZeroBalance is the default returned for an uninitialized key.
func ZeroBalance(key BalanceKey) Balance {
	return Balance{
		Key:   key,
		Total: NewAmountFromInt(0, UnitDays),
		Used:  NewAmountFromInt(0, UnitDays),
	}
}

func (b Balance) Remaining() Amount { return b.Total.Sub(b.Used) }

// IsStored reports whether the balance has been persisted.
func (b Balance) IsStored() bool { return b.Version > 0 }

// =============================================================================
// TRANSACTION - Immutable ledger entry
// =============================================================================

type TransactionType string

const (
	TxGrant       TransactionType = "grant"       // Yearly entitlement grant (initialize)
	TxConsumption TransactionType = "consumption" // Debit for an approved request
	TxReversal    TransactionType = "reversal"    // Credit undoing a consumption
)

type Transaction struct {
	ID             TransactionID
	Key            BalanceKey
	Type           TransactionType
	Delta          Amount // positive for grant/reversal, negative for consumption
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	CreatedBy      string
	CreatedAt      time.Time
}

// Reference describes why a ledger mutation happens.
type Reference struct {
	ID             string // e.g. request ID
	Reason         string
	Actor          string
	IdempotencyKey string // optional; empty disables the duplicate check
}
