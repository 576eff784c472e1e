/*
ledger.go - Balance ledger with atomic open/debit/credit

PURPOSE:
  The Ledger owns every mutation of a Balance. Callers never assign fields
  directly: they Open a year's grant, Debit approved days and Credit
  reversals. Each mutation updates the balance row AND appends an immutable
  Transaction in one store transaction.

CRITICAL INVARIANTS:
  1. Remaining == Total - Used before and after every call, including
     failed calls (a failed call changes nothing).
  2. No two concurrent debits on the same key can both succeed if together
     they exceed the remaining balance.
  3. Credit(x) right after Debit(x) restores the exact pre-debit balance.

CONCURRENCY:
  Mutations on one BalanceKey are serialized in-process with a per-key
  mutex, then executed inside Store.WithTx when the store supports it.
  Stores add row locks and/or version checks for cross-process safety;
  a version conflict is retried up to MaxRetries times.
  Reads (Get, List, Entries) take no ledger lock.

NESTING:
  A ledger built on the Store handed to a WithTx callback runs its
  mutations directly in that outer transaction:

    store.WithTx(ctx, func(s generic.Store) error {
        _, err := generic.NewLedger(s).Debit(ctx, key, days, ref)
        ...
    })

SEE ALSO:
  - store.go: Persistence interface
  - leave/ledger.go: Leave-specific wrapper (initialize per policy table)
*/
package generic

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Ledger is the only writer of balances.
type Ledger interface {
	// Open grants total days for a key. Returns *AlreadyInitializedError if
	// the key was already granted.
	Open(ctx context.Context, key BalanceKey, total Amount, ref Reference) (Balance, error)

	// Debit consumes days. Returns *InsufficientBalanceError when the
	// resource is balance-checked and days > remaining.
	Debit(ctx context.Context, key BalanceKey, days Amount, ref Reference) (Balance, error)

	// Credit reverses a prior debit. Returns *OverCreditError if days > used.
	Credit(ctx context.Context, key BalanceKey, days Amount, ref Reference) (Balance, error)

	// Get returns the balance, or a zeroed default when uninitialized.
	Get(ctx context.Context, key BalanceKey) (Balance, error)

	// List returns every stored balance for an employee/year.
	List(ctx context.Context, employeeID EmployeeID, year int) ([]Balance, error)

	// Entries returns the ledger history for a key.
	Entries(ctx context.Context, key BalanceKey) ([]Transaction, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

const defaultMaxRetries = 3

type DefaultLedger struct {
	Store      Store
	Clock      Clock
	MaxRetries int

	locks keyedMutex
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store, Clock: SystemClock{}, MaxRetries: defaultMaxRetries}
}

func (l *DefaultLedger) Open(ctx context.Context, key BalanceKey, total Amount, ref Reference) (Balance, error) {
	if total.IsNegative() {
		return Balance{}, ErrInvalidAmount
	}
	entry := Transaction{Type: TxGrant, Delta: total}
	return l.apply(ctx, key, entry, ref, func(current Balance) (Balance, error) {
		if current.Granted {
			return Balance{}, &AlreadyInitializedError{
				EmployeeID: key.EmployeeID,
				Year:       key.Year,
				Resources:  []ResourceType{key.Resource},
			}
		}
		next := current
		next.Total = total
		next.Granted = true
		return next, nil
	})
}

func (l *DefaultLedger) Debit(ctx context.Context, key BalanceKey, days Amount, ref Reference) (Balance, error) {
	if !days.IsPositive() {
		return Balance{}, ErrInvalidAmount
	}
	entry := Transaction{Type: TxConsumption, Delta: days.Neg()}
	return l.apply(ctx, key, entry, ref, func(current Balance) (Balance, error) {
		if requiresBalanceCheck(key.Resource) && days.GreaterThan(current.Remaining()) {
			return Balance{}, &InsufficientBalanceError{
				Key:       key,
				Available: current.Remaining(),
				Requested: days,
			}
		}
		next := current
		next.Used = current.Used.Add(days)
		return next, nil
	})
}

func (l *DefaultLedger) Credit(ctx context.Context, key BalanceKey, days Amount, ref Reference) (Balance, error) {
	if !days.IsPositive() {
		return Balance{}, ErrInvalidAmount
	}
	entry := Transaction{Type: TxReversal, Delta: days}
	return l.apply(ctx, key, entry, ref, func(current Balance) (Balance, error) {
		if days.GreaterThan(current.Used) {
			return Balance{}, &OverCreditError{Key: key, Used: current.Used, Credited: days}
		}
		next := current
		next.Used = current.Used.Sub(days)
		return next, nil
	})
}

func (l *DefaultLedger) Get(ctx context.Context, key BalanceKey) (Balance, error) {
	b, err := l.Store.LoadBalance(ctx, key)
	if errors.Is(err, ErrBalanceNotFound) {
		return ZeroBalance(key), nil
	}
	return b, err
}

func (l *DefaultLedger) List(ctx context.Context, employeeID EmployeeID, year int) ([]Balance, error) {
	return l.Store.ListBalances(ctx, employeeID, year)
}

func (l *DefaultLedger) Entries(ctx context.Context, key BalanceKey) ([]Transaction, error) {
	return l.Store.Entries(ctx, key)
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

// apply runs step against the current row and persists the result together
// with its ledger entry. Everything happens under the key lock and inside a
// single store transaction.
func (l *DefaultLedger) apply(ctx context.Context, key BalanceKey, entry Transaction, ref Reference, step func(Balance) (Balance, error)) (Balance, error) {
	unlock := l.locks.Lock(key.lockKey())
	defer unlock()

	retries := l.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	var (
		result Balance
		err    error
	)
	for attempt := 0; attempt < retries; attempt++ {
		result, err = l.applyOnce(ctx, key, entry, ref, step)
		if !IsRetryable(err) {
			break
		}
	}
	return result, err
}

func (l *DefaultLedger) applyOnce(ctx context.Context, key BalanceKey, entry Transaction, ref Reference, step func(Balance) (Balance, error)) (Balance, error) {
	var result Balance
	err := l.withTx(ctx, func(s Store) error {
		if ref.IdempotencyKey != "" {
			exists, err := s.Exists(ctx, ref.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}

		current, err := s.LoadBalance(ctx, key)
		if errors.Is(err, ErrBalanceNotFound) {
			current = ZeroBalance(key)
		} else if err != nil {
			return err
		}

		next, err := step(current)
		if err != nil {
			return err
		}
		now := l.now()
		next.Key = key
		next.UpdatedAt = now

		saved, err := s.SaveBalance(ctx, next)
		if err != nil {
			return err
		}

		entry.ID = TransactionID(uuid.NewString())
		entry.Key = key
		entry.ReferenceID = ref.ID
		entry.Reason = ref.Reason
		entry.IdempotencyKey = ref.IdempotencyKey
		entry.CreatedBy = ref.Actor
		entry.CreatedAt = now
		if err := s.AppendEntry(ctx, entry); err != nil {
			return err
		}

		result = saved
		return nil
	})
	if err != nil {
		return Balance{}, err
	}
	return result, nil
}

func (l *DefaultLedger) withTx(ctx context.Context, fn func(Store) error) error {
	if ts, ok := l.Store.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(l.Store)
}

func (l *DefaultLedger) now() time.Time {
	if l.Clock == nil {
		return time.Now().UTC()
	}
	return l.Clock.Now()
}
