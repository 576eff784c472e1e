package leave

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

// Employee is the slice of the HR record the engine needs.
type Employee struct {
	ID           generic.EmployeeID
	Name         string
	Email        string
	HireDate     generic.TimePoint
	ContractType ContractType
	BasicSalary  decimal.Decimal // monthly
}

// =============================================================================
// RECORD STORE - Employees and requests next to the generic balance store
// =============================================================================

type EmployeeStore interface {
	// SaveEmployee inserts or replaces an employee.
	SaveEmployee(ctx context.Context, emp Employee) error
	// GetEmployee returns ErrEmployeeNotFound for an unknown ID.
	GetEmployee(ctx context.Context, id generic.EmployeeID) (Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
}

type RequestStore interface {
	// SaveRequest inserts or replaces a request by ID.
	SaveRequest(ctx context.Context, req Request) error
	// GetRequest returns ErrRequestNotFound for an unknown ID.
	GetRequest(ctx context.Context, id RequestID) (Request, error)
	// ListRequests returns matching requests ordered by start date.
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
}

// RequestFilter narrows ListRequests. Zero fields match everything.
// From/To select requests whose [Start, End] intersects the window.
type RequestFilter struct {
	EmployeeID generic.EmployeeID
	Statuses   []Status
	From       *generic.TimePoint
	To         *generic.TimePoint
	Limit      int
}

// Matches applies the filter in memory. SQL stores translate it instead.
func (f RequestFilter) Matches(r Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if r.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.To != nil && r.Start.After(*f.To) {
		return false
	}
	if f.From != nil && r.End.Before(*f.From) {
		return false
	}
	return true
}

// Store is the full record store the leave services run on. The Store handed
// to a WithTx callback must also implement RequestStore and EmployeeStore.
type Store interface {
	generic.TxStore
	EmployeeStore
	RequestStore
}

// txRecords is what a transactional view must provide.
type txRecords interface {
	generic.Store
	EmployeeStore
	RequestStore
}

// EmployeeLocker is implemented by transactional views that can lock an
// employee until commit. Stores that already serialize every transaction
// (memory, single-connection SQLite) don't need it.
type EmployeeLocker interface {
	LockEmployee(ctx context.Context, id generic.EmployeeID) error
}

func lockEmployee(ctx context.Context, s generic.Store, id generic.EmployeeID) error {
	if l, ok := s.(EmployeeLocker); ok {
		return l.LockEmployee(ctx, id)
	}
	return nil
}

func asRecords(s generic.Store) (txRecords, error) {
	r, ok := s.(txRecords)
	if !ok {
		return nil, generic.ErrStoreRequired
	}
	return r, nil
}
