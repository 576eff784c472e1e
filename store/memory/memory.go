// Package memory provides an in-memory record store for tests and local dev.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - Balances, ledger entries, employees, requests, audit
// =============================================================================

type Store struct {
	mu sync.RWMutex
	st *state
}

type balanceKey struct {
	employeeID generic.EmployeeID
	resource   string
	year       int
}

func keyOf(k generic.BalanceKey) balanceKey {
	return balanceKey{employeeID: k.EmployeeID, resource: k.Resource.ResourceID(), year: k.Year}
}

type state struct {
	balances    map[balanceKey]generic.Balance
	entries     map[balanceKey][]generic.Transaction
	idempotency map[string]bool
	employees   map[generic.EmployeeID]leave.Employee
	requests    map[leave.RequestID]leave.Request
	audit       []generic.AuditEntry
}

func newState() *state {
	return &state{
		balances:    make(map[balanceKey]generic.Balance),
		entries:     make(map[balanceKey][]generic.Transaction),
		idempotency: make(map[string]bool),
		employees:   make(map[generic.EmployeeID]leave.Employee),
		requests:    make(map[leave.RequestID]leave.Request),
	}
}

func New() *Store {
	return &Store{st: newState()}
}

var (
	_ leave.Store      = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)

func (m *Store) LoadBalance(_ context.Context, key generic.BalanceKey) (generic.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.loadBalance(key)
}

func (m *Store) ListBalances(_ context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listBalances(employeeID, year), nil
}

func (m *Store) SaveBalance(_ context.Context, b generic.Balance) (generic.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.saveBalance(b)
}

func (m *Store) AppendEntry(_ context.Context, tx generic.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendEntry(tx)
}

func (m *Store) Entries(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listEntries(key), nil
}

func (m *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.idempotency[idempotencyKey], nil
}

func (m *Store) SaveEmployee(_ context.Context, emp leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.employees[emp.ID] = emp
	return nil
}

func (m *Store) GetEmployee(_ context.Context, id generic.EmployeeID) (leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getEmployee(id)
}

func (m *Store) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listEmployees(), nil
}

func (m *Store) SaveRequest(_ context.Context, req leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.requests[req.ID] = req
	return nil
}

func (m *Store) GetRequest(_ context.Context, id leave.RequestID) (leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getRequest(id)
}

func (m *Store) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listRequests(filter), nil
}

// Append implements generic.AuditLog.
func (m *Store) Append(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.audit = append(m.st.audit, entry)
	return nil
}

func (m *Store) Query(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range m.st.audit {
		if !auditMatches(filter, e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS - Snapshot + rollback under the write lock
// =============================================================================

// WithTx runs fn holding the write lock, so transactions are serialized.
// On error the state is restored from a snapshot taken before fn ran.
func (m *Store) WithTx(_ context.Context, fn func(generic.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.st.clone()
	if err := fn(&txView{st: m.st}); err != nil {
		m.st = snapshot
		return err
	}
	return nil
}

// txView operates on the locked state directly. It does not implement
// generic.TxStore.
type txView struct {
	st *state
}

func (v *txView) LoadBalance(_ context.Context, key generic.BalanceKey) (generic.Balance, error) {
	return v.st.loadBalance(key)
}

func (v *txView) ListBalances(_ context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return v.st.listBalances(employeeID, year), nil
}

func (v *txView) SaveBalance(_ context.Context, b generic.Balance) (generic.Balance, error) {
	return v.st.saveBalance(b)
}

func (v *txView) AppendEntry(_ context.Context, tx generic.Transaction) error {
	return v.st.appendEntry(tx)
}

func (v *txView) Entries(_ context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return v.st.listEntries(key), nil
}

func (v *txView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return v.st.idempotency[idempotencyKey], nil
}

func (v *txView) SaveEmployee(_ context.Context, emp leave.Employee) error {
	v.st.employees[emp.ID] = emp
	return nil
}

func (v *txView) GetEmployee(_ context.Context, id generic.EmployeeID) (leave.Employee, error) {
	return v.st.getEmployee(id)
}

func (v *txView) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	return v.st.listEmployees(), nil
}

func (v *txView) SaveRequest(_ context.Context, req leave.Request) error {
	v.st.requests[req.ID] = req
	return nil
}

func (v *txView) GetRequest(_ context.Context, id leave.RequestID) (leave.Request, error) {
	return v.st.getRequest(id)
}

func (v *txView) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return v.st.listRequests(filter), nil
}

// =============================================================================
// STATE - Unlocked helpers shared by Store and txView
// =============================================================================

func (s *state) loadBalance(key generic.BalanceKey) (generic.Balance, error) {
	b, ok := s.balances[keyOf(key)]
	if !ok {
		return generic.Balance{}, generic.ErrBalanceNotFound
	}
	return b, nil
}

func (s *state) listBalances(employeeID generic.EmployeeID, year int) []generic.Balance {
	var out []generic.Balance
	for k, b := range s.balances {
		if k.employeeID == employeeID && k.year == year {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.Resource.ResourceID() < out[j].Key.Resource.ResourceID()
	})
	return out
}

func (s *state) saveBalance(b generic.Balance) (generic.Balance, error) {
	k := keyOf(b.Key)
	current, exists := s.balances[k]
	switch {
	case b.Version == 0 && exists:
		return generic.Balance{}, generic.ErrConcurrentModification
	case b.Version != 0 && (!exists || current.Version != b.Version):
		return generic.Balance{}, generic.ErrConcurrentModification
	}
	b.Version++
	s.balances[k] = b
	return b, nil
}

func (s *state) appendEntry(tx generic.Transaction) error {
	if tx.IdempotencyKey != "" {
		if s.idempotency[tx.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		s.idempotency[tx.IdempotencyKey] = true
	}
	k := keyOf(tx.Key)
	s.entries[k] = append(s.entries[k], tx)
	return nil
}

func (s *state) listEntries(key generic.BalanceKey) []generic.Transaction {
	src := s.entries[keyOf(key)]
	out := make([]generic.Transaction, len(src))
	copy(out, src)
	return out
}

func (s *state) getEmployee(id generic.EmployeeID) (leave.Employee, error) {
	emp, ok := s.employees[id]
	if !ok {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	return emp, nil
}

func (s *state) listEmployees() []leave.Employee {
	out := make([]leave.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *state) getRequest(id leave.RequestID) (leave.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return r, nil
}

func (s *state) listRequests(filter leave.RequestFilter) []leave.Request {
	var out []leave.Request
	for _, r := range s.requests {
		if filter.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = append([]generic.Transaction(nil), v...)
	}
	for k, v := range s.idempotency {
		c.idempotency[k] = v
	}
	for k, v := range s.employees {
		c.employees[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	c.audit = append([]generic.AuditEntry(nil), s.audit...)
	return c
}

func auditMatches(f generic.AuditFilter, e generic.AuditEntry) bool {
	if f.EmployeeID != nil && e.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
