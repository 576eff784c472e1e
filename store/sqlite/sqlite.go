/*
Package sqlite provides a SQLite-backed record store.

PURPOSE:
  Implements leave.Store (balances, ledger entries, employees, requests) and
  generic.AuditLog on SQLite. store/postgres follows the same schema with
  row locks instead of a single connection.

INTERFACES IMPLEMENTED:
  generic.TxStore:     Balance rows + append-only ledger entries
  leave.EmployeeStore: Employee records
  leave.RequestStore:  Leave requests
  generic.AuditLog:    Audit trail

KEY TABLES:
  balances:       One row per (employee, category, year), version column
  ledger_entries: Immutable history; UNIQUE idempotency_key
  employees:      HR record slice used by the engine
  requests:       Leave requests and their status
  audit_log:      Who did what when

CONCURRENCY:
  The pool is capped at one connection, so SQLite sees a single writer and
  ":memory:" databases are shared by every query. Inside WithTx all reads
  and writes go through the *sql.Tx; the view never touches the pool, which
  would block on the connection the transaction holds.
  SaveBalance also checks the version column, so stale writes fail with
  generic.ErrConcurrentModification.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewLeaveLedger(store, leave.DefaultPolicyTable())

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store and generic.AuditLog using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ leave.Store      = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)

// tsLayout has a fixed width so stored timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
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

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		hire_date TEXT NOT NULL,
		contract_type TEXT NOT NULL,
		basic_salary TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		total TEXT NOT NULL,
		used TEXT NOT NULL,
		unit TEXT NOT NULL,
		granted BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, resource_id, year)
	);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_key
		ON ledger_entries(employee_id, resource_id, year, created_at);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		requested_days INTEGER NOT NULL,
		working_days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT,
		submitted_by TEXT,
		decided_by TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_dates
		ON requests(employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		employee_id TEXT,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_employee
		ON audit_log(employee_id, ts);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE STORE (generic.Store interface)
// =============================================================================

func (s *Store) LoadBalance(ctx context.Context, key generic.BalanceKey) (generic.Balance, error) {
	return loadBalance(ctx, s.db, key)
}

func (s *Store) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return listBalances(ctx, s.db, employeeID, year)
}

func (s *Store) SaveBalance(ctx context.Context, b generic.Balance) (generic.Balance, error) {
	return saveBalance(ctx, s.db, b)
}

func (s *Store) AppendEntry(ctx context.Context, tx generic.Transaction) error {
	return appendEntry(ctx, s.db, tx)
}

func (s *Store) Entries(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return listEntries(ctx, s.db, key)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, s.db, idempotencyKey)
}

const balanceColumns = `employee_id, resource_id, year, total, used, unit, granted, version, updated_at`

func loadBalance(ctx context.Context, q querier, key generic.BalanceKey) (generic.Balance, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE employee_id = ? AND resource_id = ? AND year = ?`,
		key.EmployeeID, key.Resource.ResourceID(), key.Year)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Balance{}, generic.ErrBalanceNotFound
	}
	return b, err
}

func listBalances(ctx context.Context, q querier, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE employee_id = ? AND year = ? ORDER BY resource_id`,
		employeeID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func saveBalance(ctx context.Context, q querier, b generic.Balance) (generic.Balance, error) {
	updatedAt := b.UpdatedAt.UTC().Format(tsLayout)
	if b.Version == 0 {
		_, err := q.ExecContext(ctx, `
			INSERT INTO balances (`+balanceColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			b.Key.EmployeeID, b.Key.Resource.ResourceID(), b.Key.Year,
			b.Total.Value.String(), b.Used.Value.String(), string(generic.UnitDays), b.Granted, updatedAt)
		if isUniqueConstraintError(err) {
			return generic.Balance{}, generic.ErrConcurrentModification
		}
		if err != nil {
			return generic.Balance{}, fmt.Errorf("failed to insert balance: %w", err)
		}
		b.Version = 1
		return b, nil
	}

	res, err := q.ExecContext(ctx, `
		UPDATE balances SET total = ?, used = ?, granted = ?, version = version + 1, updated_at = ?
		WHERE employee_id = ? AND resource_id = ? AND year = ? AND version = ?`,
		b.Total.Value.String(), b.Used.Value.String(), b.Granted, updatedAt,
		b.Key.EmployeeID, b.Key.Resource.ResourceID(), b.Key.Year, b.Version)
	if err != nil {
		return generic.Balance{}, fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.Balance{}, generic.ErrConcurrentModification
	}
	b.Version++
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBalance(row scanner) (generic.Balance, error) {
	var (
		b                      generic.Balance
		employeeID, resourceID string
		total, used, unit, upd string
	)
	if err := row.Scan(&employeeID, &resourceID, &b.Key.Year, &total, &used, &unit, &b.Granted, &b.Version, &upd); err != nil {
		return generic.Balance{}, err
	}
	b.Key.EmployeeID = generic.EmployeeID(employeeID)
	b.Key.Resource = generic.GetOrCreateResource(resourceID)
	var err error
	if b.Total, err = generic.ParseAmount(total, generic.Unit(unit)); err != nil {
		return generic.Balance{}, fmt.Errorf("balance %s/%s/%d total: %w", employeeID, resourceID, b.Key.Year, err)
	}
	if b.Used, err = generic.ParseAmount(used, generic.Unit(unit)); err != nil {
		return generic.Balance{}, fmt.Errorf("balance %s/%s/%d used: %w", employeeID, resourceID, b.Key.Year, err)
	}
	b.UpdatedAt, _ = time.Parse(tsLayout, upd)
	return b, nil
}

// =============================================================================
// LEDGER ENTRIES (append-only)
// =============================================================================

func appendEntry(ctx context.Context, q querier, tx generic.Transaction) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(id, employee_id, resource_id, year, tx_type, delta_value, delta_unit,
		 reference_id, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.Key.EmployeeID,
		tx.Key.Resource.ResourceID(),
		tx.Key.Year,
		tx.Type,
		tx.Delta.Value.String(),
		string(tx.Delta.Unit),
		tx.ReferenceID,
		tx.Reason,
		nullString(tx.IdempotencyKey),
		tx.CreatedBy,
		tx.CreatedAt.UTC().Format(tsLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func listEntries(ctx context.Context, q querier, key generic.BalanceKey) ([]generic.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, employee_id, resource_id, year, tx_type, delta_value, delta_unit,
			COALESCE(reference_id, ''), COALESCE(reason, ''), COALESCE(idempotency_key, ''),
			COALESCE(created_by, ''), created_at
		FROM ledger_entries
		WHERE employee_id = ? AND resource_id = ? AND year = ?
		ORDER BY created_at ASC, rowid ASC`,
		key.EmployeeID, key.Resource.ResourceID(), key.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			tx                                 generic.Transaction
			id, employeeID, resourceID, txType string
			value, unit, createdAt             string
		)
		if err := rows.Scan(&id, &employeeID, &resourceID, &tx.Key.Year, &txType, &value, &unit,
			&tx.ReferenceID, &tx.Reason, &tx.IdempotencyKey, &tx.CreatedBy, &createdAt); err != nil {
			return nil, err
		}
		tx.ID = generic.TransactionID(id)
		tx.Key.EmployeeID = generic.EmployeeID(employeeID)
		tx.Key.Resource = generic.GetOrCreateResource(resourceID)
		tx.Type = generic.TransactionType(txType)
		if tx.Delta, err = generic.ParseAmount(value, generic.Unit(unit)); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", id, err)
		}
		tx.CreatedAt, _ = time.Parse(tsLayout, createdAt)
		out = append(out, tx)
	}
	return out, rows.Err()
}

func exists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?`, idempotencyKey).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) LoadBalance(ctx context.Context, key generic.BalanceKey) (generic.Balance, error) {
	return loadBalance(ctx, ts.tx, key)
}

func (ts *txStore) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return listBalances(ctx, ts.tx, employeeID, year)
}

func (ts *txStore) SaveBalance(ctx context.Context, b generic.Balance) (generic.Balance, error) {
	return saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) AppendEntry(ctx context.Context, tx generic.Transaction) error {
	return appendEntry(ctx, ts.tx, tx)
}

func (ts *txStore) Entries(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return listEntries(ctx, ts.tx, key)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, ts.tx, idempotencyKey)
}

func (ts *txStore) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, ts.tx, emp)
}

func (ts *txStore) GetEmployee(ctx context.Context, id generic.EmployeeID) (leave.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, ts.tx)
}

func (ts *txStore) SaveRequest(ctx context.Context, r leave.Request) error {
	return saveRequest(ctx, ts.tx, r)
}

func (ts *txStore) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, ts.tx, filter)
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, s.db, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (leave.Employee, error) {
	return getEmployee(ctx, s.db, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, s.db)
}

const employeeColumns = `id, name, email, hire_date, contract_type, basic_salary`

func saveEmployee(ctx context.Context, q querier, emp leave.Employee) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			contract_type = excluded.contract_type,
			basic_salary = excluded.basic_salary`,
		emp.ID, emp.Name, emp.Email, emp.HireDate.String(), string(emp.ContractType), emp.BasicSalary.String())
	return err
}

func getEmployee(ctx context.Context, q querier, id generic.EmployeeID) (leave.Employee, error) {
	row := q.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	return emp, err
}

func listEmployees(ctx context.Context, q querier) ([]leave.Employee, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		emp                            leave.Employee
		id, hireDate, contract, salary string
	)
	if err := row.Scan(&id, &emp.Name, &emp.Email, &hireDate, &contract, &salary); err != nil {
		return leave.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.ContractType = leave.ContractType(contract)
	var err error
	if emp.HireDate, err = generic.ParseDate(hireDate); err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s: %w", id, err)
	}
	if emp.BasicSalary, err = decimal.NewFromString(salary); err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s: bad salary: %w", id, err)
	}
	return emp, nil
}

// =============================================================================
// REQUEST STORE
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r leave.Request) error {
	return saveRequest(ctx, s.db, r)
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	return getRequest(ctx, s.db, id)
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, s.db, filter)
}

const requestColumns = `id, employee_id, category, start_date, end_date, requested_days, working_days,
	status, COALESCE(reason, ''), COALESCE(submitted_by, ''), COALESCE(decided_by, ''),
	COALESCE(rejection_reason, ''), created_at, updated_at`

func saveRequest(ctx context.Context, q querier, r leave.Request) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO requests (id, employee_id, category, start_date, end_date, requested_days,
			working_days, status, reason, submitted_by, decided_by, rejection_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			decided_by = excluded.decided_by,
			rejection_reason = excluded.rejection_reason,
			updated_at = excluded.updated_at`,
		r.ID, r.EmployeeID, string(r.Category), r.Start.String(), r.End.String(), r.RequestedDays,
		r.WorkingDays, string(r.Status), r.Reason, r.SubmittedBy, r.DecidedBy, r.RejectionReason,
		r.CreatedAt.UTC().Format(tsLayout), r.UpdatedAt.UTC().Format(tsLayout),
	)
	return err
}

func getRequest(ctx context.Context, q querier, id leave.RequestID) (leave.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return r, err
}

func listRequests(ctx context.Context, q querier, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			ph[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(ph, ", ")+")")
	}
	// ISO dates compare correctly as text.
	if f.To != nil {
		where = append(where, "start_date <= ?")
		args = append(args, f.To.String())
	}
	if f.From != nil {
		where = append(where, "end_date >= ?")
		args = append(args, f.From.String())
	}

	query := `SELECT ` + requestColumns + ` FROM requests`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (leave.Request, error) {
	var (
		r                                leave.Request
		id, employeeID, category, status string
		start, end, createdAt, updatedAt string
	)
	if err := row.Scan(&id, &employeeID, &category, &start, &end, &r.RequestedDays, &r.WorkingDays,
		&status, &r.Reason, &r.SubmittedBy, &r.DecidedBy, &r.RejectionReason, &createdAt, &updatedAt); err != nil {
		return leave.Request{}, err
	}
	r.ID = leave.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.Category = leave.Category(category)
	r.Status = leave.Status(status)
	var err error
	if r.Start, err = generic.ParseDate(start); err != nil {
		return leave.Request{}, err
	}
	if r.End, err = generic.ParseDate(end); err != nil {
		return leave.Request{}, err
	}
	r.CreatedAt, _ = time.Parse(tsLayout, createdAt)
	r.UpdatedAt, _ = time.Parse(tsLayout, updatedAt)
	return r, nil
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

func (s *Store) Append(ctx context.Context, e generic.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, employee_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC().Format(tsLayout), e.ActorID, string(e.Action),
		string(e.EmployeeID), string(details))
	return err
}

func (s *Store) Query(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, string(*f.EmployeeID))
	}
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if len(f.Actions) > 0 {
		ph := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			ph[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(ph, ", ")+")")
	}
	if f.From != nil {
		where = append(where, "ts >= ?")
		args = append(args, f.From.UTC().Format(tsLayout))
	}
	if f.To != nil {
		where = append(where, "ts <= ?")
		args = append(args, f.To.UTC().Format(tsLayout))
	}

	query := `SELECT id, ts, COALESCE(actor_id, ''), action, COALESCE(employee_id, ''), COALESCE(details_json, '') FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts ASC, rowid ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e                        generic.AuditEntry
			ts, action, emp, details string
		)
		if err := rows.Scan(&e.ID, &ts, &e.ActorID, &action, &emp, &details); err != nil {
			return nil, err
		}
		e.Timestamp, _ = time.Parse(tsLayout, ts)
		e.Action = generic.AuditAction(action)
		e.EmployeeID = generic.EmployeeID(emp)
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, fmt.Errorf("audit %s: bad details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
