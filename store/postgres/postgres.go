/*
Package postgres provides a PostgreSQL record store on pgx.

PURPOSE:
  Same contract and schema as store/sqlite, for multi-process deployments.

CONCURRENCY:
  Inside WithTx, LoadBalance runs SELECT ... FOR UPDATE, so a second
  transaction debiting the same (employee, category, year) waits for the
  first to commit and then sees its write. The version column stays as a
  second check. Serialization failures and deadlocks surface as
  generic.ErrConcurrentModification, which the ledger retries.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

type Store struct {
	pool *pgxpool.Pool
}

var (
	_ leave.Store      = (*Store)(nil)
	_ generic.AuditLog = (*Store)(nil)
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects, pings and migrates.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		hire_date DATE NOT NULL,
		contract_type TEXT NOT NULL,
		basic_salary NUMERIC NOT NULL
	);

	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		total NUMERIC NOT NULL,
		used NUMERIC NOT NULL,
		unit TEXT NOT NULL,
		granted BOOLEAN NOT NULL DEFAULT FALSE,
		version BIGINT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (employee_id, resource_id, year)
	);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		tx_type TEXT NOT NULL,
		delta_value NUMERIC NOT NULL,
		delta_unit TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_entries_key
		ON ledger_entries(employee_id, resource_id, year, seq);

	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		category TEXT NOT NULL,
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		requested_days INTEGER NOT NULL,
		working_days INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT '',
		submitted_by TEXT NOT NULL DEFAULT '',
		decided_by TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_dates
		ON requests(employee_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS audit_log (
		seq BIGSERIAL,
		id TEXT PRIMARY KEY,
		ts TIMESTAMPTZ NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		details JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_employee ON audit_log(employee_id, ts);
	`)
	return err
}

// Truncate empties every table. Used by tests against a shared database.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE employees, balances, ledger_entries, requests, audit_log`)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("failed to rollback transaction", "error", rbErr)
		}
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) LoadBalance(ctx context.Context, key generic.BalanceKey) (generic.Balance, error) {
	return loadBalance(ctx, t.tx, key, true)
}

func (t *txStore) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return listBalances(ctx, t.tx, employeeID, year)
}

func (t *txStore) SaveBalance(ctx context.Context, b generic.Balance) (generic.Balance, error) {
	return saveBalance(ctx, t.tx, b)
}

func (t *txStore) AppendEntry(ctx context.Context, e generic.Transaction) error {
	return appendEntry(ctx, t.tx, e)
}

func (t *txStore) Entries(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return listEntries(ctx, t.tx, key)
}

func (t *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, t.tx, idempotencyKey)
}

func (t *txStore) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, t.tx, emp)
}

func (t *txStore) GetEmployee(ctx context.Context, id generic.EmployeeID) (leave.Employee, error) {
	return getEmployee(ctx, t.tx, id)
}

// LockEmployee holds the employee row until the transaction ends, so
// approvals for one employee run their conflict checks one at a time.
func (t *txStore) LockEmployee(ctx context.Context, id generic.EmployeeID) error {
	var locked string
	err := t.tx.QueryRow(ctx, `SELECT id FROM employees WHERE id = $1 FOR UPDATE`, string(id)).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.ErrEmployeeNotFound
	}
	return mapError(err)
}

func (t *txStore) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, t.tx)
}

func (t *txStore) SaveRequest(ctx context.Context, r leave.Request) error {
	return saveRequest(ctx, t.tx, r)
}

func (t *txStore) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	return getRequest(ctx, t.tx, id, true)
}

func (t *txStore) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, t.tx, f)
}

// =============================================================================
// BALANCES & LEDGER ENTRIES
// =============================================================================

func (s *Store) LoadBalance(ctx context.Context, key generic.BalanceKey) (generic.Balance, error) {
	return loadBalance(ctx, s.pool, key, false)
}

func (s *Store) ListBalances(ctx context.Context, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	return listBalances(ctx, s.pool, employeeID, year)
}

func (s *Store) SaveBalance(ctx context.Context, b generic.Balance) (generic.Balance, error) {
	return saveBalance(ctx, s.pool, b)
}

func (s *Store) AppendEntry(ctx context.Context, e generic.Transaction) error {
	return appendEntry(ctx, s.pool, e)
}

func (s *Store) Entries(ctx context.Context, key generic.BalanceKey) ([]generic.Transaction, error) {
	return listEntries(ctx, s.pool, key)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return exists(ctx, s.pool, idempotencyKey)
}

const balanceSelect = `SELECT employee_id, resource_id, year, total::text, used::text, unit, granted, version, updated_at FROM balances`

func loadBalance(ctx context.Context, q querier, key generic.BalanceKey, forUpdate bool) (generic.Balance, error) {
	query := balanceSelect + ` WHERE employee_id = $1 AND resource_id = $2 AND year = $3`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBalance(q.QueryRow(ctx, query, string(key.EmployeeID), key.Resource.ResourceID(), key.Year))
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.Balance{}, generic.ErrBalanceNotFound
	}
	return b, mapError(err)
}

func listBalances(ctx context.Context, q querier, employeeID generic.EmployeeID, year int) ([]generic.Balance, error) {
	rows, err := q.Query(ctx, balanceSelect+` WHERE employee_id = $1 AND year = $2 ORDER BY resource_id`, string(employeeID), year)
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
	if b.Version == 0 {
		_, err := q.Exec(ctx, `
			INSERT INTO balances (employee_id, resource_id, year, total, used, unit, granted, version, updated_at)
			VALUES ($1, $2, $3, $4::text::numeric, $5::text::numeric, $6, $7, 1, $8)`,
			string(b.Key.EmployeeID), b.Key.Resource.ResourceID(), b.Key.Year,
			b.Total.Value.String(), b.Used.Value.String(), string(generic.UnitDays), b.Granted, b.UpdatedAt)
		if err != nil {
			return generic.Balance{}, mapError(err)
		}
		b.Version = 1
		return b, nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE balances SET total = $1::text::numeric, used = $2::text::numeric, granted = $3,
			version = version + 1, updated_at = $4
		WHERE employee_id = $5 AND resource_id = $6 AND year = $7 AND version = $8`,
		b.Total.Value.String(), b.Used.Value.String(), b.Granted, b.UpdatedAt,
		string(b.Key.EmployeeID), b.Key.Resource.ResourceID(), b.Key.Year, b.Version)
	if err != nil {
		return generic.Balance{}, mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return generic.Balance{}, generic.ErrConcurrentModification
	}
	b.Version++
	return b, nil
}

func scanBalance(row pgx.Row) (generic.Balance, error) {
	var (
		b                      generic.Balance
		employeeID, resourceID string
		total, used, unit      string
	)
	if err := row.Scan(&employeeID, &resourceID, &b.Key.Year, &total, &used, &unit, &b.Granted, &b.Version, &b.UpdatedAt); err != nil {
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
	return b, nil
}

func appendEntry(ctx context.Context, q querier, e generic.Transaction) error {
	var idem *string
	if e.IdempotencyKey != "" {
		idem = &e.IdempotencyKey
	}
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_entries (id, employee_id, resource_id, year, tx_type, delta_value, delta_unit,
			reference_id, reason, idempotency_key, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7, $8, $9, $10, $11, $12)`,
		string(e.ID), string(e.Key.EmployeeID), e.Key.Resource.ResourceID(), e.Key.Year, string(e.Type),
		e.Delta.Value.String(), string(e.Delta.Unit), e.ReferenceID, e.Reason, idem, e.CreatedBy, e.CreatedAt)
	if isUniqueViolation(err) {
		return generic.ErrDuplicateIdempotencyKey
	}
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", mapError(err))
	}
	return nil
}

func listEntries(ctx context.Context, q querier, key generic.BalanceKey) ([]generic.Transaction, error) {
	rows, err := q.Query(ctx, `
		SELECT id, tx_type, delta_value::text, delta_unit, reference_id, reason,
			COALESCE(idempotency_key, ''), created_by, created_at
		FROM ledger_entries
		WHERE employee_id = $1 AND resource_id = $2 AND year = $3
		ORDER BY seq`,
		string(key.EmployeeID), key.Resource.ResourceID(), key.Year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.Transaction
	for rows.Next() {
		var (
			e                       generic.Transaction
			id, txType, value, unit string
		)
		if err := rows.Scan(&id, &txType, &value, &unit, &e.ReferenceID, &e.Reason, &e.IdempotencyKey, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = generic.TransactionID(id)
		e.Key = key
		e.Type = generic.TransactionType(txType)
		if e.Delta, err = generic.ParseAmount(value, generic.Unit(unit)); err != nil {
			return nil, fmt.Errorf("ledger entry %s: %w", id, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func exists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var found bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`, idempotencyKey).Scan(&found)
	return found, err
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, s.pool, emp)
}

func (s *Store) GetEmployee(ctx context.Context, id generic.EmployeeID) (leave.Employee, error) {
	return getEmployee(ctx, s.pool, id)
}

func (s *Store) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, s.pool)
}

const employeeSelect = `SELECT id, name, email, hire_date, contract_type, basic_salary::text FROM employees`

func saveEmployee(ctx context.Context, q querier, emp leave.Employee) error {
	_, err := q.Exec(ctx, `
		INSERT INTO employees (id, name, email, hire_date, contract_type, basic_salary)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			hire_date = EXCLUDED.hire_date,
			contract_type = EXCLUDED.contract_type,
			basic_salary = EXCLUDED.basic_salary`,
		string(emp.ID), emp.Name, emp.Email, emp.HireDate.Time, string(emp.ContractType), emp.BasicSalary.String())
	return err
}

func getEmployee(ctx context.Context, q querier, id generic.EmployeeID) (leave.Employee, error) {
	emp, err := scanEmployee(q.QueryRow(ctx, employeeSelect+` WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Employee{}, leave.ErrEmployeeNotFound
	}
	return emp, err
}

func listEmployees(ctx context.Context, q querier) ([]leave.Employee, error) {
	rows, err := q.Query(ctx, employeeSelect+` ORDER BY id`)
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

func scanEmployee(row pgx.Row) (leave.Employee, error) {
	var (
		emp                  leave.Employee
		id, contract, salary string
		hired                time.Time
	)
	if err := row.Scan(&id, &emp.Name, &emp.Email, &hired, &contract, &salary); err != nil {
		return leave.Employee{}, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.HireDate = generic.DateOf(hired)
	emp.ContractType = leave.ContractType(contract)
	d, err := decimal.NewFromString(salary)
	if err != nil {
		return leave.Employee{}, fmt.Errorf("employee %s: bad salary: %w", id, err)
	}
	emp.BasicSalary = d
	return emp, nil
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r leave.Request) error {
	return saveRequest(ctx, s.pool, r)
}

func (s *Store) GetRequest(ctx context.Context, id leave.RequestID) (leave.Request, error) {
	return getRequest(ctx, s.pool, id, false)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, s.pool, f)
}

const requestSelect = `SELECT id, employee_id, category, start_date, end_date, requested_days, working_days,
	status, reason, submitted_by, decided_by, rejection_reason, created_at, updated_at FROM requests`

func saveRequest(ctx context.Context, q querier, r leave.Request) error {
	_, err := q.Exec(ctx, `
		INSERT INTO requests (id, employee_id, category, start_date, end_date, requested_days, working_days,
			status, reason, submitted_by, decided_by, rejection_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			decided_by = EXCLUDED.decided_by,
			rejection_reason = EXCLUDED.rejection_reason,
			updated_at = EXCLUDED.updated_at`,
		string(r.ID), string(r.EmployeeID), string(r.Category), r.Start.Time, r.End.Time, r.RequestedDays, r.WorkingDays,
		string(r.Status), r.Reason, r.SubmittedBy, r.DecidedBy, r.RejectionReason, r.CreatedAt, r.UpdatedAt)
	return err
}

// getRequest locks the row inside a transaction so two approvers of the
// same request serialize.
func getRequest(ctx context.Context, q querier, id leave.RequestID, forUpdate bool) (leave.Request, error) {
	query := requestSelect + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanRequest(q.QueryRow(ctx, query, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Request{}, leave.ErrRequestNotFound
	}
	return r, mapError(err)
}

func listRequests(ctx context.Context, q querier, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(string(f.EmployeeID)))
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if f.To != nil {
		where = append(where, "start_date <= "+arg(f.To.Time))
	}
	if f.From != nil {
		where = append(where, "end_date >= "+arg(f.From.Time))
	}

	query := requestSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := q.Query(ctx, query, args...)
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

func scanRequest(row pgx.Row) (leave.Request, error) {
	var (
		r                                leave.Request
		id, employeeID, category, status string
		start, end                       time.Time
	)
	if err := row.Scan(&id, &employeeID, &category, &start, &end, &r.RequestedDays, &r.WorkingDays,
		&status, &r.Reason, &r.SubmittedBy, &r.DecidedBy, &r.RejectionReason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return leave.Request{}, err
	}
	r.ID = leave.RequestID(id)
	r.EmployeeID = generic.EmployeeID(employeeID)
	r.Category = leave.Category(category)
	r.Status = leave.Status(status)
	r.Start = generic.DateOf(start)
	r.End = generic.DateOf(end)
	return r, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) Append(ctx context.Context, e generic.AuditEntry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode audit details: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, employee_id, details)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.Timestamp, e.ActorID, string(e.Action), string(e.EmployeeID), details)
	return err
}

func (s *Store) Query(ctx context.Context, f generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployeeID != nil {
		where = append(where, "employee_id = "+arg(string(*f.EmployeeID)))
	}
	if f.ActorID != nil {
		where = append(where, "actor_id = "+arg(*f.ActorID))
	}
	if len(f.Actions) > 0 {
		actions := make([]string, len(f.Actions))
		for i, a := range f.Actions {
			actions[i] = string(a)
		}
		where = append(where, "action = ANY("+arg(actions)+")")
	}
	if f.From != nil {
		where = append(where, "ts >= "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "ts <= "+arg(*f.To))
	}

	query := `SELECT id, ts, actor_id, action, employee_id, details FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []generic.AuditEntry
	for rows.Next() {
		var (
			e             generic.AuditEntry
			action, empID string
			details       []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ActorID, &action, &empID, &details); err != nil {
			return nil, err
		}
		e.Action = generic.AuditAction(action)
		e.EmployeeID = generic.EmployeeID(empID)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("audit %s: bad details: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// mapError turns lost races into generic.ErrConcurrentModification.
// A unique violation on balances means another writer inserted first.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation, codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", generic.ErrConcurrentModification, pgErr.Message)
	}
	return err
}
