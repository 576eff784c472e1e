/*
request.go - Leave request model and lifecycle

STATUS MACHINE:
  pending  -> approved   (debit, inside one store transaction)
  pending  -> rejected
  pending  -> cancelled
  approved -> rejected   (credit reversal)
  approved -> cancelled  (credit reversal, only before the start date)

  rejected and cancelled are terminal.

TRANSACTIONS:
  Approve, Reject and Cancel load the request, mutate the ledger and save the
  new status inside Store.WithTx. If the debit fails nothing is written.
  Audit entries are recorded after commit; an audit failure is logged and
  does not undo the action.

BALANCE YEAR:
  A request is charged to the balance of its start date's year.
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/generic"
)

type RequestID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool { return s == StatusRejected || s == StatusCancelled }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type Request struct {
	ID            RequestID
	EmployeeID    generic.EmployeeID
	Category      Category
	Start         generic.TimePoint
	End           generic.TimePoint
	RequestedDays int // inclusive calendar days
	WorkingDays   int // business days, display only
	Status        Status
	Reason        string

	SubmittedBy     string
	DecidedBy       string
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (r Request) Period() generic.Period { return generic.Period{Start: r.Start, End: r.End} }

func (r Request) BalanceYear() int { return r.Start.Year() }

func (r Request) Proposal() Proposal {
	return Proposal{EmployeeID: r.EmployeeID, Category: r.Category, Start: r.Start, End: r.End}
}

// CanCancel reports whether the request may still be cancelled on today.
func (r Request) CanCancel(today generic.TimePoint) bool {
	switch r.Status {
	case StatusPending:
		return true
	case StatusApproved:
		return r.Start.After(today)
	default:
		return false
	}
}

// =============================================================================
// REQUEST SERVICE
// =============================================================================

type RequestService struct {
	Store    Store
	Policies *PolicyTable
	Clock    generic.Clock
	Holidays generic.HolidayCalendar
	Audit    generic.AuditLog // optional
	Logger   *slog.Logger
}

func NewRequestService(store Store, policies *PolicyTable) *RequestService {
	return &RequestService{
		Store:    store,
		Policies: policies,
		Clock:    generic.SystemClock{},
		Holidays: generic.NoHolidays{},
	}
}

type SubmitInput struct {
	EmployeeID generic.EmployeeID
	Category   Category
	Start      generic.TimePoint
	End        generic.TimePoint
	Reason     string
	Actor      string
}

func (s *RequestService) validator() Validator {
	return Validator{Policies: s.Policies, Clock: s.Clock, Holidays: s.Holidays}
}

func (s *RequestService) ledger(store generic.Store) *LeaveLedger {
	inner := generic.NewLedger(store)
	inner.Clock = s.Clock
	return NewLeaveLedgerFrom(inner, s.Policies)
}

func (s *RequestService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Check runs the validator against current state without writing anything.
func (s *RequestService) Check(ctx context.Context, p Proposal, excludeID RequestID) (ValidationResult, error) {
	return s.check(ctx, s.Store, p, excludeID)
}

func (s *RequestService) check(ctx context.Context, store txRecords, p Proposal, excludeID RequestID) (ValidationResult, error) {
	if _, err := store.GetEmployee(ctx, p.EmployeeID); err != nil {
		return ValidationResult{}, err
	}
	if _, ok := s.Policies.Entry(p.Category); !ok {
		return ValidationResult{}, fmt.Errorf("%w: %q", ErrUnknownCategory, p.Category)
	}
	balance, err := s.ledger(store).Get(ctx, p.EmployeeID, p.Category, p.Start.Year())
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load balance: %w", err)
	}
	conflicts, err := ConflictDetector{Requests: store}.FindOverlaps(ctx, p.EmployeeID, p.Start, p.End, excludeID)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("find overlaps: %w", err)
	}
	return s.validator().Validate(p, balance, conflicts), nil
}

// Submit validates and stores a pending request. An invalid request is not
// stored; the result is returned together with *ValidationFailed.
func (s *RequestService) Submit(ctx context.Context, in SubmitInput) (Request, ValidationResult, error) {
	p := Proposal{EmployeeID: in.EmployeeID, Category: in.Category, Start: in.Start, End: in.End}
	res, err := s.Check(ctx, p, "")
	if err != nil {
		return Request{}, res, err
	}
	if err := res.Err(); err != nil {
		return Request{}, res, err
	}

	now := s.Clock.Now()
	req := Request{
		ID:            RequestID(uuid.NewString()),
		EmployeeID:    in.EmployeeID,
		Category:      in.Category,
		Start:         in.Start,
		End:           in.End,
		RequestedDays: res.RequestedDays,
		WorkingDays:   res.WorkingDays,
		Status:        StatusPending,
		Reason:        in.Reason,
		SubmittedBy:   in.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.SaveRequest(ctx, req); err != nil {
		return Request{}, res, fmt.Errorf("save request: %w", err)
	}
	s.audit(ctx, generic.AuditRequestSubmitted, in.Actor, req, nil)
	return req, res, nil
}

// Approve re-checks conflicts and balance, debits the ledger and marks the
// request approved, all in one transaction.
func (s *RequestService) Approve(ctx context.Context, id RequestID, approver string) (Request, error) {
	var out Request
	err := s.withRetry(ctx, func(tx txRecords) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &TransitionError{RequestID: id, From: req.Status, To: StatusApproved}
		}
		// Overlapping approvals for one employee must see each other.
		if err := lockEmployee(ctx, tx, req.EmployeeID); err != nil {
			return fmt.Errorf("lock employee: %w", err)
		}

		conflicts, err := ConflictDetector{Requests: tx}.FindOverlaps(ctx, req.EmployeeID, req.Start, req.End, req.ID)
		if err != nil {
			return fmt.Errorf("find overlaps: %w", err)
		}
		if len(conflicts) > 0 {
			res := ValidationResult{}
			for _, c := range conflicts {
				res.Violations = append(res.Violations, Violation{
					Rule:    RuleConflict,
					Message: fmt.Sprintf("Conflicts with approved %s leave %s to %s (request %s)", c.Category, c.Start, c.End, c.ID),
				})
			}
			return res.Err()
		}

		days := generic.NewAmountFromInt(req.RequestedDays, generic.UnitDays)
		ref := generic.Reference{
			ID:             string(req.ID),
			Reason:         "approved leave",
			Actor:          approver,
			IdempotencyKey: fmt.Sprintf("request:%s:approve", req.ID),
		}
		if _, err := s.ledger(tx).Debit(ctx, req.EmployeeID, req.Category, req.BalanceYear(), days, ref); err != nil {
			return err
		}

		req.Status = StatusApproved
		req.DecidedBy = approver
		req.UpdatedAt = s.Clock.Now()
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	s.audit(ctx, generic.AuditRequestApproved, approver, out, nil)
	return out, nil
}

// Reject moves a pending or approved request to rejected. Rejecting an
// approved request credits its days back.
func (s *RequestService) Reject(ctx context.Context, id RequestID, actor, reason string) (Request, error) {
	out, err := s.close(ctx, id, actor, StatusRejected, func(req Request) bool {
		return req.Status == StatusPending || req.Status == StatusApproved
	}, func(req *Request) { req.RejectionReason = reason })
	if err != nil {
		return Request{}, err
	}
	s.audit(ctx, generic.AuditRequestRejected, actor, out, map[string]any{"reason": reason})
	return out, nil
}

// Cancel withdraws a pending request, or an approved one that has not
// started yet (credit reversal).
func (s *RequestService) Cancel(ctx context.Context, id RequestID, actor string) (Request, error) {
	today := generic.Today(s.Clock)
	out, err := s.close(ctx, id, actor, StatusCancelled, func(req Request) bool {
		return req.CanCancel(today)
	}, nil)
	if err != nil {
		return Request{}, err
	}
	s.audit(ctx, generic.AuditRequestCancelled, actor, out, nil)
	return out, nil
}

func (s *RequestService) close(ctx context.Context, id RequestID, actor string, to Status, allowed func(Request) bool, mutate func(*Request)) (Request, error) {
	var out Request
	err := s.withRetry(ctx, func(tx txRecords) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if !allowed(req) {
			return &TransitionError{RequestID: id, From: req.Status, To: to}
		}

		if req.Status == StatusApproved {
			days := generic.NewAmountFromInt(req.RequestedDays, generic.UnitDays)
			ref := generic.Reference{
				ID:             string(req.ID),
				Reason:         fmt.Sprintf("request %s", to),
				Actor:          actor,
				IdempotencyKey: fmt.Sprintf("request:%s:reverse", req.ID),
			}
			if _, err := s.ledger(tx).Credit(ctx, req.EmployeeID, req.Category, req.BalanceYear(), days, ref); err != nil {
				return err
			}
		}

		req.Status = to
		req.DecidedBy = actor
		req.UpdatedAt = s.Clock.Now()
		if mutate != nil {
			mutate(&req)
		}
		if err := tx.SaveRequest(ctx, req); err != nil {
			return err
		}
		out = req
		return nil
	})
	return out, err
}

const maxTxAttempts = 3

// withRetry runs fn in a store transaction, retrying on version conflicts.
func (s *RequestService) withRetry(ctx context.Context, fn func(txRecords) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.Store.WithTx(ctx, func(st generic.Store) error {
			tx, err := asRecords(st)
			if err != nil {
				return err
			}
			return fn(tx)
		})
		if !generic.IsRetryable(err) {
			return err
		}
		s.logger().WarnContext(ctx, "retrying leave transaction", "attempt", attempt+1, "error", err)
	}
	return err
}

func (s *RequestService) audit(ctx context.Context, action generic.AuditAction, actor string, req Request, extra map[string]any) {
	if s.Audit == nil {
		return
	}
	details := map[string]any{
		"request_id": string(req.ID),
		"category":   string(req.Category),
		"start":      req.Start.String(),
		"end":        req.End.String(),
		"days":       req.RequestedDays,
		"status":     string(req.Status),
	}
	for k, v := range extra {
		details[k] = v
	}
	err := s.Audit.Append(ctx, generic.AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  s.Clock.Now(),
		ActorID:    actor,
		Action:     action,
		EmployeeID: req.EmployeeID,
		Details:    details,
	})
	if err != nil {
		s.logger().ErrorContext(ctx, "audit append failed",
			"action", action, "request_id", req.ID, "error", err)
	}
}

// IsNotFound reports a missing request, employee or balance.
func IsNotFound(err error) bool {
	return errors.Is(err, generic.ErrNotFound)
}
