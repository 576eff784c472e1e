package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

type serviceFixture struct {
	svc    *leave.RequestService
	store  *memory.Store
	ledger *leave.LeaveLedger
	emp    leave.Employee
}

// newServiceFixture sets today to Friday 2025-01-10 and initializes 2025
// for one permanent employee.
func newServiceFixture(t *testing.T, overrides map[leave.Category]generic.Amount) serviceFixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	policies := leave.DefaultPolicyTable()

	emp := permanentEmployee("emp-1")
	require.NoError(t, store.SaveEmployee(ctx, emp))

	ll := leave.NewLeaveLedger(store, policies)
	_, err := ll.Initialize(ctx, emp, 2025, overrides, "hr")
	require.NoError(t, err)

	svc := leave.NewRequestService(store, policies)
	svc.Clock = clockAt(2025, time.January, 10)
	svc.Audit = store
	return serviceFixture{svc: svc, store: store, ledger: ll, emp: emp}
}

func (f serviceFixture) submit(t *testing.T, c leave.Category, start, end generic.TimePoint) leave.Request {
	t.Helper()
	req, res, err := f.svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID: f.emp.ID, Category: c, Start: start, End: end, Actor: string(f.emp.ID),
	})
	require.NoError(t, err, res.Errors())
	return req
}

func (f serviceFixture) balance(t *testing.T, c leave.Category) generic.Balance {
	t.Helper()
	b, err := f.ledger.Get(context.Background(), f.emp.ID, c, 2025)
	require.NoError(t, err)
	return b
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_ValidRequest_StoredPending(t *testing.T) {
	f := newServiceFixture(t, nil)

	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))

	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, 5, req.RequestedDays)
	assert.Equal(t, 5, req.WorkingDays)

	stored, err := f.store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, stored.ID)
	assertDays(t, "0", f.balance(t, leave.Annual).Used)
}

func TestSubmit_Invalid_NotStored(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	_, res, err := f.svc.Submit(ctx, leave.SubmitInput{
		EmployeeID: f.emp.ID, Category: leave.Annual, Start: date(2025, 3, 1), End: date(2025, 3, 3),
	})

	var vf *leave.ValidationFailed
	require.ErrorAs(t, err, &vf)
	assert.True(t, res.Has(leave.RuleWeekendStart))

	all, err := f.store.ListRequests(ctx, leave.RequestFilter{EmployeeID: f.emp.ID})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSubmit_UnknownEmployee(t *testing.T) {
	f := newServiceFixture(t, nil)

	_, _, err := f.svc.Submit(context.Background(), leave.SubmitInput{
		EmployeeID: "ghost", Category: leave.Annual, Start: date(2025, 2, 3), End: date(2025, 2, 3),
	})
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	assert.True(t, leave.IsNotFound(err))
}

// =============================================================================
// APPROVE
// =============================================================================

func TestApprove_DebitsLedgerAndAudits(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))

	approved, err := f.svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, approved.Status)
	assert.Equal(t, "mgr-1", approved.DecidedBy)

	b := f.balance(t, leave.Annual)
	assertDays(t, "5", b.Used)
	assertDays(t, "21", b.Remaining())

	entries, err := f.store.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRequestApproved}})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mgr-1", entries[0].ActorID)
	assert.Equal(t, string(req.ID), entries[0].Details["request_id"])
}

func TestApprove_Twice_InvalidTransition(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))

	_, err := f.svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, req.ID, "mgr-1")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition)
	assertDays(t, "5", f.balance(t, leave.Annual).Used)
}

func TestApprove_InsufficientBalance_RollsBack(t *testing.T) {
	// GIVEN: 5 annual days and two pending 3-day requests
	f := newServiceFixture(t, map[leave.Category]generic.Amount{leave.Annual: days(5)})
	ctx := context.Background()
	first := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 5))
	second := f.submit(t, leave.Annual, date(2025, 3, 3), date(2025, 3, 5))

	// WHEN: Both are approved
	_, err := f.svc.Approve(ctx, first.ID, "mgr-1")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, second.ID, "mgr-1")

	// THEN: The second fails and leaves no partial state
	var insufficient *generic.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)

	stored, err := f.store.GetRequest(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
	assertDays(t, "3", f.balance(t, leave.Annual).Used)
}

func TestApprove_OverlapWithApproved_Conflict(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	first := f.submit(t, leave.Annual, date(2025, 3, 3), date(2025, 3, 7))
	second := f.submit(t, leave.Annual, date(2025, 3, 6), date(2025, 3, 10))

	_, err := f.svc.Approve(ctx, first.ID, "mgr-1")
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, second.ID, "mgr-1")

	var vf *leave.ValidationFailed
	require.ErrorAs(t, err, &vf)
	assert.Contains(t, vf.Reasons[0], string(first.ID))
	assertDays(t, "5", f.balance(t, leave.Annual).Used)
}

// =============================================================================
// REJECT / CANCEL
// =============================================================================

func TestReject_Approved_CreditsBack(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))
	_, err := f.svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, req.ID, "mgr-2", "coverage")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, rejected.Status)
	assert.Equal(t, "coverage", rejected.RejectionReason)
	assertDays(t, "0", f.balance(t, leave.Annual).Used)

	_, err = f.svc.Cancel(ctx, req.ID, "emp-1")
	assert.ErrorIs(t, err, leave.ErrInvalidTransition, "rejected is terminal")
}

func TestCancel_Pending(t *testing.T) {
	f := newServiceFixture(t, nil)
	req := f.submit(t, leave.Sick, date(2025, 1, 13), date(2025, 1, 14))

	cancelled, err := f.svc.Cancel(context.Background(), req.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, cancelled.Status)
	assertDays(t, "0", f.balance(t, leave.Sick).Used)
}

func TestCancel_ApprovedBeforeStart_CreditsBack(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Sick, date(2025, 1, 13), date(2025, 1, 14))
	_, err := f.svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assertDays(t, "2", f.balance(t, leave.Sick).Used)

	_, err = f.svc.Cancel(ctx, req.ID, "emp-1")
	require.NoError(t, err)
	assertDays(t, "0", f.balance(t, leave.Sick).Used)
}

func TestCancel_ApprovedAlreadyStarted_Rejected(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Sick, date(2025, 1, 10), date(2025, 1, 14))
	_, err := f.svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)

	// today == start date
	_, err = f.svc.Cancel(ctx, req.ID, "emp-1")
	var te *leave.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, leave.StatusApproved, te.From)
	assertDays(t, "5", f.balance(t, leave.Sick).Used)
}

func TestCheck_DryRunDoesNotWrite(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()

	res, err := f.svc.Check(ctx, leave.Proposal{
		EmployeeID: f.emp.ID, Category: leave.Annual, Start: date(2025, 2, 3), End: date(2025, 2, 4),
	}, "")
	require.NoError(t, err)
	assert.True(t, res.IsValid, res.Errors())

	all, err := f.store.ListRequests(ctx, leave.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// =============================================================================
// EMPLOYEE LOCK
// =============================================================================

type records interface {
	generic.Store
	leave.EmployeeStore
	leave.RequestStore
}

// lockingStore hands out transaction views that implement
// leave.EmployeeLocker, recording each lock.
type lockingStore struct {
	*memory.Store
	lockErr error
	locked  []generic.EmployeeID
}

type lockingView struct {
	records
	parent *lockingStore
}

func (v lockingView) LockEmployee(_ context.Context, id generic.EmployeeID) error {
	v.parent.locked = append(v.parent.locked, id)
	return v.parent.lockErr
}

func (s *lockingStore) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	return s.Store.WithTx(ctx, func(tx generic.Store) error {
		return fn(lockingView{records: tx.(records), parent: s})
	})
}

func TestApprove_LocksEmployeeBeforeConflictCheck(t *testing.T) {
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))

	store := &lockingStore{Store: f.store}
	svc := leave.NewRequestService(store, leave.DefaultPolicyTable())
	svc.Clock = f.svc.Clock

	_, err := svc.Approve(ctx, req.ID, "mgr-1")
	require.NoError(t, err)
	assert.Equal(t, []generic.EmployeeID{f.emp.ID}, store.locked)
}

func TestApprove_LockFailure_ChangesNothing(t *testing.T) {
	// GIVEN: A store whose employee lock fails
	f := newServiceFixture(t, nil)
	ctx := context.Background()
	req := f.submit(t, leave.Annual, date(2025, 2, 3), date(2025, 2, 7))

	store := &lockingStore{Store: f.store, lockErr: leave.ErrEmployeeNotFound}
	svc := leave.NewRequestService(store, leave.DefaultPolicyTable())
	svc.Clock = f.svc.Clock

	// WHEN: The request is approved
	_, err := svc.Approve(ctx, req.ID, "mgr-1")

	// THEN: Nothing is debited and the request stays pending
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
	assertDays(t, "0", f.balance(t, leave.Annual).Used)
	got, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, got.Status)
}
