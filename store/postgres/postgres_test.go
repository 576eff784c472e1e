package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/postgres"
)

// newStore connects to TEST_DATABASE_URL. Each test gets a fresh set of
// tables, so point it at a throwaway database.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := postgres.New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, store.Truncate(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

func annualKey() generic.BalanceKey {
	return generic.BalanceKey{EmployeeID: "emp-1", Resource: leave.Annual, Year: 2025}
}

func TestSaveBalance_VersionCheck(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	b := generic.ZeroBalance(annualKey())
	b.Total = generic.Days(21)
	b.UpdatedAt = time.Now()
	saved, err := store.SaveBalance(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	_, err = store.SaveBalance(ctx, b)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	saved.Used = generic.Days(2.5)
	_, err = store.SaveBalance(ctx, saved)
	require.NoError(t, err)
	_, err = store.SaveBalance(ctx, saved)
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	loaded, err := store.LoadBalance(ctx, annualKey())
	require.NoError(t, err)
	assert.True(t, loaded.Used.Value.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, int64(2), loaded.Version)
}

func TestLoadBalance_Missing(t *testing.T) {
	store := newStore(t)
	_, err := store.LoadBalance(context.Background(), annualKey())
	assert.ErrorIs(t, err, generic.ErrBalanceNotFound)
}

func TestLedger_ConcurrentDebits(t *testing.T) {
	// GIVEN: 10 annual days
	store := newStore(t)
	ctx := context.Background()
	ll := leave.NewLeaveLedger(store, leave.DefaultPolicyTable())
	_, err := ll.Initialize(ctx, leave.Employee{
		ID: "emp-1", HireDate: generic.NewTimePoint(2024, time.January, 1), ContractType: leave.Permanent,
	}, 2025, map[leave.Category]generic.Amount{leave.Annual: generic.Days(10)}, "hr")
	require.NoError(t, err)

	// WHEN: 15 one-day debits race
	var g errgroup.Group
	results := make(chan error, 15)
	for i := 0; i < 15; i++ {
		g.Go(func() error {
			_, err := ll.Debit(ctx, "emp-1", leave.Annual, 2025, generic.Days(1), generic.Reference{ID: "race"})
			results <- err
			return nil
		})
	}
	require.NoError(t, g.Wait())
	close(results)

	// THEN: Exactly 10 succeed and nothing goes negative
	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 10, ok)

	b, err := ll.Get(ctx, "emp-1", leave.Annual, 2025)
	require.NoError(t, err)
	assert.True(t, b.Remaining().IsZero())
}

func TestRequests_RoundTripAndFilter(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	req := leave.Request{
		ID: "r-1", EmployeeID: "emp-1", Category: leave.Sick,
		Start: generic.NewTimePoint(2025, time.March, 3), End: generic.NewTimePoint(2025, time.March, 5),
		RequestedDays: 3, WorkingDays: 3, Status: leave.StatusApproved, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.SaveRequest(ctx, req))

	got, err := store.GetRequest(ctx, "r-1")
	require.NoError(t, err)
	assert.True(t, req.Start.Equal(got.Start))
	assert.Equal(t, leave.StatusApproved, got.Status)

	from := generic.NewTimePoint(2025, time.March, 5)
	to := generic.NewTimePoint(2025, time.March, 9)
	list, err := store.ListRequests(ctx, leave.RequestFilter{
		EmployeeID: "emp-1", Statuses: []leave.Status{leave.StatusApproved}, From: &from, To: &to,
	})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = store.GetRequest(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)
}

func TestApprove_ConcurrentOverlaps_OnlyOneWins(t *testing.T) {
	// GIVEN: Two pending, overlapping requests in different categories
	store := newStore(t)
	ctx := context.Background()
	policies := leave.DefaultPolicyTable()
	emp := leave.Employee{
		ID: "emp-1", Name: "Ada", HireDate: generic.NewTimePoint(2015, time.January, 1),
		ContractType: leave.Permanent, BasicSalary: decimal.NewFromInt(3000),
	}
	require.NoError(t, store.SaveEmployee(ctx, emp))
	_, err := leave.NewLeaveLedger(store, policies).Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)

	svc := leave.NewRequestService(store, policies)
	svc.Clock = generic.FixedClock{At: time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC)}
	submit := func(c leave.Category, start, end generic.TimePoint) leave.RequestID {
		req, res, err := svc.Submit(ctx, leave.SubmitInput{EmployeeID: emp.ID, Category: c, Start: start, End: end})
		require.NoError(t, err, res.Errors())
		return req.ID
	}
	ids := []leave.RequestID{
		submit(leave.Annual, generic.NewTimePoint(2025, time.March, 3), generic.NewTimePoint(2025, time.March, 7)),
		submit(leave.Sick, generic.NewTimePoint(2025, time.March, 5), generic.NewTimePoint(2025, time.March, 6)),
	}

	// WHEN: Both are approved at once
	errs := make([]error, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			_, errs[i] = svc.Approve(ctx, id, "mgr-1")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// THEN: Exactly one is approved; the other reports the conflict
	approved := 0
	for _, err := range errs {
		if err == nil {
			approved++
			continue
		}
		assert.ErrorIs(t, err, leave.ErrValidationFailed)
	}
	assert.Equal(t, 1, approved)

	list, err := store.ListRequests(ctx, leave.RequestFilter{EmployeeID: emp.ID, Statuses: []leave.Status{leave.StatusApproved}})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
