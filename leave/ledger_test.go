package leave_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func permanentEmployee(id string) leave.Employee {
	return leave.Employee{
		ID:           generic.EmployeeID(id),
		Name:         "Ada Obi",
		Email:        id + "@example.com",
		HireDate:     date(2015, 1, 1),
		ContractType: leave.Permanent,
		BasicSalary:  decimal.NewFromInt(3000),
	}
}

func newMemoryLedger(t *testing.T) (*leave.LeaveLedger, *memory.Store) {
	t.Helper()
	store := memory.New()
	return leave.NewLeaveLedger(store, leave.DefaultPolicyTable()), store
}

func newSQLiteLedger(t *testing.T) (*leave.LeaveLedger, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return leave.NewLeaveLedger(store, leave.DefaultPolicyTable()), store
}

func assertInvariant(t *testing.T, b generic.Balance) {
	t.Helper()
	assert.True(t, b.Remaining().Equal(b.Total.Sub(b.Used)))
	assert.False(t, b.Used.IsNegative())
}

// =============================================================================
// INITIALIZE
// =============================================================================

func TestInitialize_CreatesEveryCategoryFromEntitlement(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")

	created, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)
	assert.Len(t, created, len(leave.AllCategories()))

	annual, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)
	assertDays(t, "26", annual.Total)
	assertDays(t, "0", annual.Used)
	assert.True(t, annual.Granted)

	sick, err := ll.Get(ctx, emp.ID, leave.Sick, 2025)
	require.NoError(t, err)
	assertDays(t, "14", sick.Total)
}

func TestInitialize_Twice_DoesNotDoubleGrant(t *testing.T) {
	// GIVEN: An initialized year with 3 annual days used
	// WHEN: Initialize runs again with a larger override
	// THEN: AlreadyInitializedError lists every category and nothing changes
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")

	_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)
	_, err = ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(3), generic.Reference{ID: "req-1"})
	require.NoError(t, err)

	created, err := ll.Initialize(ctx, emp, 2025, map[leave.Category]generic.Amount{leave.Annual: days(40)}, "hr")
	var already *generic.AlreadyInitializedError
	require.ErrorAs(t, err, &already)
	assert.Empty(t, created)
	assert.Len(t, already.Resources, len(leave.AllCategories()))

	annual, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)
	assertDays(t, "26", annual.Total)
	assertDays(t, "3", annual.Used)
	assertDays(t, "23", annual.Remaining())
}

func TestInitialize_ExemptRowCreatedByDebit_IsGrantedLater(t *testing.T) {
	// GIVEN: Unpaid leave debited before the year was initialized
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")

	b, err := ll.Debit(ctx, emp.ID, leave.Unpaid, 2025, days(4), generic.Reference{ID: "req-1"})
	require.NoError(t, err)
	assert.False(t, b.Granted)
	assertDays(t, "-4", b.Remaining())

	// WHEN: The year is initialized
	_, err = ll.Initialize(ctx, emp, 2025, nil, "hr")

	// THEN: No conflict; the row is granted and keeps its used days
	require.NoError(t, err)
	unpaid, err := ll.Get(ctx, emp.ID, leave.Unpaid, 2025)
	require.NoError(t, err)
	assert.True(t, unpaid.Granted)
	assertDays(t, "30", unpaid.Total)
	assertDays(t, "4", unpaid.Used)
	assertDays(t, "26", unpaid.Remaining())
}

func TestInitialize_Overrides(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")

	_, err := ll.Initialize(ctx, emp, 2025, map[leave.Category]generic.Amount{leave.Study: days(2.5)}, "hr")
	require.NoError(t, err)

	study, err := ll.Get(ctx, emp.ID, leave.Study, 2025)
	require.NoError(t, err)
	assertDays(t, "2.5", study.Total)
}

// =============================================================================
// DEBIT / CREDIT
// =============================================================================

func TestGet_Uninitialized_ReturnsZeroedDefault(t *testing.T) {
	ll, _ := newMemoryLedger(t)

	b, err := ll.Get(context.Background(), "nobody", leave.Annual, 2025)
	require.NoError(t, err)
	assert.False(t, b.IsStored())
	assertDays(t, "0", b.Total)
	assertDays(t, "0", b.Remaining())
}

func TestDebit_Insufficient_ChangesNothing(t *testing.T) {
	for name, ll := range map[string]*leave.LeaveLedger{
		"memory": func() *leave.LeaveLedger { l, _ := newMemoryLedger(t); return l }(),
		"sqlite": func() *leave.LeaveLedger { l, _ := newSQLiteLedger(t); return l }(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			emp := permanentEmployee("emp-1")
			_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
			require.NoError(t, err)

			_, err = ll.Debit(ctx, emp.ID, leave.Compassionate, 2025, days(6), generic.Reference{ID: "req-1"})

			var insufficient *generic.InsufficientBalanceError
			require.ErrorAs(t, err, &insufficient)
			assertDays(t, "5", insufficient.Available)
			assertDays(t, "6", insufficient.Requested)

			b, err := ll.Get(ctx, emp.ID, leave.Compassionate, 2025)
			require.NoError(t, err)
			assertDays(t, "0", b.Used)
			assertInvariant(t, b)

			entries, err := ll.Entries(ctx, emp.ID, leave.Compassionate, 2025)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "only the grant")
		})
	}
}

func TestDebitCredit_RoundTrip_RestoresBalance(t *testing.T) {
	ll, _ := newSQLiteLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")
	_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)

	before, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)

	_, err = ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(2.5), generic.Reference{ID: "req-1"})
	require.NoError(t, err)
	after, err := ll.Credit(ctx, emp.ID, leave.Annual, 2025, days(2.5), generic.Reference{ID: "req-1"})
	require.NoError(t, err)

	assert.True(t, before.Total.Equal(after.Total))
	assert.True(t, before.Used.Equal(after.Used))
	assert.True(t, before.Remaining().Equal(after.Remaining()))
	assertInvariant(t, after)

	entries, err := ll.Entries(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, generic.TxGrant, entries[0].Type)
	assert.Equal(t, generic.TxConsumption, entries[1].Type)
	assert.Equal(t, generic.TxReversal, entries[2].Type)
}

func TestCredit_MoreThanUsed_OverCreditError(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")
	_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)
	_, err = ll.Debit(ctx, emp.ID, leave.Sick, 2025, days(2), generic.Reference{})
	require.NoError(t, err)

	_, err = ll.Credit(ctx, emp.ID, leave.Sick, 2025, days(3), generic.Reference{})
	assert.ErrorIs(t, err, generic.ErrOverCredit)

	b, err := ll.Get(ctx, emp.ID, leave.Sick, 2025)
	require.NoError(t, err)
	assertDays(t, "2", b.Used)
}

func TestDebit_NonPositiveAmount(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	_, err := ll.Debit(context.Background(), "emp-1", leave.Annual, 2025, days(0), generic.Reference{})
	assert.ErrorIs(t, err, generic.ErrInvalidAmount)
}

func TestDebit_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	ll, _ := newSQLiteLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")
	_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)

	ref := generic.Reference{ID: "req-1", IdempotencyKey: "request:req-1:approve"}
	_, err = ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(1), ref)
	require.NoError(t, err)
	_, err = ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(1), ref)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	b, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)
	assertDays(t, "1", b.Used)
}

func TestDebit_ExemptCategory_MayExceedTotal(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")
	_, err := ll.Initialize(ctx, emp, 2025, nil, "hr")
	require.NoError(t, err)

	b, err := ll.Debit(ctx, emp.ID, leave.Administrative, 2025, days(9), generic.Reference{})
	require.NoError(t, err)
	assertDays(t, "-4", b.Remaining())
	assertInvariant(t, b)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestDebit_ConcurrentRace_NeverOverdraws(t *testing.T) {
	// GIVEN: 10 annual days
	// WHEN: 20 goroutines each debit 1 day concurrently
	// THEN: Exactly 10 succeed, the rest fail with InsufficientBalanceError
	for name, ll := range map[string]*leave.LeaveLedger{
		"memory": func() *leave.LeaveLedger { l, _ := newMemoryLedger(t); return l }(),
		"sqlite": func() *leave.LeaveLedger { l, _ := newSQLiteLedger(t); return l }(),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			emp := permanentEmployee("emp-1")
			_, err := ll.Initialize(ctx, emp, 2025, map[leave.Category]generic.Amount{leave.Annual: days(10)}, "hr")
			require.NoError(t, err)

			var ok, insufficient atomic.Int32
			var g errgroup.Group
			for i := 0; i < 20; i++ {
				g.Go(func() error {
					_, err := ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(1), generic.Reference{})
					switch {
					case err == nil:
						ok.Add(1)
					case errors.Is(err, generic.ErrInsufficientBalance):
						insufficient.Add(1)
					default:
						return err
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())

			assert.Equal(t, int32(10), ok.Load())
			assert.Equal(t, int32(10), insufficient.Load())

			b, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
			require.NoError(t, err)
			assertDays(t, "10", b.Used)
			assertDays(t, "0", b.Remaining())
		})
	}
}

func TestDebit_ConcurrentUnevenSplit_NeverExceedsTotal(t *testing.T) {
	ll, _ := newMemoryLedger(t)
	ctx := context.Background()
	emp := permanentEmployee("emp-1")
	_, err := ll.Initialize(ctx, emp, 2025, map[leave.Category]generic.Amount{leave.Annual: days(10)}, "hr")
	require.NoError(t, err)

	// 7 x 3 days against 10: at most 3 can succeed
	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 7; i++ {
		g.Go(func() error {
			if _, err := ll.Debit(ctx, emp.ID, leave.Annual, 2025, days(3), generic.Reference{}); err == nil {
				ok.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(3), ok.Load())
	b, err := ll.Get(ctx, emp.ID, leave.Annual, 2025)
	require.NoError(t, err)
	assertDays(t, "9", b.Used)
	assertInvariant(t, b)
}
