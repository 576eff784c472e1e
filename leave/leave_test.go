package leave_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func clockAt(y int, m time.Month, d int) generic.FixedClock {
	return generic.FixedClock{At: time.Date(y, m, d, 9, 0, 0, 0, time.UTC)}
}

func days(n float64) generic.Amount { return generic.Days(n) }

func assertDays(t *testing.T, want string, got generic.Amount) {
	t.Helper()
	assert.Truef(t, got.Value.Equal(decimal.RequireFromString(want)), "want %s days, got %s", want, got.Value)
}

func balanceWithRemaining(n float64) generic.Balance {
	return generic.Balance{Total: days(n), Used: days(0), Granted: true}
}

// =============================================================================
// CATEGORY & POLICY TABLE
// =============================================================================

func TestCategory_Parse(t *testing.T) {
	c, err := leave.ParseCategory(" Public_Holiday ")
	require.NoError(t, err)
	assert.Equal(t, leave.PublicHoliday, c)

	_, err = leave.ParseCategory("vacation")
	assert.ErrorIs(t, err, leave.ErrUnknownCategory)
}

func TestCategory_BalanceCheckExemptions(t *testing.T) {
	for _, c := range leave.AllCategories() {
		exempt := c == leave.Unpaid || c == leave.Administrative
		assert.Equal(t, !exempt, c.RequiresBalanceCheck(), c)
	}
}

func TestCategory_RegisteredAsResource(t *testing.T) {
	assert.Equal(t, leave.Annual, generic.LookupResource("annual"))
	assert.Equal(t, leave.Religious, generic.GetOrCreateResource("religious"))
}

func TestDefaultPolicyTable_CoversEveryCategory(t *testing.T) {
	table := leave.DefaultPolicyTable()
	assert.Len(t, table.Entries(), len(leave.AllCategories()))

	annual, ok := table.Entry(leave.Annual)
	require.True(t, ok)
	assert.Equal(t, 21, annual.DefaultAnnualDays)
	assert.Equal(t, 14, annual.MinAdvanceNoticeDays)
	assert.True(t, annual.PayableOnExit)
	assert.True(t, annual.AppliesWeekendRestriction)

	study, _ := table.Entry(leave.Study)
	assert.Equal(t, 30, study.MinAdvanceNoticeDays)

	sick, _ := table.Entry(leave.Sick)
	assert.False(t, sick.AppliesWeekendRestriction)
	assert.Equal(t, 0, sick.MinAdvanceNoticeDays)

	assert.Equal(t, []leave.Category{leave.Annual}, table.PayableCategories())
}

func TestNewPolicyTable_RejectsMissingCategory(t *testing.T) {
	_, err := leave.NewPolicyTable("partial", []leave.PolicyEntry{
		{Category: leave.Annual, DefaultAnnualDays: 21},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing entry")
}

// =============================================================================
// ENTITLEMENT
// =============================================================================

func TestEntitlement(t *testing.T) {
	table := leave.DefaultPolicyTable()

	tests := []struct {
		name     string
		category leave.Category
		contract leave.ContractType
		hired    generic.TimePoint
		year     int
		want     string
	}{
		{"permanent 10 years annual", leave.Annual, leave.Permanent, date(2015, 1, 1), 2025, "26"},
		{"permanent 5 years annual", leave.Annual, leave.Permanent, date(2020, 6, 1), 2025, "24"},
		{"permanent 2 years annual", leave.Annual, leave.Permanent, date(2023, 12, 31), 2025, "22"},
		{"permanent 1 year annual", leave.Annual, leave.Permanent, date(2024, 1, 1), 2025, "21"},
		{"permanent sick gets no tenure bonus", leave.Sick, leave.Permanent, date(2010, 1, 1), 2025, "14"},
		{"probation halves", leave.Annual, leave.Probation, date(2010, 1, 1), 2025, "10.5"},
		{"temporary 80 percent", leave.Annual, leave.Temporary, date(2010, 1, 1), 2025, "16.8"},
		{"contract 80 percent", leave.Maternity, leave.Contract, date(2024, 1, 1), 2025, "72"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := leave.Entitlement(table, tt.category, tt.contract, tt.hired, tt.year)
			assertDays(t, tt.want, got)
		})
	}
}

func TestTenureBonus_NoStacking(t *testing.T) {
	assert.Equal(t, 0, leave.TenureBonus(1))
	assert.Equal(t, 1, leave.TenureBonus(2))
	assert.Equal(t, 3, leave.TenureBonus(7))
	assert.Equal(t, 5, leave.TenureBonus(30))
}

// =============================================================================
// VALIDATOR
// =============================================================================

func newValidator(today generic.Clock) leave.Validator {
	return leave.Validator{Policies: leave.DefaultPolicyTable(), Clock: today}
}

func TestValidate_WeekendStart_RejectedRegardlessOfBalance(t *testing.T) {
	// GIVEN: Plenty of annual balance
	// WHEN: Annual leave starts on Saturday 2025-03-01
	// THEN: Invalid with a weekend-rule violation
	v := newValidator(clockAt(2025, time.January, 10))

	res := v.Validate(leave.Proposal{
		Category: leave.Annual,
		Start:    date(2025, 3, 1),
		End:      date(2025, 3, 3),
	}, balanceWithRemaining(100), nil)

	assert.False(t, res.IsValid)
	assert.True(t, res.Has(leave.RuleWeekendStart))
	assert.False(t, res.Has(leave.RuleBalance))
	assert.Equal(t, 3, res.RequestedDays)
}

func TestValidate_EmergencyCategories_SkipWeekendRuleButNotPastDate(t *testing.T) {
	v := newValidator(clockAt(2025, time.January, 10))

	for _, c := range []leave.Category{leave.Sick, leave.Compassionate} {
		// Sunday, already past
		res := v.Validate(leave.Proposal{Category: c, Start: date(2025, 1, 5), End: date(2025, 1, 6)}, balanceWithRemaining(10), nil)
		assert.False(t, res.Has(leave.RuleWeekendStart), c)
		assert.True(t, res.Has(leave.RulePastDate), c)
	}
}

func TestValidate_ExemptCategories_NeverInsufficient(t *testing.T) {
	v := newValidator(clockAt(2025, time.January, 10))

	for _, c := range []leave.Category{leave.Unpaid, leave.Administrative} {
		res := v.Validate(leave.Proposal{
			Category: c,
			Start:    date(2025, 2, 3),
			End:      date(2025, 8, 29),
		}, generic.ZeroBalance(leave.Key("emp-1", c, 2025)), nil)
		assert.True(t, res.IsValid, "%s: %v", c, res.Errors())
		assert.False(t, res.Has(leave.RuleBalance))
	}
}

func TestValidate_InsufficientBalance_Message(t *testing.T) {
	v := newValidator(clockAt(2025, time.January, 10))

	res := v.Validate(leave.Proposal{
		Category: leave.Sick,
		Start:    date(2025, 2, 3),
		End:      date(2025, 2, 7),
	}, balanceWithRemaining(2), nil)

	require.True(t, res.Has(leave.RuleBalance))
	assert.Contains(t, res.Errors(), "insufficient balance. Available: 2, Requested: 5")
}

func TestValidate_AdvanceNotice(t *testing.T) {
	v := newValidator(clockAt(2025, time.January, 10))

	annual := v.Validate(leave.Proposal{Category: leave.Annual, Start: date(2025, 1, 15), End: date(2025, 1, 15)}, balanceWithRemaining(21), nil)
	assert.True(t, annual.Has(leave.RuleAdvanceNotice))

	study := v.Validate(leave.Proposal{Category: leave.Study, Start: date(2025, 2, 3), End: date(2025, 2, 3)}, balanceWithRemaining(10), nil)
	assert.True(t, study.Has(leave.RuleAdvanceNotice), "24 days is short of 30")

	paternity := v.Validate(leave.Proposal{Category: leave.Paternity, Start: date(2025, 1, 10), End: date(2025, 1, 10)}, balanceWithRemaining(10), nil)
	assert.True(t, paternity.IsValid, paternity.Errors())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	// GIVEN: A request that is past, inverted, weekend and conflicting
	v := newValidator(clockAt(2025, time.January, 10))
	conflict := leave.Request{ID: "req-x", Category: leave.Annual, Start: date(2025, 1, 1), End: date(2025, 1, 7), Status: leave.StatusApproved}

	res := v.Validate(leave.Proposal{
		Category: leave.Annual,
		Start:    date(2025, 1, 4),
		End:      date(2025, 1, 2),
	}, balanceWithRemaining(21), []leave.Request{conflict})

	assert.False(t, res.IsValid)
	for _, rule := range []leave.Rule{leave.RulePastDate, leave.RuleRange, leave.RuleWeekendStart, leave.RuleAdvanceNotice, leave.RuleConflict} {
		assert.True(t, res.Has(rule), rule)
	}
	assert.Equal(t, 0, res.RequestedDays)

	var vf *leave.ValidationFailed
	require.ErrorAs(t, res.Err(), &vf)
	assert.Len(t, vf.Reasons, len(res.Violations))
}

func TestValidate_WorkingDaysExcludeWeekendsAndHolidays(t *testing.T) {
	v := newValidator(clockAt(2025, time.January, 10))
	v.Holidays = generic.HolidaySet{"2025-02-05": "founders day"}

	// Mon 3 Feb .. Sun 9 Feb
	res := v.Validate(leave.Proposal{Category: leave.Annual, Start: date(2025, 2, 3), End: date(2025, 2, 9)}, balanceWithRemaining(21), nil)
	assert.True(t, res.IsValid, res.Errors())
	assert.Equal(t, 7, res.RequestedDays)
	assert.Equal(t, 4, res.WorkingDays)
}

// =============================================================================
// CONFLICT DETECTOR
// =============================================================================

func TestFindOverlaps_ApprovedOnly(t *testing.T) {
	// GIVEN: Approved [03-01, 03-05], approved [04-01, 04-02], pending [03-04, 03-06]
	// WHEN: Querying [03-04, 03-08]
	// THEN: Only the first approved request is returned
	ctx := context.Background()
	store := memory.New()

	first := leave.Request{ID: "req-1", EmployeeID: "emp-1", Category: leave.Annual, Start: date(2025, 3, 1), End: date(2025, 3, 5), Status: leave.StatusApproved}
	second := leave.Request{ID: "req-2", EmployeeID: "emp-1", Category: leave.Annual, Start: date(2025, 4, 1), End: date(2025, 4, 2), Status: leave.StatusApproved}
	pending := leave.Request{ID: "req-3", EmployeeID: "emp-1", Category: leave.Sick, Start: date(2025, 3, 4), End: date(2025, 3, 6), Status: leave.StatusPending}
	other := leave.Request{ID: "req-4", EmployeeID: "emp-2", Category: leave.Annual, Start: date(2025, 3, 1), End: date(2025, 3, 31), Status: leave.StatusApproved}
	for _, r := range []leave.Request{first, second, pending, other} {
		require.NoError(t, store.SaveRequest(ctx, r))
	}

	d := leave.ConflictDetector{Requests: store}
	got, err := d.FindOverlaps(ctx, "emp-1", date(2025, 3, 4), date(2025, 3, 8), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, leave.RequestID("req-1"), got[0].ID)

	// THEN: validate rejects with a conflict error
	res := newValidator(clockAt(2025, time.January, 10)).Validate(leave.Proposal{
		EmployeeID: "emp-1", Category: leave.Annual, Start: date(2025, 3, 4), End: date(2025, 3, 8),
	}, balanceWithRemaining(21), got)
	assert.False(t, res.IsValid)
	assert.True(t, res.Has(leave.RuleConflict))
}

func TestFindOverlaps_TouchingEdgesOverlap_AndExclude(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveRequest(ctx, leave.Request{
		ID: "req-1", EmployeeID: "emp-1", Category: leave.Annual,
		Start: date(2025, 3, 1), End: date(2025, 3, 5), Status: leave.StatusApproved,
	}))
	d := leave.ConflictDetector{Requests: store}

	got, err := d.FindOverlaps(ctx, "emp-1", date(2025, 3, 5), date(2025, 3, 5), "")
	require.NoError(t, err)
	assert.Len(t, got, 1, "closed intervals share 03-05")

	got, err = d.FindOverlaps(ctx, "emp-1", date(2025, 3, 6), date(2025, 3, 9), "")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.FindOverlaps(ctx, "emp-1", date(2025, 3, 1), date(2025, 3, 5), "req-1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
