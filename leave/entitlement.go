/*
entitlement.go - Days an employee accrues per category per year

PURPOSE:
  Turns a PolicyEntry into the number of days granted to one employee for
  one year, based on contract type and tenure.

RULES (applied in order):
  1. Base = PolicyEntry.DefaultAnnualDays
  2. Probation:            base x 0.5
  3. Temporary / Contract: base x 0.8
  4. Permanent:            base, plus a tenure bonus for annual leave only

TENURE BONUS (highest matching tier only, no stacking):
  years >= 10  ->  +5
  years >= 5   ->  +3
  years >= 2   ->  +1

  years = asOfYear - hireYear (calendar years, not the service-period math)

EXAMPLE:
  Permanent, hired 2015-01-01, annual, 2025  ->  21 + 5 = 26

SEE ALSO:
  - policies.go: Base days per category
  - ledger.go: Initialize grants these amounts
*/
package leave

import (
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/generic"
)

var (
	probationFactor = decimal.RequireFromString("0.5")
	fixedTermFactor = decimal.RequireFromString("0.8")
)

// TenureTier grants BonusDays once tenure reaches MinYears.
type TenureTier struct {
	MinYears  int
	BonusDays int
}

// annualTenureTiers is ordered highest first; the first match wins.
var annualTenureTiers = []TenureTier{
	{MinYears: 10, BonusDays: 5},
	{MinYears: 5, BonusDays: 3},
	{MinYears: 2, BonusDays: 1},
}

// TenureBonus returns the annual-leave bonus for a tenure in whole years.
func TenureBonus(years int) int {
	for _, tier := range annualTenureTiers {
		if years >= tier.MinYears {
			return tier.BonusDays
		}
	}
	return 0
}

// Entitlement computes the days granted for category in asOfYear.
// Pure and never fails; an unknown category yields zero days.
func Entitlement(policies *PolicyTable, category Category, contract ContractType, hireDate generic.TimePoint, asOfYear int) generic.Amount {
	entry, ok := policies.Entry(category)
	if !ok {
		return generic.Days(0)
	}
	base := decimal.NewFromInt(int64(entry.DefaultAnnualDays))

	switch contract {
	case Probation:
		return generic.DaysFromDecimal(base.Mul(probationFactor))
	case Temporary, Contract:
		return generic.DaysFromDecimal(base.Mul(fixedTermFactor))
	}

	if category == Annual {
		years := asOfYear - hireDate.Year()
		base = base.Add(decimal.NewFromInt(int64(TenureBonus(years))))
	}
	return generic.DaysFromDecimal(base)
}

// EmployeeEntitlement is Entitlement for an Employee record.
func EmployeeEntitlement(policies *PolicyTable, emp Employee, category Category, asOfYear int) generic.Amount {
	return Entitlement(policies, category, emp.ContractType, emp.HireDate, asOfYear)
}
