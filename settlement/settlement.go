/*
Package settlement computes what an employee is owed when they leave.

PURPOSE:
  Compute is a pure function of the employee record, the exit details, the
  employee's leave balances, the policy table and a versioned Rates table.
  It never reads a clock or a store; Service does that and records an audit
  entry.

FIGURES (all in the salary's currency, per month of basic salary):
  severance   = salary x SeveranceMultiplier(exit type, service years)
  notice      = salary x min(years, 3)
  leave       = annual days owed + other payable balances, each day at salary/30
                annual owed = granted total (or policy entitlement when the
                year was never granted) x exitMonth/12 - annual used
  pension     = salary x 0.10 x years
  medical     = salary x 0.05 x 3
  bonus       = salary x 0.5 x exitMonth/12, only when exiting this year
  overtime    = salary x 0.10
  gross       = sum of the above + salary
  deductions  = gross x 0.10 tax + salary x 0.08 social security + other
  net         = gross - deductions

PRECISION:
  Every figure is an exact decimal. Rounding to cents happens once, in
  Rounded, when the settlement is presented.
*/
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// EXIT TYPE
// =============================================================================

type ExitType string

const (
	Resignation ExitType = "resignation"
	Retirement  ExitType = "retirement"
	Termination ExitType = "termination"
	Redundancy  ExitType = "redundancy"
)

var ErrUnknownExitType = errors.New("unknown exit type")

func AllExitTypes() []ExitType {
	return []ExitType{Resignation, Retirement, Termination, Redundancy}
}

func (e ExitType) Valid() bool {
	switch e {
	case Resignation, Retirement, Termination, Redundancy:
		return true
	}
	return false
}

func ParseExitType(s string) (ExitType, error) {
	e := ExitType(s)
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownExitType, s)
	}
	return e, nil
}

// =============================================================================
// INPUT / OUTPUT
// =============================================================================

type Input struct {
	Employee leave.Employee
	ExitType ExitType
	ExitDate generic.TimePoint

	// Balances for the exit year. Categories without a row count as unused.
	Balances []generic.Balance

	// OtherDeductions covers loans, advances and unpaid leave supplied by
	// payroll. Zero when unknown.
	OtherDeductions decimal.Decimal

	// Today decides whether the bonus is prorated.
	Today generic.TimePoint
}

// PayoutLine is the cash value of one payable leave category.
type PayoutLine struct {
	Category leave.Category  `json:"category"`
	Days     decimal.Decimal `json:"days"`
	Amount   decimal.Decimal `json:"amount"`
}

type Settlement struct {
	EmployeeID    generic.EmployeeID    `json:"employee_id"`
	ExitType      ExitType              `json:"exit_type"`
	ExitDate      generic.TimePoint     `json:"exit_date"`
	ServicePeriod generic.ServicePeriod `json:"service_period"`
	BasicSalary   decimal.Decimal       `json:"basic_salary"`

	SeveranceMultiplier decimal.Decimal `json:"severance_multiplier"`
	SeverancePay        decimal.Decimal `json:"severance_pay"`
	NoticePay           decimal.Decimal `json:"notice_pay"`
	LeavePayout         decimal.Decimal `json:"leave_payout"`
	LeaveLines          []PayoutLine    `json:"leave_lines"`
	PensionContribution decimal.Decimal `json:"pension_contribution"`
	MedicalBenefits     decimal.Decimal `json:"medical_benefits"`
	BonusProration      decimal.Decimal `json:"bonus_proration"`
	OvertimePayment     decimal.Decimal `json:"overtime_payment"`
	TotalGross          decimal.Decimal `json:"total_gross"`

	TaxDeductions            decimal.Decimal `json:"tax_deductions"`
	SocialSecurityDeductions decimal.Decimal `json:"social_security_deductions"`
	OtherDeductions          decimal.Decimal `json:"other_deductions"`
	TotalDeductions          decimal.Decimal `json:"total_deductions"`
	NetPayable               decimal.Decimal `json:"net_payable"`

	RatesVersion  string `json:"rates_version"`
	PolicyVersion string `json:"policy_version"`
}

// Rounded returns a copy with every money figure rounded to cents.
// Day counts and the multiplier are left exact.
func (s Settlement) Rounded() Settlement {
	r := s
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
	r.BasicSalary = round(s.BasicSalary)
	r.SeverancePay = round(s.SeverancePay)
	r.NoticePay = round(s.NoticePay)
	r.LeavePayout = round(s.LeavePayout)
	r.PensionContribution = round(s.PensionContribution)
	r.MedicalBenefits = round(s.MedicalBenefits)
	r.BonusProration = round(s.BonusProration)
	r.OvertimePayment = round(s.OvertimePayment)
	r.TotalGross = round(s.TotalGross)
	r.TaxDeductions = round(s.TaxDeductions)
	r.SocialSecurityDeductions = round(s.SocialSecurityDeductions)
	r.OtherDeductions = round(s.OtherDeductions)
	r.TotalDeductions = round(s.TotalDeductions)
	r.NetPayable = round(s.NetPayable)
	r.LeaveLines = make([]PayoutLine, len(s.LeaveLines))
	for i, l := range s.LeaveLines {
		r.LeaveLines[i] = PayoutLine{Category: l.Category, Days: l.Days, Amount: round(l.Amount)}
	}
	return r
}

// =============================================================================
// COMPUTE
// =============================================================================

// Compute returns the unrounded settlement.
func Compute(policies *leave.PolicyTable, rates Rates, in Input) (Settlement, error) {
	if !in.ExitType.Valid() {
		return Settlement{}, fmt.Errorf("%w: %q", ErrUnknownExitType, in.ExitType)
	}
	if in.ExitDate.Before(in.Employee.HireDate) {
		return Settlement{}, &generic.InvalidRangeError{Start: in.Employee.HireDate, End: in.ExitDate}
	}
	if err := rates.Validate(); err != nil {
		return Settlement{}, err
	}

	salary := in.Employee.BasicSalary
	service := generic.ServicePeriodBetween(in.Employee.HireDate, in.ExitDate)
	years := decimal.NewFromInt(int64(service.Years))

	s := Settlement{
		EmployeeID:    in.Employee.ID,
		ExitType:      in.ExitType,
		ExitDate:      in.ExitDate,
		ServicePeriod: service,
		BasicSalary:   salary,
		RatesVersion:  rates.Version,
		PolicyVersion: policies.Version(),
	}

	s.SeveranceMultiplier = rates.SeveranceMultiplier(in.ExitType, service.Years)
	s.SeverancePay = salary.Mul(s.SeveranceMultiplier)
	s.NoticePay = salary.Mul(decimal.NewFromInt(int64(min(service.Years, rates.NoticeMaxMonths))))

	s.LeaveLines = leavePayout(policies, rates, in)
	s.LeavePayout = decimal.Zero
	for _, l := range s.LeaveLines {
		s.LeavePayout = s.LeavePayout.Add(l.Amount)
	}

	s.PensionContribution = salary.Mul(rates.PensionRate).Mul(years)
	s.MedicalBenefits = salary.Mul(rates.MedicalRate).Mul(decimal.NewFromInt(int64(rates.MedicalMonths)))
	s.BonusProration = decimal.Zero
	if in.ExitDate.Year() == in.Today.Year() {
		s.BonusProration = salary.Mul(rates.BonusRate).
			Mul(decimal.NewFromInt(int64(in.ExitDate.Month()))).
			Div(decimal.NewFromInt(12))
	}
	s.OvertimePayment = salary.Mul(rates.OvertimeRate)

	s.TotalGross = decimal.Sum(salary,
		s.SeverancePay, s.NoticePay, s.LeavePayout, s.PensionContribution,
		s.MedicalBenefits, s.BonusProration, s.OvertimePayment)

	s.TaxDeductions = s.TotalGross.Mul(rates.TaxRate)
	s.SocialSecurityDeductions = salary.Mul(rates.SocialSecurityRate)
	s.OtherDeductions = in.OtherDeductions
	s.TotalDeductions = decimal.Sum(s.TaxDeductions, s.SocialSecurityDeductions, s.OtherDeductions)
	s.NetPayable = s.TotalGross.Sub(s.TotalDeductions)
	return s, nil
}

// leavePayout prices each payable category. Annual leave pays the share of
// the year's entitlement earned by the exit month, less what was used;
// other payable categories pay their remaining balance.
func leavePayout(policies *leave.PolicyTable, rates Rates, in Input) []PayoutLine {
	year := in.ExitDate.Year()
	dayRate := in.Employee.BasicSalary.Div(decimal.NewFromInt(int64(rates.DayBasis)))

	balances := make(map[leave.Category]generic.Balance)
	for _, b := range in.Balances {
		if b.Key.Year != year || b.Key.EmployeeID != in.Employee.ID {
			continue
		}
		balances[leave.Category(b.Key.Resource.ResourceID())] = b
	}

	var lines []PayoutLine
	for _, c := range policies.PayableCategories() {
		var days decimal.Decimal
		if c == leave.Annual {
			entitlement := leave.EmployeeEntitlement(policies, in.Employee, c, year).Value
			if b, ok := balances[c]; ok && b.Granted {
				entitlement = b.Total.Value
			}
			earned := entitlement.
				Mul(decimal.NewFromInt(int64(in.ExitDate.Month()))).
				Div(decimal.NewFromInt(12))
			days = earned.Sub(balances[c].Used.Value)
		} else {
			b, ok := balances[c]
			if !ok {
				continue
			}
			days = b.Remaining().Value
		}
		if !days.IsPositive() {
			continue
		}
		lines = append(lines, PayoutLine{Category: c, Days: days, Amount: days.Mul(dayRate)})
	}
	return lines
}
