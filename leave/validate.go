/*
validate.go - Request validation

PURPOSE:
  Decides whether a proposed request is legal against the employee's current
  balance and the approved requests it overlaps. Pure: the caller fetches the
  balance and conflicts, and performs the debit as a separate step.

CHECKS (all evaluated, every violation reported):
  1. past_date       start is not before today (applies to every category)
  2. range           end >= start
  3. weekend_start   start is not Sat/Sun (skipped for sick/compassionate)
  4. balance         requested <= remaining (skipped for unpaid/administrative)
  5. advance_notice  start - today >= category minimum notice
  6. conflict        no overlapping approved request
*/
package leave

import (
	"fmt"

	"github.com/warp/leave-engine/generic"
)

type Rule string

const (
	RulePastDate      Rule = "past_date"
	RuleRange         Rule = "range"
	RuleWeekendStart  Rule = "weekend_start"
	RuleBalance       Rule = "balance"
	RuleAdvanceNotice Rule = "advance_notice"
	RuleConflict      Rule = "conflict"
)

type Violation struct {
	Rule    Rule
	Message string
}

type ValidationResult struct {
	IsValid       bool
	Violations    []Violation
	RequestedDays int
	WorkingDays   int
}

// Errors returns the human-readable reasons.
func (r ValidationResult) Errors() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.Message
	}
	return out
}

// Has reports whether rule was violated.
func (r ValidationResult) Has(rule Rule) bool {
	for _, v := range r.Violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// Err is nil for a valid result, otherwise *ValidationFailed.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	return &ValidationFailed{Reasons: r.Errors()}
}

// Proposal is the part of a request the validator looks at.
type Proposal struct {
	EmployeeID generic.EmployeeID
	Category   Category
	Start      generic.TimePoint
	End        generic.TimePoint
}

type Validator struct {
	Policies *PolicyTable
	Clock    generic.Clock
	Holidays generic.HolidayCalendar
}

func (v Validator) Validate(p Proposal, balance generic.Balance, conflicts []Request) ValidationResult {
	today := generic.Today(v.Clock)
	entry, _ := v.Policies.Entry(p.Category)

	var res ValidationResult
	add := func(rule Rule, msg string) {
		res.Violations = append(res.Violations, Violation{Rule: rule, Message: msg})
	}

	if p.Start.Before(today) {
		add(RulePastDate, "Start date cannot be in the past")
	}

	if days, err := generic.InclusiveDaySpan(p.Start, p.End); err != nil {
		add(RuleRange, "End date must be on or after start date")
	} else {
		res.RequestedDays = days
		res.WorkingDays, _ = generic.BusinessDaysBetween(p.Start, p.End, v.Holidays)
	}

	if entry.AppliesWeekendRestriction && p.Start.IsWeekend() {
		add(RuleWeekendStart, fmt.Sprintf("%s leave cannot start on a weekend (%s)", p.Category.Label(), p.Start.Weekday()))
	}

	if p.Category.RequiresBalanceCheck() {
		requested := generic.NewAmountFromInt(res.RequestedDays, generic.UnitDays)
		if requested.GreaterThan(balance.Remaining()) {
			err := &generic.InsufficientBalanceError{Key: balance.Key, Available: balance.Remaining(), Requested: requested}
			add(RuleBalance, err.Error())
		}
	}

	if notice := entry.MinAdvanceNoticeDays; notice > 0 {
		if until := generic.DaysBetween(today, p.Start); until < notice {
			add(RuleAdvanceNotice, fmt.Sprintf("%s leave requires at least %d days advance notice (%d given)",
				p.Category.Label(), notice, until))
		}
	}

	for _, c := range conflicts {
		add(RuleConflict, fmt.Sprintf("Conflicts with approved %s leave %s to %s (request %s)",
			c.Category, c.Start, c.End, c.ID))
	}

	res.IsValid = len(res.Violations) == 0
	return res
}
