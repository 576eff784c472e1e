/*
Package factory turns JSON rule tables into the engine's immutable tables.

PURPOSE:
  HR maintains leave policies and settlement rates as JSON files under
  version control. The factory validates a file and builds a
  leave.PolicyTable and, when present, a settlement.Rates. Tables are built
  once at startup; there is no reload.

JSON SCHEMA:
  {
    "version": "2025.1",
    "policies": [
      {
        "category": "annual",
        "default_annual_days": 21,
        "payable_on_exit": true,
        "min_advance_notice_days": 14,
        "applies_weekend_restriction": true
      }
    ],
    "settlement": {
      "version": "2025.1",
      "severance_tiers": [{"min_years": 10, "months": "3"}],
      "retirement_min_years": 10,
      "retirement_per_year": "0.5",
      "notice_max_months": 3,
      "pension_rate": "0.10",
      "medical_rate": "0.05",
      "medical_months": 3,
      "bonus_rate": "0.5",
      "overtime_rate": "0.10",
      "tax_rate": "0.10",
      "social_security_rate": "0.08",
      "day_basis": 30
    }
  }

  Every leave category must appear in "policies". Rates are decimal strings.
  A missing "settlement" block means settlement.DefaultRates().

USAGE:
  tables, err := factory.LoadFile("rules.json")
  svc := leave.NewRequestService(store, tables.Policies)

SEE ALSO:
  - leave/policies.go: PolicyTable
  - settlement/rates.go: Rates
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/settlement"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type RuleTableJSON struct {
	Version    string       `json:"version" validate:"required"`
	Policies   []PolicyJSON `json:"policies" validate:"required,min=1,dive"`
	Settlement *RatesJSON   `json:"settlement,omitempty" validate:"omitempty"`
}

type PolicyJSON struct {
	Category                  string `json:"category" validate:"required,leave_category"`
	DefaultAnnualDays         int    `json:"default_annual_days" validate:"gte=0,lte=366"`
	PayableOnExit             bool   `json:"payable_on_exit"`
	MinAdvanceNoticeDays      int    `json:"min_advance_notice_days" validate:"gte=0"`
	AppliesWeekendRestriction bool   `json:"applies_weekend_restriction"`
}

type RatesJSON struct {
	Version            string              `json:"version" validate:"required"`
	SeveranceTiers     []SeveranceTierJSON `json:"severance_tiers" validate:"dive"`
	RetirementMinYears int                 `json:"retirement_min_years" validate:"gte=0"`
	RetirementPerYear  string              `json:"retirement_per_year" validate:"required,numeric"`
	NoticeMaxMonths    int                 `json:"notice_max_months" validate:"gte=0"`
	PensionRate        string              `json:"pension_rate" validate:"required,numeric"`
	MedicalRate        string              `json:"medical_rate" validate:"required,numeric"`
	MedicalMonths      int                 `json:"medical_months" validate:"gte=0"`
	BonusRate          string              `json:"bonus_rate" validate:"required,numeric"`
	OvertimeRate       string              `json:"overtime_rate" validate:"required,numeric"`
	TaxRate            string              `json:"tax_rate" validate:"required,numeric"`
	SocialSecurityRate string              `json:"social_security_rate" validate:"required,numeric"`
	DayBasis           int                 `json:"day_basis" validate:"gt=0"`
}

type SeveranceTierJSON struct {
	MinYears int    `json:"min_years" validate:"gte=0"`
	Months   string `json:"months" validate:"required,numeric"`
}

// Tables is the result of loading a rule file.
type Tables struct {
	Policies *leave.PolicyTable
	Rates    settlement.Rates
}

// DefaultTables returns the built-in policy table and settlement rates.
func DefaultTables() Tables {
	return Tables{Policies: leave.DefaultPolicyTable(), Rates: settlement.DefaultRates()}
}

// =============================================================================
// LOADING
// =============================================================================

var ErrInvalidRuleTable = errors.New("invalid rule table")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("leave_category", func(fl validator.FieldLevel) bool {
		return leave.Category(fl.Field().String()).Valid()
	})
	return v
}

// LoadFile reads and parses a rule table file.
func LoadFile(path string) (Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return Tables{}, fmt.Errorf("failed to open rule table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a rule table. Unknown fields are rejected.
func Load(r io.Reader) (Tables, error) {
	var rt RuleTableJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rt); err != nil {
		return Tables{}, fmt.Errorf("%w: failed to parse JSON: %w", ErrInvalidRuleTable, err)
	}
	return FromJSON(rt)
}

// FromJSON validates rt and builds the tables.
func FromJSON(rt RuleTableJSON) (Tables, error) {
	if err := validate.Struct(rt); err != nil {
		return Tables{}, fmt.Errorf("%w: %s", ErrInvalidRuleTable, describe(err))
	}

	entries := make([]leave.PolicyEntry, len(rt.Policies))
	for i, p := range rt.Policies {
		entries[i] = leave.PolicyEntry{
			Category:                  leave.Category(p.Category),
			DefaultAnnualDays:         p.DefaultAnnualDays,
			PayableOnExit:             p.PayableOnExit,
			MinAdvanceNoticeDays:      p.MinAdvanceNoticeDays,
			AppliesWeekendRestriction: p.AppliesWeekendRestriction,
		}
	}
	policies, err := leave.NewPolicyTable(rt.Version, entries)
	if err != nil {
		return Tables{}, fmt.Errorf("%w: %w", ErrInvalidRuleTable, err)
	}

	rates := settlement.DefaultRates()
	if rt.Settlement != nil {
		if rates, err = parseRates(*rt.Settlement); err != nil {
			return Tables{}, fmt.Errorf("%w: %w", ErrInvalidRuleTable, err)
		}
	}
	return Tables{Policies: policies, Rates: rates}, nil
}

// ToJSON converts tables back to their file form.
func ToJSON(t Tables) RuleTableJSON {
	rt := RuleTableJSON{Version: t.Policies.Version()}
	for _, e := range t.Policies.Entries() {
		rt.Policies = append(rt.Policies, PolicyJSON{
			Category:                  string(e.Category),
			DefaultAnnualDays:         e.DefaultAnnualDays,
			PayableOnExit:             e.PayableOnExit,
			MinAdvanceNoticeDays:      e.MinAdvanceNoticeDays,
			AppliesWeekendRestriction: e.AppliesWeekendRestriction,
		})
	}

	r := t.Rates
	rj := &RatesJSON{
		Version:            r.Version,
		RetirementMinYears: r.RetirementMinYears,
		RetirementPerYear:  r.RetirementPerYear.String(),
		NoticeMaxMonths:    r.NoticeMaxMonths,
		PensionRate:        r.PensionRate.String(),
		MedicalRate:        r.MedicalRate.String(),
		MedicalMonths:      r.MedicalMonths,
		BonusRate:          r.BonusRate.String(),
		OvertimeRate:       r.OvertimeRate.String(),
		TaxRate:            r.TaxRate.String(),
		SocialSecurityRate: r.SocialSecurityRate.String(),
		DayBasis:           r.DayBasis,
	}
	for _, tier := range r.SeveranceTiers {
		rj.SeveranceTiers = append(rj.SeveranceTiers, SeveranceTierJSON{MinYears: tier.MinYears, Months: tier.Months.String()})
	}
	rt.Settlement = rj
	return rt
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseRates(rj RatesJSON) (settlement.Rates, error) {
	p := decimalParser{}
	r := settlement.Rates{
		Version:            rj.Version,
		RetirementMinYears: rj.RetirementMinYears,
		RetirementPerYear:  p.parse("retirement_per_year", rj.RetirementPerYear),
		NoticeMaxMonths:    rj.NoticeMaxMonths,
		PensionRate:        p.parse("pension_rate", rj.PensionRate),
		MedicalRate:        p.parse("medical_rate", rj.MedicalRate),
		MedicalMonths:      rj.MedicalMonths,
		BonusRate:          p.parse("bonus_rate", rj.BonusRate),
		OvertimeRate:       p.parse("overtime_rate", rj.OvertimeRate),
		TaxRate:            p.parse("tax_rate", rj.TaxRate),
		SocialSecurityRate: p.parse("social_security_rate", rj.SocialSecurityRate),
		DayBasis:           rj.DayBasis,
	}
	for i, tj := range rj.SeveranceTiers {
		r.SeveranceTiers = append(r.SeveranceTiers, settlement.SeveranceTier{
			MinYears: tj.MinYears,
			Months:   p.parse(fmt.Sprintf("severance_tiers[%d].months", i), tj.Months),
		})
	}
	if p.err != nil {
		return settlement.Rates{}, p.err
	}
	if err := r.Validate(); err != nil {
		return settlement.Rates{}, err
	}
	return r, nil
}

// decimalParser keeps the first parse error.
type decimalParser struct {
	err error
}

func (p *decimalParser) parse(field, s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", field, err)
	}
	return d
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	msgs := make([]string, len(ve))
	for i, fe := range ve {
		msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
	}
	return strings.Join(msgs, "; ")
}
