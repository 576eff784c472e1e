package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SeveranceTier grants Months of salary once service reaches MinYears.
type SeveranceTier struct {
	MinYears int
	Months   decimal.Decimal
}

// Rates is the versioned set of multipliers used by Compute. Changing any
// figure changes payouts, so every change gets a new Version.
type Rates struct {
	Version string

	// Termination and redundancy. Checked from the highest MinYears down.
	SeveranceTiers []SeveranceTier

	// Retirement pays RetirementPerYear months per service year once
	// service reaches RetirementMinYears.
	RetirementMinYears int
	RetirementPerYear  decimal.Decimal

	NoticeMaxMonths    int
	PensionRate        decimal.Decimal // per service year
	MedicalRate        decimal.Decimal
	MedicalMonths      int
	BonusRate          decimal.Decimal
	OvertimeRate       decimal.Decimal
	TaxRate            decimal.Decimal // of total gross
	SocialSecurityRate decimal.Decimal // of basic salary

	// DayBasis prices one leave day at salary/DayBasis.
	DayBasis int
}

const DefaultRatesVersion = "2025.1"

func DefaultRates() Rates {
	return Rates{
		Version: DefaultRatesVersion,
		SeveranceTiers: []SeveranceTier{
			{MinYears: 10, Months: decimal.NewFromInt(3)},
			{MinYears: 5, Months: decimal.NewFromInt(2)},
			{MinYears: 1, Months: decimal.NewFromInt(1)},
		},
		RetirementMinYears: 10,
		RetirementPerYear:  decimal.RequireFromString("0.5"),
		NoticeMaxMonths:    3,
		PensionRate:        decimal.RequireFromString("0.10"),
		MedicalRate:        decimal.RequireFromString("0.05"),
		MedicalMonths:      3,
		BonusRate:          decimal.RequireFromString("0.5"),
		OvertimeRate:       decimal.RequireFromString("0.10"),
		TaxRate:            decimal.RequireFromString("0.10"),
		SocialSecurityRate: decimal.RequireFromString("0.08"),
		DayBasis:           30,
	}
}

var ErrInvalidRates = errors.New("invalid settlement rates")

func (r Rates) Validate() error {
	if r.Version == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidRates)
	}
	if r.DayBasis <= 0 {
		return fmt.Errorf("%w: day basis must be positive", ErrInvalidRates)
	}
	for i := 1; i < len(r.SeveranceTiers); i++ {
		if r.SeveranceTiers[i].MinYears >= r.SeveranceTiers[i-1].MinYears {
			return fmt.Errorf("%w: severance tiers must be ordered by descending MinYears", ErrInvalidRates)
		}
	}
	return nil
}

// SeveranceMultiplier returns the months of salary owed for the exit type.
func (r Rates) SeveranceMultiplier(exit ExitType, years int) decimal.Decimal {
	switch exit {
	case Termination, Redundancy:
		for _, tier := range r.SeveranceTiers {
			if years >= tier.MinYears {
				return tier.Months
			}
		}
	case Retirement:
		if years >= r.RetirementMinYears {
			return decimal.NewFromInt(int64(years)).Mul(r.RetirementPerYear)
		}
	}
	return decimal.Zero
}
