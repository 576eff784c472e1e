// Package leave implements the leave rules engine on top of the generic
// ledger: categories, the policy table, entitlement, request validation,
// conflict detection and the request lifecycle.
package leave

import (
	"fmt"
	"strings"

	"github.com/warp/leave-engine/generic"
)

// =============================================================================
// LEAVE CATEGORY - Closed set, each maps to exactly one PolicyEntry
// =============================================================================

// Category is a leave category. Implements generic.ResourceType.
type Category string

func (c Category) ResourceID() string     { return string(c) }
func (c Category) ResourceDomain() string { return "leave" }

// RequiresBalanceCheck is false for categories that may exceed their total.
func (c Category) RequiresBalanceCheck() bool {
	switch c {
	case Unpaid, Administrative:
		return false
	default:
		return true
	}
}

// IsEmergency marks categories exempt from the weekend-start rule.
// They are NOT exempt from the past-date rule.
func (c Category) IsEmergency() bool {
	return c == Sick || c == Compassionate
}

var (
	_ generic.ResourceType   = Category("")
	_ generic.BalanceChecked = Category("")
)

const (
	Annual         Category = "annual"
	Sick           Category = "sick"
	Maternity      Category = "maternity"
	Paternity      Category = "paternity"
	Parental       Category = "parental"
	Compassionate  Category = "compassionate"
	Unpaid         Category = "unpaid"
	PublicHoliday  Category = "public_holiday"
	Study          Category = "study"
	OfficialDuty   Category = "official_duty"
	Religious      Category = "religious"
	Administrative Category = "administrative"
)

var allCategories = []Category{
	Annual, Sick, Maternity, Paternity, Parental, Compassionate,
	Unpaid, PublicHoliday, Study, OfficialDuty, Religious, Administrative,
}

// AllCategories returns every category in canonical order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

func (c Category) Valid() bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the human-readable name used in messages.
func (c Category) Label() string {
	s := strings.ReplaceAll(string(c), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
	}
	return c, nil
}

func init() {
	for _, c := range allCategories {
		generic.RegisterResource(c)
	}
}

// =============================================================================
// CONTRACT TYPE
// =============================================================================

type ContractType string

const (
	Permanent ContractType = "permanent"
	Probation ContractType = "probation"
	Temporary ContractType = "temporary"
	Contract  ContractType = "contract"
)

func ParseContractType(s string) (ContractType, error) {
	ct := ContractType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case Permanent, Probation, Temporary, Contract:
		return ct, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownContractType, s)
	}
}
