package leave

import "fmt"

// =============================================================================
// POLICY TABLE - One PolicyEntry per category, loaded once at startup
// =============================================================================

// PolicyEntry holds the static rules for a single leave category.
type PolicyEntry struct {
	Category                  Category `json:"category"`
	DefaultAnnualDays         int      `json:"default_annual_days"`
	PayableOnExit             bool     `json:"payable_on_exit"`
	MinAdvanceNoticeDays      int      `json:"min_advance_notice_days"`
	AppliesWeekendRestriction bool     `json:"applies_weekend_restriction"`
}

// PolicyTable is an immutable category -> PolicyEntry mapping.
// Construct with NewPolicyTable or DefaultPolicyTable; never mutate.
type PolicyTable struct {
	version string
	entries map[Category]PolicyEntry
}

// NewPolicyTable builds a table and checks that every category is present
// exactly once with non-negative numbers.
func NewPolicyTable(version string, entries []PolicyEntry) (*PolicyTable, error) {
	t := &PolicyTable{version: version, entries: make(map[Category]PolicyEntry, len(entries))}
	for _, e := range entries {
		if !e.Category.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, e.Category)
		}
		if _, dup := t.entries[e.Category]; dup {
			return nil, fmt.Errorf("policy table %s: duplicate entry for %s", version, e.Category)
		}
		if e.DefaultAnnualDays < 0 || e.MinAdvanceNoticeDays < 0 {
			return nil, fmt.Errorf("policy table %s: negative days for %s", version, e.Category)
		}
		t.entries[e.Category] = e
	}
	for _, c := range allCategories {
		if _, ok := t.entries[c]; !ok {
			return nil, fmt.Errorf("policy table %s: missing entry for %s", version, c)
		}
	}
	return t, nil
}

const DefaultPolicyVersion = "2025.1"

// DefaultPolicyTable returns the built-in rule table.
func DefaultPolicyTable() *PolicyTable {
	entry := func(c Category, days int, payable bool, notice int) PolicyEntry {
		return PolicyEntry{
			Category:                  c,
			DefaultAnnualDays:         days,
			PayableOnExit:             payable,
			MinAdvanceNoticeDays:      notice,
			AppliesWeekendRestriction: !c.IsEmergency(),
		}
	}
	t, err := NewPolicyTable(DefaultPolicyVersion, []PolicyEntry{
		entry(Annual, 21, true, 14),
		entry(Sick, 14, false, 0),
		entry(Maternity, 90, false, 0),
		entry(Paternity, 10, false, 0),
		entry(Parental, 30, false, 0),
		entry(Compassionate, 5, false, 0),
		entry(Unpaid, 30, false, 0),
		entry(PublicHoliday, 11, false, 0),
		entry(Study, 10, false, 30),
		entry(OfficialDuty, 10, false, 0),
		entry(Religious, 5, false, 0),
		entry(Administrative, 5, false, 0),
	})
	if err != nil {
		panic(err)
	}
	return t
}

func (t *PolicyTable) Version() string { return t.version }

// Entry returns the policy for a category. The bool is false for unknown
// categories.
func (t *PolicyTable) Entry(c Category) (PolicyEntry, bool) {
	e, ok := t.entries[c]
	return e, ok
}

// Entries returns all entries in canonical category order.
func (t *PolicyTable) Entries() []PolicyEntry {
	out := make([]PolicyEntry, 0, len(t.entries))
	for _, c := range allCategories {
		if e, ok := t.entries[c]; ok {
			out = append(out, e)
		}
	}
	return out
}

// PayableCategories lists categories whose unused balance is paid at exit.
func (t *PolicyTable) PayableCategories() []Category {
	var out []Category
	for _, e := range t.Entries() {
		if e.PayableOnExit {
			out = append(out, e.Category)
		}
	}
	return out
}
