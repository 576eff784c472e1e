package generic

import (
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (this engine works at day granularity)
// =============================================================================

type TimePoint struct {
	Time time.Time
}

const DateLayout = "2006-01-02"

func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddYears(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(n, 0, 0)} }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsWeekend() bool       { return IsWeekend(tp) }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) String() string { return tp.normalize().Format(DateLayout) }

// MarshalText encodes the date as YYYY-MM-DD, so JSON carries plain dates.
func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

func (tp *TimePoint) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// CLOCK - Explicit "now" so calculators stay deterministic
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used in tests and replays.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the clock's current date.
func Today(c Clock) TimePoint {
	if c == nil {
		c = SystemClock{}
	}
	return DateOf(c.Now())
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

// DaysBetween returns to - from in whole calendar days (negative if to < from).
// Both dates are UTC midnights, so the Unix second difference is an exact
// multiple of a day for any pair of years time.Time can hold.
func DaysBetween(from, to TimePoint) int {
	return int((to.normalize().Unix() - from.normalize().Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// InclusiveDaySpan counts the calendar days in [start, end].
// Returns *InvalidRangeError if end is before start.
func InclusiveDaySpan(start, end TimePoint) (int, error) {
	if end.Before(start) {
		return 0, &InvalidRangeError{Start: start, End: end}
	}
	return DaysBetween(start, end) + 1, nil
}

// IsWeekend reports Saturday or Sunday.
func IsWeekend(tp TimePoint) bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// ServicePeriod is tenure expressed as years/months plus the exact day count.
//
// Years and months use a 365-day year and a 30-day month with no leap-year
// correction. Settlement figures depend on these exact numbers; changing the
// approximation changes historical payouts.
type ServicePeriod struct {
	Years     int
	Months    int
	TotalDays int
}

// ServicePeriodBetween computes the service period from hire to reference.
// The day difference is absolute, so argument order only matters for intent.
func ServicePeriodBetween(hire, reference TimePoint) ServicePeriod {
	total := DaysBetween(hire, reference)
	if total < 0 {
		total = -total
	}
	return ServicePeriod{
		Years:     total / 365,
		Months:    (total % 365) / 30,
		TotalDays: total,
	}
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// HolidayCalendar reports public holidays. Holiday data entry lives outside
// this engine; implementations are injected.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// NoHolidays is the default calendar.
type NoHolidays struct{}

func (NoHolidays) IsHoliday(TimePoint) bool { return false }

// HolidaySet is a fixed set of dates.
type HolidaySet map[string]string // YYYY-MM-DD -> name

func (h HolidaySet) IsHoliday(date TimePoint) bool {
	_, ok := h[date.String()]
	return ok
}

// BusinessDaysBetween counts business days in [start, end]. Weekdays are
// counted per whole week; only a HolidaySet is subtracted without walking
// the range, other calendars are asked day by day.
func BusinessDaysBetween(start, end TimePoint, calendar HolidayCalendar) (int, error) {
	total, err := InclusiveDaySpan(start, end)
	if err != nil {
		return 0, err
	}
	n := (total / 7) * 5
	first := start.Weekday()
	for i := 0; i < total%7; i++ {
		if wd := (first + time.Weekday(i)) % 7; wd != time.Saturday && wd != time.Sunday {
			n++
		}
	}

	switch cal := calendar.(type) {
	case nil, NoHolidays:
	case HolidaySet:
		for raw := range cal {
			d, err := ParseDate(raw)
			if err != nil || IsWeekend(d) || d.Before(start) || d.After(end) {
				continue
			}
			n--
		}
	default:
		for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
			if !IsWeekend(d) && cal.IsHoliday(d) {
				n--
			}
		}
	}
	return n, nil
}
