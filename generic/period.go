package generic

// =============================================================================
// PERIOD - Closed date interval
// =============================================================================

// Period is the closed interval [Start, End].
type Period struct {
	Start TimePoint
	End   TimePoint
}

// NewPeriod returns *InvalidRangeError if end is before start.
func NewPeriod(start, end TimePoint) (Period, error) {
	if end.Before(start) {
		return Period{}, &InvalidRangeError{Start: start, End: end}
	}
	return Period{Start: start, End: end}, nil
}

// Overlaps is the closed-interval intersection test:
// p.Start <= other.End && p.End >= other.Start.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && p.End.AfterOrEqual(other.Start)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
