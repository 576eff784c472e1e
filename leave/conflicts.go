package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// ConflictDetector finds approved requests that overlap a date range.
// Read-only.
type ConflictDetector struct {
	Requests RequestStore
}

// FindOverlaps returns every approved request of the employee whose
// [Start, End] intersects [start, end], except excludeID.
func (d ConflictDetector) FindOverlaps(ctx context.Context, employeeID generic.EmployeeID, start, end generic.TimePoint, excludeID RequestID) ([]Request, error) {
	candidates, err := d.Requests.ListRequests(ctx, RequestFilter{
		EmployeeID: employeeID,
		Statuses:   []Status{StatusApproved},
		From:       &start,
		To:         &end,
	})
	if err != nil {
		return nil, err
	}
	queried := generic.Period{Start: start, End: end}
	var out []Request
	for _, r := range candidates {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		if r.Period().Overlaps(queried) {
			out = append(out, r)
		}
	}
	return out, nil
}
