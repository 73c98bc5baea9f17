package scheduling

import (
	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/google/uuid"
)

// Window is a half-open [Start, End) span within one day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports whether a and b share at least one minute. Windows that
// only touch do not overlap.
func Overlaps(a, b Window) bool {
	return a.Start < b.End && b.Start < a.End
}

// CheckConflict returns a ScheduleConflict error when candidate overlaps an
// entry of the same doctor on the same weekday. The entry with id excludeID
// is skipped so an update does not collide with itself.
func CheckConflict(existing []*ScheduleEntry, candidate ScheduleEntry, excludeID *uuid.UUID) error {
	for _, e := range existing {
		if excludeID != nil && e.ID == *excludeID {
			continue
		}
		if e.DoctorID != candidate.DoctorID || e.DayOfWeek != candidate.DayOfWeek {
			continue
		}
		if Overlaps(e.Window(), candidate.Window()) {
			return apperr.ScheduleConflict("schedule %s-%s overlaps existing window %s-%s",
				candidate.StartTime, candidate.EndTime, e.StartTime, e.EndTime)
		}
	}
	return nil
}
