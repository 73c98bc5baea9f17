package scheduling

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/clinic/booking/internal/platform/apperr"
)

// TimeOfDay is a wall-clock time as minutes since midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

var timeOfDayPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ParseTimeOfDay accepts H:MM or HH:MM on a 24-hour clock.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if !timeOfDayPattern.MatchString(s) {
		return 0, apperr.Validation("invalid time %q: expected HH:MM", s)
	}
	h, m, _ := strings.Cut(s, ":")
	hours, _ := strconv.Atoi(h)
	minutes, _ := strconv.Atoi(m)
	return TimeOfDay(hours*60 + minutes), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return apperr.Validation("time of day must be a string")
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// GenerateSlots returns start, start+interval, ... for every slot that begins
// before end. The last slot may run past end.
func GenerateSlots(start, end TimeOfDay, intervalMinutes int) ([]TimeOfDay, error) {
	if intervalMinutes <= 0 {
		return nil, apperr.Validation("slot interval must be positive, got %d", intervalMinutes)
	}
	var slots []TimeOfDay
	for t := start; t < end; t += TimeOfDay(intervalMinutes) {
		slots = append(slots, t)
	}
	return slots, nil
}
