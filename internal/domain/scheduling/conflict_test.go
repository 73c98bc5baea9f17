package scheduling

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/platform/apperr"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Window
		want bool
	}{
		{"disjoint", Window{480, 600}, Window{660, 720}, false},
		{"adjacent", Window{480, 720}, Window{720, 840}, false},
		{"adjacent reversed", Window{720, 840}, Window{480, 720}, false},
		{"partial", Window{480, 720}, Window{660, 780}, true},
		{"contained", Window{480, 720}, Window{540, 600}, true},
		{"identical", Window{480, 720}, Window{480, 720}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b); got != tt.want {
				t.Errorf("Overlaps(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := Overlaps(tt.b, tt.a); got != tt.want {
				t.Errorf("Overlaps is not symmetric for %v, %v", tt.a, tt.b)
			}
		})
	}
}

func TestCheckConflict(t *testing.T) {
	doctor := uuid.New()
	other := uuid.New()
	morning := &ScheduleEntry{ID: uuid.New(), DoctorID: doctor, DayOfWeek: 1, StartTime: 480, EndTime: 720}
	existing := []*ScheduleEntry{
		morning,
		{ID: uuid.New(), DoctorID: other, DayOfWeek: 1, StartTime: 780, EndTime: 960},
		{ID: uuid.New(), DoctorID: doctor, DayOfWeek: 2, StartTime: 780, EndTime: 960},
	}

	tests := []struct {
		name      string
		candidate ScheduleEntry
		exclude   *uuid.UUID
		conflict  bool
	}{
		{"overlaps morning", ScheduleEntry{DoctorID: doctor, DayOfWeek: 1, StartTime: 660, EndTime: 780}, nil, true},
		{"adjacent to morning", ScheduleEntry{DoctorID: doctor, DayOfWeek: 1, StartTime: 720, EndTime: 840}, nil, false},
		{"other doctor's window", ScheduleEntry{DoctorID: doctor, DayOfWeek: 1, StartTime: 800, EndTime: 900}, nil, false},
		{"other weekday", ScheduleEntry{DoctorID: doctor, DayOfWeek: 3, StartTime: 480, EndTime: 720}, nil, false},
		{"update excludes itself", ScheduleEntry{ID: morning.ID, DoctorID: doctor, DayOfWeek: 1, StartTime: 540, EndTime: 700}, &morning.ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckConflict(existing, tt.candidate, tt.exclude)
			if tt.conflict && !errors.Is(err, apperr.ErrScheduleConflict) {
				t.Fatalf("expected schedule conflict, got %v", err)
			}
			if !tt.conflict && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
