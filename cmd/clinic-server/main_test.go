package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/clinic/booking/internal/config"

	"github.com/clinic/booking/internal/domain/scheduling"
	"github.com/clinic/booking/internal/platform/auth"
)

func TestWeekdays(t *testing.T) {
	got := weekdays("08:00", "12:00")
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, in := range got {
		if in.DayOfWeek != i+1 {
			t.Errorf("got[%d].DayOfWeek = %d, want %d", i, in.DayOfWeek, i+1)
		}
		if in.StartTime != "08:00" || in.EndTime != "12:00" {
			t.Errorf("got[%d] = %s-%s", i, in.StartTime, in.EndTime)
		}
	}
}

func TestSeedAccounts(t *testing.T) {
	accts := seedAccounts("secret1")
	if len(accts) != 3 {
		t.Fatalf("len = %d, want 3", len(accts))
	}

	doctors := 0
	for _, a := range accts {
		if a.input.Password != "secret1" {
			t.Errorf("%s: password not propagated", a.input.Email)
		}
		switch a.input.Role {
		case auth.RoleDoctor:
			doctors++
			if a.input.LicenseNumber == "" || a.input.Specialty == "" {
				t.Errorf("%s: doctor without license or specialty", a.input.Email)
			}
			if len(a.schedules) == 0 {
				t.Errorf("%s: doctor without schedules", a.input.Email)
			}
		case auth.RoleReceptionist:
			if len(a.schedules) != 0 {
				t.Errorf("%s: receptionist has schedules", a.input.Email)
			}
		default:
			t.Errorf("%s: unexpected role %q", a.input.Email, a.input.Role)
		}
	}
	if doctors != 2 {
		t.Errorf("doctors = %d, want 2", doctors)
	}
}

// Seeded windows must not overlap each other, otherwise seeding would
// silently drop some of them as conflicts.
func TestSeedSchedulesDoNotOverlap(t *testing.T) {
	for _, a := range seedAccounts("x") {
		var entries []*scheduling.ScheduleEntry
		for _, in := range a.schedules {
			start, err := scheduling.ParseTimeOfDay(in.StartTime)
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q): %v", in.StartTime, err)
			}
			end, err := scheduling.ParseTimeOfDay(in.EndTime)
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q): %v", in.EndTime, err)
			}
			candidate := scheduling.ScheduleEntry{DayOfWeek: in.DayOfWeek, StartTime: start, EndTime: end}
			if err := scheduling.CheckConflict(entries, candidate, nil); err != nil {
				t.Errorf("%s: %s day %d %s-%s overlaps: %v", a.input.Email, a.input.Name, in.DayOfWeek, in.StartTime, in.EndTime, err)
			}
			entries = append(entries, &candidate)
		}
	}
}

func TestNewLogger_StartupFailure(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(nil, &buf)
	l.Error().Err(errors.New("DATABASE_URL is required")).Msg("failed to start")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	if entry["level"] != "error" || entry["message"] != "failed to start" {
		t.Errorf("unexpected entry %v", entry)
	}
	if entry["error"] != "DATABASE_URL is required" {
		t.Errorf("error = %v", entry["error"])
	}
}

func TestNewLogger_ConsoleInDevelopment(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&config.Config{Env: "development"}, &buf)
	l.Info().Msg("connected to database")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Errorf("expected console output in development, got %s", out)
	}
	if !strings.Contains(out, "connected to database") {
		t.Errorf("message missing: %s", out)
	}
}
