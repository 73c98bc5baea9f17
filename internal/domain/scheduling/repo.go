package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type DoctorRepository interface {
	// GetByID returns an apperr NotFound error for unknown ids.
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
}

type ScheduleRepository interface {
	// Create reports an overlapping window as apperr ScheduleConflict.
	Create(ctx context.Context, e *ScheduleEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error)
	Update(ctx context.Context, e *ScheduleEntry) error
	Delete(ctx context.Context, id uuid.UUID) error
	// List returns entries ordered by weekday then start time. A nil
	// doctorID lists every doctor.
	List(ctx context.Context, doctorID *uuid.UUID) ([]*ScheduleEntry, error)
	ListByDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]*ScheduleEntry, error)
	// LockDoctor serialises schedule writes for one doctor until the
	// surrounding transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}

type AppointmentRepository interface {
	// Create reports a second SCHEDULED appointment for the same doctor and
	// instant as apperr SlotUnavailable.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// BookedTimes returns the start of every SCHEDULED appointment of the
	// doctor in [from, to).
	BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
	Search(ctx context.Context, f SearchParams, limit, offset int) ([]*Appointment, int, error)
	// ListDueReminders returns SCHEDULED appointments without a reminder
	// whose start lies in [from, to], both ends inclusive.
	ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
	CountScheduled(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)
	Upcoming(ctx context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]*Appointment, error)
	// CountByStatusSince groups appointments created at or after since.
	CountByStatusSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (map[Status]int, error)
}

// SearchParams is an AppointmentFilter with the date resolved to an
// instant range.
type SearchParams struct {
	DoctorID *uuid.UUID
	Status   Status
	From     *time.Time
	To       *time.Time
}

// TxRunner runs fn in a transaction that repositories pick up from ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
