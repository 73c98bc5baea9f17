package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/notification"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) add(name string) *Doctor {
	d := &Doctor{ID: uuid.New(), Name: name, Specialty: "Cardiologia", LicenseNumber: "CRM-" + name}
	m.doctors[d.ID] = d
	return d
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	cp := *d
	return &cp, nil
}

type mockScheduleRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*ScheduleEntry
	locks   int
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{entries: make(map[uuid.UUID]*ScheduleEntry)}
}

func (m *mockScheduleRepo) all() []*ScheduleEntry {
	out := make([]*ScheduleEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Create mirrors the exclusion constraint.
func (m *mockScheduleRepo) Create(_ context.Context, e *ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := CheckConflict(m.all(), *e, nil); err != nil {
		return err
	}
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockScheduleRepo) GetByID(_ context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, apperr.NotFound("schedule %s not found", id)
	}
	cp := *e
	return &cp, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, e *ScheduleEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; !ok {
		return apperr.NotFound("schedule %s not found", e.ID)
	}
	if err := CheckConflict(m.all(), *e, &e.ID); err != nil {
		return err
	}
	e.UpdatedAt = time.Now()
	cp := *e
	m.entries[e.ID] = &cp
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return apperr.NotFound("schedule %s not found", id)
	}
	delete(m.entries, id)
	return nil
}

func (m *mockScheduleRepo) List(_ context.Context, doctorID *uuid.UUID) ([]*ScheduleEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ScheduleEntry
	for _, e := range m.entries {
		if doctorID == nil || e.DoctorID == *doctorID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (m *mockScheduleRepo) ListByDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]*ScheduleEntry, error) {
	all, _ := m.List(ctx, &doctorID)
	var out []*ScheduleEntry
	for _, e := range all {
		if e.DayOfWeek == dayOfWeek {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockScheduleRepo) LockDoctor(_ context.Context, _ uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks++
	return nil
}

type mockApptRepo struct {
	mu       sync.Mutex
	appts    map[uuid.UUID]*Appointment
	doctors  *mockDoctorRepo
	failMark map[uuid.UUID]bool
	now      time.Time
}

func newMockApptRepo(doctors *mockDoctorRepo, now time.Time) *mockApptRepo {
	return &mockApptRepo{
		appts:    make(map[uuid.UUID]*Appointment),
		doctors:  doctors,
		failMark: make(map[uuid.UUID]bool),
		now:      now,
	}
}

func (m *mockApptRepo) slotTaken(doctorID uuid.UUID, at time.Time, except uuid.UUID) bool {
	for _, a := range m.appts {
		if a.ID != except && a.DoctorID == doctorID && a.Status == StatusScheduled && a.ScheduledAt.Equal(at) {
			return true
		}
	}
	return false
}

func (m *mockApptRepo) withDoctor(a *Appointment) *Appointment {
	cp := *a
	if d, ok := m.doctors.doctors[a.DoctorID]; ok {
		cp.DoctorName = d.Name
	}
	return &cp
}

// Create mirrors the partial unique index on scheduled slots.
func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status == StatusScheduled && m.slotTaken(a.DoctorID, a.ScheduledAt, uuid.Nil) {
		return apperr.SlotUnavailable("time slot is no longer available")
	}
	a.ID = uuid.New()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now
	}
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

// seed stores a without the uniqueness check and returns its id.
func (m *mockApptRepo) seed(a Appointment) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now
	}
	m.appts[a.ID] = &a
	return a.ID
}

func (m *mockApptRepo) get(id uuid.UUID) *Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.appts[id]
	return &cp
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	return m.withDoctor(a), nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return apperr.NotFound("appointment %s not found", id)
	}
	if status == StatusScheduled && m.slotTaken(a.DoctorID, a.ScheduledAt, id) {
		return apperr.SlotUnavailable("time slot is no longer available")
	}
	a.Status = status
	return nil
}

func (m *mockApptRepo) BookedTimes(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.Status == StatusScheduled &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to) {
			out = append(out, a.ScheduledAt)
		}
	}
	return out, nil
}

func (m *mockApptRepo) filter(keep func(a *Appointment) bool) []*Appointment {
	var out []*Appointment
	for _, a := range m.appts {
		if keep(a) {
			out = append(out, m.withDoctor(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out
}

func (m *mockApptRepo) Search(_ context.Context, f SearchParams, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(a *Appointment) bool {
		if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
			return false
		}
		if f.Status != "" && a.Status != f.Status {
			return false
		}
		if f.From != nil && a.ScheduledAt.Before(*f.From) {
			return false
		}
		if f.To != nil && !a.ScheduledAt.Before(*f.To) {
			return false
		}
		return true
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockApptRepo) ListDueReminders(_ context.Context, from, to time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *Appointment) bool {
		return a.Status == StatusScheduled && !a.ReminderSent &&
			!a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to)
	}), nil
}

func (m *mockApptRepo) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark[id] {
		return apperr.Storage(context.DeadlineExceeded, "mark reminder sent")
	}
	m.appts[id].ReminderSent = true
	return nil
}

func (m *mockApptRepo) CountScheduled(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Status == StatusScheduled &&
			!a.ScheduledAt.Before(from) && a.ScheduledAt.Before(to)
	})), nil
}

func (m *mockApptRepo) Upcoming(_ context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Status == StatusScheduled && !a.ScheduledAt.Before(from)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockApptRepo) CountByStatusSince(_ context.Context, doctorID uuid.UUID, since time.Time) (map[Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[Status]int{StatusScheduled: 0, StatusCancelled: 0, StatusCompleted: 0}
	for _, a := range m.appts {
		if a.DoctorID == doctorID && !a.CreatedAt.Before(since) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

type mockTx struct {
	mu    sync.Mutex
	calls int
}

func (m *mockTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return fn(ctx)
}

// -- Fixture --

// clinicZone is UTC-3 without daylight saving.
var clinicZone = time.FixedZone("BRT", -3*60*60)

// fixtureNow is Monday 2026-03-16 07:00 in the clinic zone.
var fixtureNow = time.Date(2026, 3, 16, 7, 0, 0, 0, clinicZone)

// -- Mock Metrics --

type mockMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{counts: make(map[string]int)}
}

func (m *mockMetrics) Inc(name, outcome string) {
	m.mu.Lock()
	m.counts[name+"/"+outcome]++
	m.mu.Unlock()
}

func (m *mockMetrics) get(name, outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name+"/"+outcome]
}

type fixture struct {
	svc       *Service
	doctors   *mockDoctorRepo
	schedules *mockScheduleRepo
	appts     *mockApptRepo
	tx        *mockTx
	sender    *notification.MockEmailSender
	mailer    *notification.Mailer
	metrics   *mockMetrics

	doctor *Doctor
	other  *Doctor
}

// newFixture wires a service around in-memory repositories. doctor works
// Mondays 08:00-12:00 and 14:00-17:00 and Tuesdays 08:00-10:00.
func newFixture() *fixture {
	fx := &fixture{
		doctors:   newMockDoctorRepo(),
		schedules: newMockScheduleRepo(),
		tx:        &mockTx{},
		sender:    &notification.MockEmailSender{},
		metrics:   newMockMetrics(),
	}
	fx.appts = newMockApptRepo(fx.doctors, fixtureNow)
	fx.doctor = fx.doctors.add("Ana Souza")
	fx.other = fx.doctors.add("Bruno Lima")

	fx.mailer = notification.NewMailer(fx.sender, notification.NewTemplateEngine(), clinicZone, 24, zerolog.Nop())
	fx.svc = NewService(fx.doctors, fx.schedules, fx.appts, fx.tx, fx.mailer, Config{
		Location:       clinicZone,
		ReminderWindow: 24 * time.Hour,
		NotifyTimeout:  time.Second,
		Now:            func() time.Time { return fixtureNow },
		Logger:         zerolog.Nop(),
		Metrics:        fx.metrics,
	})

	for _, w := range []struct {
		day        int
		start, end TimeOfDay
	}{
		{1, 480, 720},
		{1, 840, 1020},
		{2, 480, 600},
	} {
		e := &ScheduleEntry{DoctorID: fx.doctor.ID, DayOfWeek: w.day, StartTime: w.start, EndTime: w.end}
		if err := fx.schedules.Create(context.Background(), e); err != nil {
			panic(err)
		}
	}
	return fx
}

func (fx *fixture) at(date string, t TimeOfDay) time.Time {
	day, err := time.ParseInLocation(dateLayout, date, clinicZone)
	if err != nil {
		panic(err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, clinicZone)
}

func (fx *fixture) booking(date, t string) BookingRequest {
	return BookingRequest{
		PatientName:  "Maria Silva",
		PatientEmail: "maria@example.com",
		Phone:        "(11) 99999-0000",
		DoctorID:     fx.doctor.ID.String(),
		Date:         date,
		Time:         t,
	}
}
