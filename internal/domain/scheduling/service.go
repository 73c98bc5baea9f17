package scheduling

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/internal/platform/notification"
)

const (
	dateLayout = "2006-01-02"

	upcomingDetailLimit    = 10
	upcomingDashboardLimit = 5
)

// Counter families reported through Metrics.
const (
	MetricBookings  = "clinic_bookings_total"
	MetricReminders = "clinic_reminders_total"
)

var phonePattern = regexp.MustCompile(`^[0-9+()\-.\s]{8,20}$`)

// Notifier delivers appointment e-mails. *notification.Mailer implements it.
type Notifier interface {
	SendAppointmentConfirmation(ctx context.Context, a notification.AppointmentMessage) error
	SendAppointmentReminder(ctx context.Context, a notification.AppointmentMessage) error
}

// Metrics counts booking and reminder outcomes. *telemetry.Provider
// implements it.
type Metrics interface {
	Inc(name, outcome string)
}

type nopMetrics struct{}

func (nopMetrics) Inc(string, string) {}

type Config struct {
	// Location is the clinic's zone. Dates, weekdays and slot times are
	// interpreted in it.
	Location *time.Location

	ReminderWindow time.Duration

	// NotifyTimeout bounds the confirmation e-mail sent while booking.
	NotifyTimeout time.Duration

	Now     func() time.Time
	Logger  zerolog.Logger
	Metrics Metrics
}

type Service struct {
	doctors      DoctorRepository
	schedules    ScheduleRepository
	appointments AppointmentRepository
	tx           TxRunner
	notifier     Notifier

	loc            *time.Location
	reminderWindow time.Duration
	notifyTimeout  time.Duration
	now            func() time.Time
	logger         zerolog.Logger
	metrics        Metrics
}

func NewService(doctors DoctorRepository, sched ScheduleRepository, appts AppointmentRepository, tx TxRunner, notifier Notifier, cfg Config) *Service {
	s := &Service{
		doctors:        doctors,
		schedules:      sched,
		appointments:   appts,
		tx:             tx,
		notifier:       notifier,
		loc:            cfg.Location,
		reminderWindow: cfg.ReminderWindow,
		notifyTimeout:  cfg.NotifyTimeout,
		now:            cfg.Now,
		logger:         cfg.Logger.With().Str("component", "scheduling").Logger(),
		metrics:        cfg.Metrics,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.reminderWindow <= 0 {
		s.reminderWindow = 24 * time.Hour
	}
	if s.notifyTimeout <= 0 {
		s.notifyTimeout = 15 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	return s
}

// Location returns the clinic's time zone.
func (s *Service) Location() *time.Location { return s.loc }

// -- Availability --

// Availability lists the free slots of a doctor on a calendar date.
func (s *Service) Availability(ctx context.Context, doctorID uuid.UUID, date string) ([]TimeOfDay, error) {
	day, err := s.parseDate("date", date)
	if err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.freeSlots(ctx, doctorID, day)
}

func (s *Service) freeSlots(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]TimeOfDay, error) {
	entries, err := s.schedules.ListByDay(ctx, doctorID, int(day.Weekday()))
	if err != nil {
		return nil, err
	}
	free := []TimeOfDay{}
	if len(entries) == 0 {
		return free, nil
	}

	booked, err := s.appointments.BookedTimes(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	taken := make(map[TimeOfDay]bool, len(booked))
	for _, t := range booked {
		local := t.In(s.loc)
		taken[TimeOfDay(local.Hour()*60+local.Minute())] = true
	}

	for _, e := range entries {
		slots, err := GenerateSlots(e.StartTime, e.EndTime, SlotInterval)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if taken[slot] || !s.onClock(day, slot) {
				continue
			}
			taken[slot] = true
			free = append(free, slot)
		}
	}
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })
	return free, nil
}

func (s *Service) parseDate(field, value string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, value, s.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("%s must be a date in YYYY-MM-DD format", field)
	}
	return day, nil
}

func (s *Service) at(day time.Time, t TimeOfDay) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, s.loc)
}

// onClock reports whether t exists on day's wall clock. Times skipped by a
// daylight-saving jump do not.
func (s *Service) onClock(day time.Time, t TimeOfDay) bool {
	at := s.at(day, t)
	return at.Hour() == t.Hour() && at.Minute() == t.Minute()
}

func (s *Service) startOfDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// localize fills the clinic-zone date and time of a.
func (s *Service) localize(a *Appointment) {
	local := a.ScheduledAt.In(s.loc)
	a.Date = local.Format(dateLayout)
	a.Time = local.Format("15:04")
}

func (s *Service) localizeAll(items []*Appointment) {
	for _, a := range items {
		s.localize(a)
	}
}

// -- Booking --

type booking struct {
	name     string
	email    string
	phone    *string
	doctorID uuid.UUID
	day      time.Time
	time     TimeOfDay
}

func (s *Service) validateBooking(req BookingRequest) (*booking, error) {
	b := &booking{
		name:  strings.TrimSpace(req.PatientName),
		email: strings.TrimSpace(req.PatientEmail),
	}
	if n := utf8.RuneCountInString(b.name); n < 2 || n > 100 {
		return nil, apperr.Validation("patientName must be between 2 and 100 characters")
	}
	addr, err := mail.ParseAddress(b.email)
	if err != nil || addr.Address != b.email {
		return nil, apperr.Validation("patientEmail must be a valid e-mail address")
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		if !phonePattern.MatchString(phone) {
			return nil, apperr.Validation("telefone must be a valid phone number")
		}
		b.phone = &phone
	}
	b.doctorID, err = uuid.Parse(req.DoctorID)
	if err != nil {
		return nil, apperr.Validation("doctorId must be a valid id")
	}
	if b.day, err = s.parseDate("date", req.Date); err != nil {
		return nil, err
	}
	if b.time, err = ParseTimeOfDay(req.Time); err != nil {
		return nil, apperr.Validation("time must be in HH:MM format")
	}
	return b, nil
}

// Book reserves a free slot for a patient and sends the confirmation
// e-mail. A delivery failure is logged and does not fail the booking.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	a, err := s.book(ctx, req)
	s.metrics.Inc(MetricBookings, bookingOutcome(err))
	return a, err
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "booked"
	case errors.Is(err, apperr.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, apperr.ErrValidation):
		return "invalid"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

func (s *Service) book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	b, err := s.validateBooking(req)
	if err != nil {
		return nil, err
	}
	scheduledAt := s.at(b.day, b.time)
	if scheduledAt.Before(s.now()) {
		return nil, apperr.Validation("appointment must be in the future")
	}

	doctor, err := s.doctors.GetByID(ctx, b.doctorID)
	if err != nil {
		return nil, err
	}

	free, err := s.freeSlots(ctx, doctor.ID, b.day)
	if err != nil {
		return nil, err
	}
	if !containsSlot(free, b.time) {
		return nil, apperr.SlotUnavailable("time slot %s on %s is not available", b.time, req.Date)
	}

	a := &Appointment{
		DoctorID:     doctor.ID,
		PatientName:  b.name,
		PatientEmail: b.email,
		PatientPhone: b.phone,
		ScheduledAt:  scheduledAt,
		Status:       StatusScheduled,
	}
	if err := s.appointments.Create(ctx, a); err != nil {
		return nil, err
	}
	a.DoctorName = doctor.Name
	s.localize(a)

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", doctor.ID.String()).
		Time("scheduled_at", a.ScheduledAt).
		Msg("appointment booked")

	s.sendConfirmation(ctx, a)
	return a, nil
}

func containsSlot(slots []TimeOfDay, t TimeOfDay) bool {
	i := sort.Search(len(slots), func(i int) bool { return slots[i] >= t })
	return i < len(slots) && slots[i] == t
}

func (s *Service) sendConfirmation(ctx context.Context, a *Appointment) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendAppointmentConfirmation(ctx, appointmentMessage(a)); err != nil {
		s.logger.Error().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("confirmation email failed")
	}
}

func appointmentMessage(a *Appointment) notification.AppointmentMessage {
	return notification.AppointmentMessage{
		AppointmentID: a.ID,
		PatientName:   a.PatientName,
		PatientEmail:  a.PatientEmail,
		DoctorName:    a.DoctorName,
		ScheduledAt:   a.ScheduledAt,
	}
}

// -- Schedules --

func ownDoctorID(p auth.Principal) (uuid.UUID, error) {
	if !p.HasRole(auth.RoleDoctor) || p.DoctorID == nil {
		return uuid.Nil, apperr.Forbidden("only doctors can manage schedules")
	}
	return *p.DoctorID, nil
}

func parseScheduleInput(in ScheduleInput) (*ScheduleEntry, error) {
	if in.DayOfWeek < 0 || in.DayOfWeek > 6 {
		return nil, apperr.Validation("dayOfWeek must be between 0 (Sunday) and 6 (Saturday)")
	}
	start, err := ParseTimeOfDay(in.StartTime)
	if err != nil {
		return nil, apperr.Validation("startTime must be in HH:MM format")
	}
	end, err := ParseTimeOfDay(in.EndTime)
	if err != nil {
		return nil, apperr.Validation("endTime must be in HH:MM format")
	}
	if start >= end {
		return nil, apperr.Validation("endTime must be after startTime")
	}
	return &ScheduleEntry{DayOfWeek: in.DayOfWeek, StartTime: start, EndTime: end}, nil
}

// CreateSchedule adds a weekly window to the caller's own schedule.
func (s *Service) CreateSchedule(ctx context.Context, p auth.Principal, in ScheduleInput) (*ScheduleEntry, error) {
	doctorID, err := ownDoctorID(p)
	if err != nil {
		return nil, err
	}
	entry, err := parseScheduleInput(in)
	if err != nil {
		return nil, err
	}
	entry.DoctorID = doctorID

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.schedules.LockDoctor(ctx, doctorID); err != nil {
			return err
		}
		existing, err := s.schedules.ListByDay(ctx, doctorID, entry.DayOfWeek)
		if err != nil {
			return err
		}
		if err := CheckConflict(existing, *entry, nil); err != nil {
			return err
		}
		return s.schedules.Create(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// UpdateSchedule replaces one of the caller's windows.
func (s *Service) UpdateSchedule(ctx context.Context, p auth.Principal, id uuid.UUID, in ScheduleInput) (*ScheduleEntry, error) {
	doctorID, err := ownDoctorID(p)
	if err != nil {
		return nil, err
	}
	changes, err := parseScheduleInput(in)
	if err != nil {
		return nil, err
	}

	var entry *ScheduleEntry
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.schedules.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.DoctorID != doctorID {
			return apperr.Forbidden("schedule belongs to another doctor")
		}
		if err := s.schedules.LockDoctor(ctx, doctorID); err != nil {
			return err
		}
		current.DayOfWeek = changes.DayOfWeek
		current.StartTime = changes.StartTime
		current.EndTime = changes.EndTime

		existing, err := s.schedules.ListByDay(ctx, doctorID, current.DayOfWeek)
		if err != nil {
			return err
		}
		if err := CheckConflict(existing, *current, &current.ID); err != nil {
			return err
		}
		if err := s.schedules.Update(ctx, current); err != nil {
			return err
		}
		entry = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, p auth.Principal, id uuid.UUID) error {
	doctorID, err := ownDoctorID(p)
	if err != nil {
		return err
	}
	current, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.DoctorID != doctorID {
		return apperr.Forbidden("schedule belongs to another doctor")
	}
	return s.schedules.Delete(ctx, id)
}

// ListSchedules returns a doctor's own windows. Receptionists see every
// doctor's, optionally narrowed to one.
func (s *Service) ListSchedules(ctx context.Context, p auth.Principal, doctorID *uuid.UUID) ([]*ScheduleEntry, error) {
	switch {
	case p.HasRole(auth.RoleDoctor):
		if p.DoctorID == nil {
			return nil, apperr.Forbidden("no doctor profile linked to this account")
		}
		doctorID = p.DoctorID
	case p.HasRole(auth.RoleReceptionist):
	default:
		return nil, apperr.Forbidden("staff access required")
	}
	items, err := s.schedules.List(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*ScheduleEntry{}
	}
	return items, nil
}

// -- Appointments --

// authorizeDoctor lets receptionists act on any doctor and doctors only on
// themselves.
func authorizeDoctor(p auth.Principal, doctorID uuid.UUID) error {
	switch {
	case p.HasRole(auth.RoleReceptionist):
		return nil
	case p.HasRole(auth.RoleDoctor):
		if p.OwnsDoctor(doctorID) {
			return nil
		}
		return apperr.Forbidden("access restricted to your own appointments")
	}
	return apperr.Forbidden("staff access required")
}

func (s *Service) ListAppointments(ctx context.Context, p auth.Principal, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	params := SearchParams{DoctorID: f.DoctorID, Status: f.Status}
	switch {
	case p.HasRole(auth.RoleDoctor):
		if p.DoctorID == nil {
			return nil, 0, apperr.Forbidden("no doctor profile linked to this account")
		}
		params.DoctorID = p.DoctorID
	case p.HasRole(auth.RoleReceptionist):
	default:
		return nil, 0, apperr.Forbidden("staff access required")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("status must be one of SCHEDULED, CANCELLED, COMPLETED")
	}
	if f.Date != "" {
		day, err := s.parseDate("date", f.Date)
		if err != nil {
			return nil, 0, err
		}
		next := day.AddDate(0, 0, 1)
		params.From, params.To = &day, &next
	}

	items, total, err := s.appointments.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	s.localizeAll(items)
	return items, total, nil
}

// UpdateAppointmentStatus moves an appointment between statuses. Moving a
// cancelled appointment back to SCHEDULED fails with SlotUnavailable when
// the slot has been rebooked.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, p auth.Principal, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, apperr.Validation("status must be one of SCHEDULED, CANCELLED, COMPLETED")
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeDoctor(p, a.DoctorID); err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status
	s.localize(a)
	return a, nil
}

// CancelAppointment is the receptionist's cancel action.
func (s *Service) CancelAppointment(ctx context.Context, p auth.Principal, id uuid.UUID) (*Appointment, error) {
	if !p.HasRole(auth.RoleReceptionist) {
		return nil, apperr.Forbidden("only receptionists can cancel appointments")
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, id, StatusCancelled); err != nil {
		return nil, err
	}
	a.Status = StatusCancelled
	s.localize(a)
	return a, nil
}

// -- Doctor views --

func (s *Service) DoctorDetail(ctx context.Context, p auth.Principal, doctorID uuid.UUID) (*DoctorDetail, error) {
	if err := authorizeDoctor(p, doctorID); err != nil {
		return nil, err
	}
	doctor, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	schedules, err := s.schedules.List(ctx, &doctorID)
	if err != nil {
		return nil, err
	}
	upcoming, err := s.appointments.Upcoming(ctx, doctorID, s.now(), upcomingDetailLimit)
	if err != nil {
		return nil, err
	}
	if schedules == nil {
		schedules = []*ScheduleEntry{}
	}
	if upcoming == nil {
		upcoming = []*Appointment{}
	}
	s.localizeAll(upcoming)
	return &DoctorDetail{Doctor: *doctor, Schedules: schedules, Upcoming: upcoming}, nil
}

// Dashboard summarises a doctor's workload. Weeks start on Sunday.
func (s *Service) Dashboard(ctx context.Context, p auth.Principal, doctorID uuid.UUID) (*Dashboard, error) {
	if err := authorizeDoctor(p, doctorID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetByID(ctx, doctorID); err != nil {
		return nil, err
	}

	now := s.now()
	today := s.startOfDay(now)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))

	d := &Dashboard{DoctorID: doctorID}
	var err error
	if d.Today, err = s.appointments.CountScheduled(ctx, doctorID, today, today.AddDate(0, 0, 1)); err != nil {
		return nil, err
	}
	if d.ThisWeek, err = s.appointments.CountScheduled(ctx, doctorID, weekStart, weekStart.AddDate(0, 0, 7)); err != nil {
		return nil, err
	}
	if d.Upcoming, err = s.appointments.Upcoming(ctx, doctorID, now, upcomingDashboardLimit); err != nil {
		return nil, err
	}
	if d.LastThirty, err = s.appointments.CountByStatusSince(ctx, doctorID, now.AddDate(0, 0, -30)); err != nil {
		return nil, err
	}
	if d.Upcoming == nil {
		d.Upcoming = []*Appointment{}
	}
	s.localizeAll(d.Upcoming)
	return d, nil
}
