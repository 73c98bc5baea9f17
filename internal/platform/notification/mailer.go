package notification

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AppointmentMessage is what a patient e-mail says about an appointment.
type AppointmentMessage struct {
	AppointmentID uuid.UUID
	PatientName   string
	PatientEmail  string
	DoctorName    string
	ScheduledAt   time.Time
}

// Mailer renders appointment templates and hands them to an EmailSender.
// Dates are formatted day/month/year in the clinic's location.
type Mailer struct {
	sender        EmailSender
	templates     *TemplateEngine
	loc           *time.Location
	reminderHours int
	logger        zerolog.Logger

	sent   atomic.Int64
	failed atomic.Int64
}

func NewMailer(sender EmailSender, templates *TemplateEngine, loc *time.Location, reminderHours int, logger zerolog.Logger) *Mailer {
	if loc == nil {
		loc = time.UTC
	}
	return &Mailer{
		sender:        sender,
		templates:     templates,
		loc:           loc,
		reminderHours: reminderHours,
		logger:        logger.With().Str("component", "mailer").Logger(),
	}
}

func (m *Mailer) SendAppointmentConfirmation(ctx context.Context, a AppointmentMessage) error {
	return m.send(ctx, TemplateConfirmation, a)
}

func (m *Mailer) SendAppointmentReminder(ctx context.Context, a AppointmentMessage) error {
	return m.send(ctx, TemplateReminder, a)
}

func (m *Mailer) send(ctx context.Context, templateID string, a AppointmentMessage) error {
	at := a.ScheduledAt.In(m.loc)
	msg, err := m.templates.Render(templateID, a.PatientEmail, map[string]string{
		"patient_name":   a.PatientName,
		"doctor_name":    a.DoctorName,
		"date":           at.Format("02/01/2006"),
		"time":           at.Format("15:04"),
		"appointment_id": a.AppointmentID.String(),
		"reminder_hours": strconv.Itoa(m.reminderHours),
	})
	if err != nil {
		m.failed.Add(1)
		return apperr.Notification(err, "render %s", templateID)
	}

	if err := m.sender.SendEmail(ctx, msg); err != nil {
		m.failed.Add(1)
		return apperr.Notification(err, "send %s to %s", templateID, a.PatientEmail)
	}

	m.sent.Add(1)
	m.logger.Debug().
		Str("template", templateID).
		Str("appointment_id", a.AppointmentID.String()).
		Msg("email sent")
	return nil
}

// Stats reports delivery counts since start.
func (m *Mailer) Stats() map[string]int64 {
	return map[string]int64{
		"sent":   m.sent.Load(),
		"failed": m.failed.Load(),
	}
}
