package scheduling

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SelectDue returns SCHEDULED appointments still waiting for a reminder
// that start within [now, now+window].
func (s *Service) SelectDue(ctx context.Context, now time.Time, window time.Duration) ([]*Appointment, error) {
	return s.appointments.ListDueReminders(ctx, now, now.Add(window))
}

// DispatchReminders sends one reminder per due appointment and marks it
// sent. An appointment whose send or mark fails stays due and is retried on
// the next run, so a patient may occasionally get the reminder twice.
func (s *Service) DispatchReminders(ctx context.Context, now time.Time) (ReminderReport, error) {
	var report ReminderReport
	due, err := s.SelectDue(ctx, now, s.reminderWindow)
	if err != nil {
		return report, err
	}
	report.Due = len(due)

	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		log := s.logger.With().Str("appointment_id", a.ID.String()).Logger()

		if s.notifier == nil {
			report.Failed++
			log.Warn().Msg("no notifier configured, reminder skipped")
			continue
		}
		if err := s.notifier.SendAppointmentReminder(ctx, appointmentMessage(a)); err != nil {
			report.Failed++
			s.metrics.Inc(MetricReminders, "failed")
			log.Error().Err(err).Msg("reminder email failed")
			continue
		}
		if err := s.appointments.MarkReminderSent(ctx, a.ID); err != nil {
			report.Failed++
			s.metrics.Inc(MetricReminders, "failed")
			log.Error().Err(err).Msg("failed to mark reminder sent")
			continue
		}
		report.Sent++
		s.metrics.Inc(MetricReminders, "sent")
	}
	return report, nil
}

// ReminderRunner dispatches reminders on a fixed interval.
type ReminderRunner struct {
	svc      *Service
	interval time.Duration
	logger   zerolog.Logger
}

func NewReminderRunner(svc *Service, interval time.Duration, logger zerolog.Logger) *ReminderRunner {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &ReminderRunner{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}
}

// Run dispatches once immediately and then every interval. It blocks until
// ctx is cancelled.
func (r *ReminderRunner) Run(ctx context.Context) {
	r.logger.Info().Dur("interval", r.interval).Dur("window", r.svc.reminderWindow).Msg("reminder runner started")
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reminder runner stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single dispatch and logs its outcome.
func (r *ReminderRunner) RunOnce(ctx context.Context) ReminderReport {
	report, err := r.svc.DispatchReminders(ctx, r.svc.now())
	ev := r.logger.Info()
	if err != nil {
		ev = r.logger.Error().Err(err)
	} else if report.Failed > 0 {
		ev = r.logger.Warn()
	}
	ev.Int("due", report.Due).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("reminder dispatch finished")
	return report
}
