package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/db"
)

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT d.id, u.name, u.email, d.specialty, d.license_number, d.phone
		FROM doctors d JOIN users u ON u.id = d.user_id
		WHERE d.id = $1`, id).
		Scan(&d.ID, &d.Name, &d.Email, &d.Specialty, &d.LicenseNumber, &d.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("doctor %s not found", id)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get doctor")
	}
	return &d, nil
}

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const schedCols = `s.id, s.doctor_id, u.name, s.day_of_week, s.start_min, s.end_min, s.created_at, s.updated_at`

const schedFrom = `FROM weekly_schedules s
	JOIN doctors d ON d.id = s.doctor_id
	JOIN users u ON u.id = d.user_id`

func scanSchedule(row pgx.Row) (*ScheduleEntry, error) {
	var e ScheduleEntry
	var start, end int
	if err := row.Scan(&e.ID, &e.DoctorID, &e.DoctorName, &e.DayOfWeek, &start, &end,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.StartTime, e.EndTime = TimeOfDay(start), TimeOfDay(end)
	return &e, nil
}

func scheduleWriteErr(err error, op string) error {
	if db.IsPgCode(err, db.ExclusionViolation) {
		return apperr.ScheduleConflict("schedule overlaps an existing window")
	}
	return apperr.Storage(err, op)
}

func (r *scheduleRepoPG) Create(ctx context.Context, e *ScheduleEntry) error {
	e.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO weekly_schedules (id, doctor_id, day_of_week, start_min, end_min)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		e.ID, e.DoctorID, e.DayOfWeek, int(e.StartTime), int(e.EndTime)).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return scheduleWriteErr(err, "create schedule")
	}
	return nil
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduleEntry, error) {
	e, err := scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+schedCols+` `+schedFrom+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("schedule %s not found", id)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get schedule")
	}
	return e, nil
}

func (r *scheduleRepoPG) Update(ctx context.Context, e *ScheduleEntry) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE weekly_schedules
		SET day_of_week = $2, start_min = $3, end_min = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		e.ID, e.DayOfWeek, int(e.StartTime), int(e.EndTime)).
		Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("schedule %s not found", e.ID)
	}
	if err != nil {
		return scheduleWriteErr(err, "update schedule")
	}
	return nil
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM weekly_schedules WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage(err, "delete schedule")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule %s not found", id)
	}
	return nil
}

func (r *scheduleRepoPG) List(ctx context.Context, doctorID *uuid.UUID) ([]*ScheduleEntry, error) {
	query := `SELECT ` + schedCols + ` ` + schedFrom
	var args []interface{}
	if doctorID != nil {
		query += ` WHERE s.doctor_id = $1`
		args = append(args, *doctorID)
	}
	query += ` ORDER BY s.day_of_week, s.start_min`
	return r.query(ctx, "list schedules", query, args...)
}

func (r *scheduleRepoPG) ListByDay(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) ([]*ScheduleEntry, error) {
	return r.query(ctx, "list schedules by day",
		`SELECT `+schedCols+` `+schedFrom+`
		WHERE s.doctor_id = $1 AND s.day_of_week = $2
		ORDER BY s.start_min`, doctorID, dayOfWeek)
}

func (r *scheduleRepoPG) query(ctx context.Context, op, query string, args ...interface{}) ([]*ScheduleEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, op)
	}
	defer rows.Close()
	var items []*ScheduleEntry
	for rows.Next() {
		e, err := scanSchedule(rows)
		if err != nil {
			return nil, apperr.Storage(err, op)
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, op)
	}
	return items, nil
}

// LockDoctor takes a transaction-scoped advisory lock keyed on the doctor.
// Outside a transaction the lock is released when the statement ends.
func (r *scheduleRepoPG) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "schedule:"+doctorID.String())
	if err != nil {
		return apperr.Storage(err, "lock doctor schedule")
	}
	return nil
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const apptCols = `a.id, a.doctor_id, u.name, a.patient_name, a.patient_email, a.patient_phone,
	a.scheduled_at, a.status, a.reminder_sent, a.notes, a.created_at, a.updated_at`

const apptFrom = `FROM appointments a
	JOIN doctors d ON d.id = a.doctor_id
	JOIN users u ON u.id = d.user_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(&a.ID, &a.DoctorID, &a.DoctorName, &a.PatientName, &a.PatientEmail,
		&a.PatientPhone, &a.ScheduledAt, &status, &a.ReminderSent, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func appointmentWriteErr(err error, op string) error {
	if db.IsPgCode(err, db.UniqueViolation) {
		return apperr.SlotUnavailable("time slot is no longer available")
	}
	return apperr.Storage(err, op)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_name, patient_email, patient_phone,
			scheduled_at, status, reminder_sent, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.DoctorID, a.PatientName, a.PatientEmail, a.PatientPhone,
		a.ScheduledAt, string(a.Status), a.ReminderSent, a.Notes).
		Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return appointmentWriteErr(err, "create appointment")
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` `+apptFrom+` WHERE a.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("appointment %s not found", id)
	}
	if err != nil {
		return nil, apperr.Storage(err, "get appointment")
	}
	return a, nil
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return appointmentWriteErr(err, "update appointment status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment %s not found", id)
	}
	return nil
}

func (r *appointmentRepoPG) BookedTimes(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT scheduled_at FROM appointments
		WHERE doctor_id = $1 AND status = 'SCHEDULED'
			AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at`, doctorID, from, to)
	if err != nil {
		return nil, apperr.Storage(err, "list booked times")
	}
	defer rows.Close()
	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, apperr.Storage(err, "list booked times")
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "list booked times")
	}
	return times, nil
}

func (r *appointmentRepoPG) Search(ctx context.Context, f SearchParams, limit, offset int) ([]*Appointment, int, error) {
	where := []string{"1=1"}
	var args []interface{}
	idx := 1

	if f.DoctorID != nil {
		where = append(where, fmt.Sprintf("a.doctor_id = $%d", idx))
		args = append(args, *f.DoctorID)
		idx++
	}
	if f.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", idx))
		args = append(args, string(f.Status))
		idx++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("a.scheduled_at >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("a.scheduled_at < $%d", idx))
		args = append(args, *f.To)
		idx++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments a WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage(err, "count appointments")
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY a.scheduled_at LIMIT $%d OFFSET $%d`,
		apptCols, apptFrom, whereClause, idx, idx+1)
	args = append(args, limit, offset)

	items, err := r.query(ctx, "search appointments", query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	return r.query(ctx, "list due reminders",
		`SELECT `+apptCols+` `+apptFrom+`
		WHERE a.status = 'SCHEDULED' AND a.reminder_sent = FALSE
			AND a.scheduled_at >= $1 AND a.scheduled_at <= $2
		ORDER BY a.scheduled_at`, from, to)
}

func (r *appointmentRepoPG) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET reminder_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage(err, "mark reminder sent")
	}
	return nil
}

func (r *appointmentRepoPG) CountScheduled(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND status = 'SCHEDULED'
			AND scheduled_at >= $2 AND scheduled_at < $3`, doctorID, from, to).Scan(&n)
	if err != nil {
		return 0, apperr.Storage(err, "count scheduled appointments")
	}
	return n, nil
}

func (r *appointmentRepoPG) Upcoming(ctx context.Context, doctorID uuid.UUID, from time.Time, limit int) ([]*Appointment, error) {
	return r.query(ctx, "list upcoming appointments",
		`SELECT `+apptCols+` `+apptFrom+`
		WHERE a.doctor_id = $1 AND a.status = 'SCHEDULED' AND a.scheduled_at >= $2
		ORDER BY a.scheduled_at
		LIMIT $3`, doctorID, from, limit)
}

func (r *appointmentRepoPG) CountByStatusSince(ctx context.Context, doctorID uuid.UUID, since time.Time) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM appointments
		WHERE doctor_id = $1 AND created_at >= $2
		GROUP BY status`, doctorID, since)
	if err != nil {
		return nil, apperr.Storage(err, "count appointments by status")
	}
	defer rows.Close()
	counts := map[Status]int{StatusScheduled: 0, StatusCancelled: 0, StatusCompleted: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, apperr.Storage(err, "count appointments by status")
		}
		counts[Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "count appointments by status")
	}
	return counts, nil
}

func (r *appointmentRepoPG) query(ctx context.Context, op, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Storage(err, op)
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, apperr.Storage(err, op)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, op)
	}
	return items, nil
}
