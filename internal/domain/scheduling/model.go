package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// SlotInterval is the length of a bookable slot in minutes.
const SlotInterval = 30

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

// Doctor is the slice of a doctor profile scheduling needs.
type Doctor struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email,omitempty"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"licenseNumber"`
	Phone         *string   `json:"phone,omitempty"`
}

// ScheduleEntry is one weekly working window of a doctor.
// DayOfWeek counts from Sunday = 0.
type ScheduleEntry struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctorId"`
	DoctorName string    `db:"-" json:"doctorName,omitempty"`
	DayOfWeek  int       `db:"day_of_week" json:"dayOfWeek"`
	StartTime  TimeOfDay `db:"start_min" json:"startTime"`
	EndTime    TimeOfDay `db:"end_min" json:"endTime"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

func (e ScheduleEntry) Window() Window {
	return Window{Start: e.StartTime, End: e.EndTime}
}

// ScheduleInput is the writable part of a ScheduleEntry.
type ScheduleInput struct {
	DayOfWeek int    `json:"dayOfWeek"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type Appointment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctorId"`
	DoctorName   string    `db:"-" json:"doctorName,omitempty"`
	PatientName  string    `db:"patient_name" json:"patientName"`
	PatientEmail string    `db:"patient_email" json:"patientEmail"`
	PatientPhone *string   `db:"patient_phone" json:"telefone,omitempty"`
	ScheduledAt  time.Time `db:"scheduled_at" json:"scheduledAt"`
	Status       Status    `db:"status" json:"status"`
	ReminderSent bool      `db:"reminder_sent" json:"reminderSent"`
	Notes        *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`

	// Date and Time are ScheduledAt in the clinic's zone.
	Date string `db:"-" json:"date"`
	Time string `db:"-" json:"time"`
}

// BookingRequest is a public booking as submitted by a patient.
type BookingRequest struct {
	PatientName  string `json:"patientName"`
	PatientEmail string `json:"patientEmail"`
	Phone        string `json:"telefone"`
	DoctorID     string `json:"doctorId"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// AppointmentFilter narrows a staff appointment listing. Date is a clinic
// calendar day in YYYY-MM-DD form.
type AppointmentFilter struct {
	DoctorID *uuid.UUID
	Status   Status
	Date     string
}

// ReminderReport summarises one reminder dispatch.
type ReminderReport struct {
	Due    int `json:"due"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type DoctorDetail struct {
	Doctor
	Schedules []*ScheduleEntry `json:"schedules"`
	Upcoming  []*Appointment   `json:"upcomingAppointments"`
}

type Dashboard struct {
	DoctorID   uuid.UUID      `json:"doctorId"`
	Today      int            `json:"todayAppointments"`
	ThisWeek   int            `json:"weekAppointments"`
	Upcoming   []*Appointment `json:"nextAppointments"`
	LastThirty map[Status]int `json:"last30Days"`
}
