package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/booking/internal/platform/auth"
)

// User is a staff account.
type User struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Email        string         `db:"email" json:"email"`
	PasswordHash string         `db:"password_hash" json:"-"`
	Role         auth.Role      `db:"role" json:"role"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updatedAt"`
	Doctor       *DoctorProfile `db:"-" json:"doctor,omitempty"`
}

// Principal is the identity u acts as once authenticated.
func (u *User) Principal() auth.Principal {
	p := auth.Principal{UserID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
	if u.Doctor != nil {
		id := u.Doctor.ID
		p.DoctorID = &id
	}
	return p
}

// DoctorProfile is the professional record attached to a DOCTOR user.
type DoctorProfile struct {
	ID            uuid.UUID `db:"id" json:"id"`
	UserID        uuid.UUID `db:"user_id" json:"userId"`
	Specialty     string    `db:"specialty" json:"specialty"`
	LicenseNumber string    `db:"license_number" json:"licenseNumber"`
	Phone         *string   `db:"phone" json:"phone,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// DoctorSummary is the public listing entry.
type DoctorSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"licenseNumber"`
}

// DoctorListing is the staff listing entry.
type DoctorListing struct {
	DoctorSummary
	Email          string  `json:"email"`
	Phone          *string `json:"phone,omitempty"`
	ScheduledCount int     `json:"scheduledAppointments"`
}

type RegisterInput struct {
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Password      string    `json:"password"`
	Role          auth.Role `json:"role"`
	Specialty     string    `json:"specialty"`
	LicenseNumber string    `json:"licenseNumber"`
	Phone         string    `json:"phone"`
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}
