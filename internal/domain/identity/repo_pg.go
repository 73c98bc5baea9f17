package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
	"github.com/clinic/booking/internal/platform/db"
)

// =========== User Repository ===========

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const userCols = `id, name, email, password_hash, role, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, name, email, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role)).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	if db.IsPgCode(err, db.UniqueViolation) {
		return apperr.Validation("email is already registered")
	}
	if err != nil {
		return apperr.Storage(err, "create user")
	}
	return nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.get(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.get(ctx, `SELECT `+userCols+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *userRepoPG) get(ctx context.Context, query string, arg interface{}) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, apperr.Storage(err, "get user")
	}
	return u, nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *doctorRepoPG) Create(ctx context.Context, d *DoctorProfile) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, specialty, license_number, phone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		d.ID, d.UserID, d.Specialty, d.LicenseNumber, d.Phone).
		Scan(&d.CreatedAt)
	if db.IsPgCode(err, db.UniqueViolation) {
		return apperr.Validation("licenseNumber is already registered")
	}
	if err != nil {
		return apperr.Storage(err, "create doctor")
	}
	return nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error) {
	var d DoctorProfile
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, specialty, license_number, phone, created_at
		FROM doctors WHERE user_id = $1`, userID).
		Scan(&d.ID, &d.UserID, &d.Specialty, &d.LicenseNumber, &d.Phone, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage(err, "get doctor profile")
	}
	return &d, nil
}

func (r *doctorRepoPG) ListPublic(ctx context.Context) ([]*DoctorSummary, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, u.name, d.specialty, d.license_number
		FROM doctors d JOIN users u ON u.id = d.user_id
		ORDER BY u.name`)
	if err != nil {
		return nil, apperr.Storage(err, "list doctors")
	}
	defer rows.Close()
	var items []*DoctorSummary
	for rows.Next() {
		var s DoctorSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Specialty, &s.LicenseNumber); err != nil {
			return nil, apperr.Storage(err, "list doctors")
		}
		items = append(items, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(err, "list doctors")
	}
	return items, nil
}

func (r *doctorRepoPG) List(ctx context.Context, limit, offset int) ([]*DoctorListing, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctors`).Scan(&total); err != nil {
		return nil, 0, apperr.Storage(err, "count doctors")
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT d.id, u.name, d.specialty, d.license_number, u.email, d.phone,
			(SELECT COUNT(*) FROM appointments a
			 WHERE a.doctor_id = d.id AND a.status = 'SCHEDULED')
		FROM doctors d JOIN users u ON u.id = d.user_id
		ORDER BY u.name
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage(err, "list doctors")
	}
	defer rows.Close()
	var items []*DoctorListing
	for rows.Next() {
		var l DoctorListing
		if err := rows.Scan(&l.ID, &l.Name, &l.Specialty, &l.LicenseNumber, &l.Email, &l.Phone,
			&l.ScheduledCount); err != nil {
			return nil, 0, apperr.Storage(err, "list doctors")
		}
		items = append(items, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Storage(err, "list doctors")
	}
	return items, total, nil
}
