package identity

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/clinic/booking/internal/platform/apperr"
	"github.com/clinic/booking/internal/platform/auth"
)

const minPasswordLength = 6

type Service struct {
	users       UserRepository
	doctors     DoctorRepository
	tx          TxRunner
	issuer      *auth.TokenIssuer
	revocations *auth.TokenRevocationStore
	logger      zerolog.Logger
}

func NewService(users UserRepository, doctors DoctorRepository, tx TxRunner, issuer *auth.TokenIssuer, revocations *auth.TokenRevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		doctors:     doctors,
		tx:          tx,
		issuer:      issuer,
		revocations: revocations,
		logger:      logger.With().Str("component", "identity").Logger(),
	}
}

func validateRegister(in *RegisterInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Specialty = strings.TrimSpace(in.Specialty)
	in.LicenseNumber = strings.ToUpper(strings.TrimSpace(in.LicenseNumber))
	in.Phone = strings.TrimSpace(in.Phone)

	if n := utf8.RuneCountInString(in.Name); n < 2 || n > 100 {
		return apperr.Validation("name must be between 2 and 100 characters")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return apperr.Validation("email must be a valid e-mail address")
	}
	if len(in.Password) < minPasswordLength {
		return apperr.Validation("password must be at least %d characters", minPasswordLength)
	}
	if !in.Role.Valid() {
		return apperr.Validation("role must be DOCTOR or RECEPTIONIST")
	}
	if in.Role == auth.RoleDoctor {
		if in.LicenseNumber == "" {
			return apperr.Validation("licenseNumber is required for doctors")
		}
		if in.Specialty == "" {
			return apperr.Validation("specialty is required for doctors")
		}
	}
	return nil
}

// Register creates a staff account. Doctors get their profile in the same
// transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := validateRegister(&in); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: in.Role}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		if in.Role != auth.RoleDoctor {
			return nil
		}
		d := &DoctorProfile{UserID: u.ID, Specialty: in.Specialty, LicenseNumber: in.LicenseNumber}
		if in.Phone != "" {
			phone := in.Phone
			d.Phone = &phone
		}
		if err := s.doctors.Create(ctx, d); err != nil {
			return err
		}
		u.Doctor = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return u, nil
}

// Login checks credentials and issues a session token. Unknown e-mail and
// wrong password produce the same error.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, invalid
		}
		return nil, err
	}
	if err := s.loadDoctor(ctx, u); err != nil {
		return nil, err
	}

	token, expiresAt, err := s.issuer.Issue(u.Principal())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

// Logout revokes the caller's token until it would have expired anyway.
func (s *Service) Logout(_ context.Context, p auth.Principal, expiresAt time.Time) {
	if s.revocations == nil || p.TokenID == "" {
		return
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(s.issuer.TTL())
	}
	s.revocations.Revoke(p.TokenID, expiresAt)
}

// Me returns the account behind p.
func (s *Service) Me(ctx context.Context, p auth.Principal) (*User, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized("account no longer exists")
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadDoctor(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) loadDoctor(ctx context.Context, u *User) error {
	if u.Role != auth.RoleDoctor {
		return nil
	}
	d, err := s.doctors.GetByUserID(ctx, u.ID)
	if err != nil {
		return err
	}
	u.Doctor = d
	return nil
}

func (s *Service) ListPublicDoctors(ctx context.Context) ([]*DoctorSummary, error) {
	items, err := s.doctors.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*DoctorSummary{}
	}
	return items, nil
}

// ListDoctors is the receptionist's directory with booking counts.
func (s *Service) ListDoctors(ctx context.Context, p auth.Principal, limit, offset int) ([]*DoctorListing, int, error) {
	if !p.HasRole(auth.RoleReceptionist) {
		return nil, 0, apperr.Forbidden("only receptionists can list doctors")
	}
	items, total, err := s.doctors.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*DoctorListing{}
	}
	return items, total, nil
}
