package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role is a staff role.
type Role string

const (
	RoleDoctor       Role = "DOCTOR"
	RoleReceptionist Role = "RECEPTIONIST"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDoctor || r == RoleReceptionist
}

// Principal is the authenticated caller of a staff request.
type Principal struct {
	UserID   uuid.UUID
	Name     string
	Email    string
	Role     Role
	DoctorID *uuid.UUID // set for doctors
	TokenID  string
}

// HasRole reports whether p holds any of roles.
func (p Principal) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// OwnsDoctor reports whether p is the doctor identified by doctorID.
func (p Principal) OwnsDoctor(doctorID uuid.UUID) bool {
	return p.Role == RoleDoctor && p.DoctorID != nil && *p.DoctorID == doctorID
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller set by JWTMiddleware.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
