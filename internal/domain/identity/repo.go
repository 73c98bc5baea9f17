package identity

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Create reports a duplicate e-mail as an apperr validation error.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

type DoctorRepository interface {
	// Create reports a duplicate license number as an apperr validation error.
	Create(ctx context.Context, d *DoctorProfile) error
	// GetByUserID returns nil and no error for users without a profile.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*DoctorProfile, error)
	ListPublic(ctx context.Context) ([]*DoctorSummary, error)
	List(ctx context.Context, limit, offset int) ([]*DoctorListing, int, error)
}

// TxRunner runs fn in a transaction that repositories pick up from ctx.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
