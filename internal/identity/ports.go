package identity

import (
	"context"
	"time"
)

// Repository stores account records. Create fails with ErrEmailTaken when
// the email already belongs to an account.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	SetRoles(ctx context.Context, id string, roles []Role) error
}

// RevocationRepository remembers signed-out token ids until they expire.
type RevocationRepository interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
