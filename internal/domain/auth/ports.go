package auth

import (
	"context"
	"errors"
	"time"
)

// ErrEmailExists is returned by Repository.Create for a duplicate email address.
var ErrEmailExists = errors.New("email already exists")

// Repository persists accounts and their provider identities.
type Repository interface {
	Create(ctx context.Context, email, nickname, passwordHash string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, bool, error)
	GetByID(ctx context.Context, id int64) (User, bool, error)
	FindIdentity(ctx context.Context, provider, subject string) (Identity, bool, error)
	// LinkIdentity stores the link and is a no-op for a subject that is already linked.
	LinkIdentity(ctx context.Context, identity Identity) (Identity, error)
}

// TierResolver prepares the quota row of a user at sign-in and reports the tier tokens carry.
type TierResolver func(ctx context.Context, userID int64) (string, error)

// SessionStore remembers signed-out or rotated sessions until their tokens expire.
type SessionStore interface {
	Revoke(ctx context.Context, sessionID string, until time.Time) error
	Revoked(ctx context.Context, sessionID string) (bool, error)
}
