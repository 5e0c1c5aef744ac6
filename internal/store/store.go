// Package store defines the persistence collaborator used by the auth,
// session and payment services. Each backend implements the same interface;
// business logic never lives in an adapter beyond the conditional updates the
// contract requires to be atomic.
package store

import (
	"context"

	"github.com/akarimov/payguard/internal/models"
)

// Store is the keyed storage every backend adapter implements.
//
// Mutations to a single user (balance, failed attempts, lockout) must be
// linearizable per user; operations on distinct users must not contend.
// Adapters return the sentinel errors from pkg/errors so callers can
// discriminate with errors.Is.
type Store interface {
	// CreateUser persists a new user. Username uniqueness is enforced
	// race-free by the adapter; a duplicate yields ErrDuplicateUsername.
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// IncrementFailedAttempts atomically bumps the user's failed-login
	// counter and returns the new value, so callers can apply the lockout
	// threshold against the count they actually produced.
	IncrementFailedAttempts(ctx context.Context, userID string) (int, error)
	SetLockedUntil(ctx context.Context, userID string, lockedUntil int64) error
	// ResetLoginState clears failed attempts and the lockout timestamp.
	ResetLoginState(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, s *models.Session) error
	// FindLiveSessionByTokenDigest resolves a session by its token digest,
	// treating expired rows as absent. Lookup is O(1) in live sessions.
	FindLiveSessionByTokenDigest(ctx context.Context, digest string, now int64) (*models.Session, error)
	// DeleteSessionByTokenDigest removes a session if present. Deleting an
	// unknown digest is not an error.
	DeleteSessionByTokenDigest(ctx context.Context, digest string) error
	// DeleteExpiredSessions garbage-collects expired rows. Purely an
	// optimization; correctness never depends on it running.
	DeleteExpiredSessions(ctx context.Context, now int64) (int, error)

	// ApplyPayment checks that the user's balance covers p.AmountCents and,
	// in one indivisible step, debits the balance and persists the payment
	// record with the pre/post balances filled in. ErrInsufficientFunds
	// leaves all state untouched.
	ApplyPayment(ctx context.Context, p *models.Payment) error

	Close() error
}
