package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/internal/security"
	"github.com/akarimov/payguard/internal/store"
	"github.com/akarimov/payguard/pkg/errors"
)

const sessionDuration = 24 * time.Hour

// SessionService issues, validates and revokes opaque bearer tokens.
type SessionService struct {
	store store.Store
	now   func() time.Time
}

func NewSessionService(st store.Store) *SessionService {
	return &SessionService{
		store: st,
		now:   time.Now,
	}
}

// Issue mints a session for a user and returns the raw token. Only the
// token's digest is persisted; the raw value leaves this method exactly once
// and cannot be recovered afterwards.
func (s *SessionService) Issue(ctx context.Context, userID string) (string, error) {
	token, err := security.GenerateToken()
	if err != nil {
		return "", err
	}

	now := s.now().Unix()
	sess := &models.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenDigest: security.TokenDigest(token),
		ExpiresAt:   now + int64(sessionDuration/time.Second),
		CreatedAt:   now,
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	return token, nil
}

// Validate resolves a token to its owning user. Unknown, expired and
// dangling sessions all answer ErrTokenInvalid uniformly.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, errors.ErrTokenInvalid
	}

	digest := security.TokenDigest(token)
	sess, err := s.store.FindLiveSessionByTokenDigest(ctx, digest, s.now().Unix())
	if err != nil {
		if stderrors.Is(err, errors.ErrSessionNotFound) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		// A session pointing at a missing user should not happen, but it
		// must degrade to an auth failure, not a fault.
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to resolve session user: %w", err)
	}

	user.PasswordHash = ""
	return user, nil
}

// Revoke deletes the session behind a token. Revoking an unknown or expired
// token is success; logout is idempotent.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.store.DeleteSessionByTokenDigest(ctx, security.TokenDigest(token)); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
