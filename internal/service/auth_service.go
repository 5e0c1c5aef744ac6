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
	"github.com/akarimov/payguard/pkg/validator"
)

const (
	maxFailedLoginAttempts = 5
	accountLockDuration    = 30 * time.Minute
)

// AuthService owns registration and the login lockout state machine.
type AuthService struct {
	store     store.Store
	hasher    *security.PasswordHasher
	validator *validator.Validator
	decoyHash string
	now       func() time.Time
}

// NewAuthService creates a new authentication service. The decoy hash is
// verified against whenever a username does not exist, so unknown-user and
// wrong-password attempts cost the same and return the identical error.
func NewAuthService(st store.Store) (*AuthService, error) {
	hasher := security.NewPasswordHasher()
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("failed to build decoy hash: %w", err)
	}

	return &AuthService{
		store:     st,
		hasher:    hasher,
		validator: validator.New(),
		decoyHash: decoy,
		now:       time.Now,
	}, nil
}

// Register creates a new account with the starting balance. The store
// enforces username uniqueness race-free; two concurrent registrations with
// the same name cannot both succeed.
func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = s.validator.SanitizeString(username)

	if err := s.validator.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePassword(password); err != nil {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		BalanceCents: models.StartingBalanceCents,
		CreatedAt:    s.now().Unix(),
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateUsername) {
			return nil, errors.ErrDuplicateUsername
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// The caller gets the identity, never the credential.
	user.PasswordHash = ""
	return user, nil
}

// Authenticate validates a credential pair and drives the lockout machine.
//
// Order matters: the lock is checked before the password is even looked at,
// so a locked account answers identically for right and wrong passwords and
// no attempt counting happens while locked.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	username = s.validator.SanitizeString(username)
	if username == "" || password == "" {
		return nil, errors.ErrMissingFields
	}

	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			// Burn the same verification cost as a real mismatch.
			_, _ = s.hasher.Verify(password, s.decoyHash)
			return nil, errors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	now := s.now().Unix()
	if user.Locked(now) {
		return nil, errors.ErrAccountLocked
	}

	valid, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if !valid {
		attempts, err := s.store.IncrementFailedAttempts(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", err)
		}
		if attempts >= maxFailedLoginAttempts {
			until := now + int64(accountLockDuration/time.Second)
			if err := s.store.SetLockedUntil(ctx, user.ID, until); err != nil {
				return nil, fmt.Errorf("failed to lock account: %w", err)
			}
		}
		return nil, errors.ErrInvalidCredentials
	}

	if err := s.store.ResetLoginState(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("failed to reset login state: %w", err)
	}

	user.FailedAttempts = 0
	user.LockedUntil = 0
	user.PasswordHash = ""
	return user, nil
}
