package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarimov/payguard/internal/models"
	"github.com/akarimov/payguard/internal/store/memory"
	"github.com/akarimov/payguard/pkg/errors"
)

func newTestSessionService(t *testing.T) (*SessionService, *memory.Store, *fakeClock) {
	t.Helper()

	st := memory.New()
	svc := NewSessionService(st)

	clock := newFakeClock()
	svc.now = clock.Now
	return svc, st, clock
}

func seedUser(t *testing.T, st *memory.Store, id, username string, balance int64) {
	t.Helper()
	err := st.CreateUser(context.Background(), &models.User{
		ID:           id,
		Username:     username,
		PasswordHash: "irrelevant",
		BalanceCents: balance,
	})
	require.NoError(t, err)
}

func TestIssueAndValidate(t *testing.T) {
	svc, st, _ := newTestSessionService(t)
	ctx := context.Background()
	seedUser(t, st, "u1", "alice", 800)

	token, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, token, 64, "32 random bytes, hex encoded")

	user, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(800), user.BalanceCents)
	assert.Empty(t, user.PasswordHash)
}

func TestIssueTokensAreUnique(t *testing.T) {
	svc, st, _ := newTestSessionService(t)
	ctx := context.Background()
	seedUser(t, st, "u1", "alice", 800)

	a, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)
	b, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestValidateUnknownToken(t *testing.T) {
	svc, _, _ := newTestSessionService(t)

	_, err := svc.Validate(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)

	_, err = svc.Validate(context.Background(), "")
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)
}

func TestValidateExpiryBoundary(t *testing.T) {
	svc, st, clock := newTestSessionService(t)
	ctx := context.Background()
	seedUser(t, st, "u1", "alice", 800)

	token, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	// One second short of the 24h lifetime the session still validates.
	clock.Advance(86399 * time.Second)
	_, err = svc.Validate(ctx, token)
	require.NoError(t, err)

	// At exactly 86400 seconds it is gone, same error as never-existed.
	clock.Advance(1 * time.Second)
	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)
}

func TestRevoke(t *testing.T) {
	svc, st, _ := newTestSessionService(t)
	ctx := context.Background()
	seedUser(t, st, "u1", "alice", 800)

	token, err := svc.Issue(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, token))

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)

	// Revocation is idempotent: repeating it, or revoking a token that
	// never existed, still succeeds.
	assert.NoError(t, svc.Revoke(ctx, token))
	assert.NoError(t, svc.Revoke(ctx, "never-issued"))
}

func TestValidateDanglingUser(t *testing.T) {
	svc, _, _ := newTestSessionService(t)
	ctx := context.Background()

	// A session whose user is missing must fail validation, not crash.
	token, err := svc.Issue(ctx, "ghost")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, errors.ErrTokenInvalid)
}
