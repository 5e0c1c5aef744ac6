package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akarimov/payguard/internal/store/memory"
	"github.com/akarimov/payguard/pkg/errors"
)

func newTestAuthService(t *testing.T) (*AuthService, *memory.Store, *fakeClock) {
	t.Helper()

	st := memory.New()
	svc, err := NewAuthService(st)
	require.NoError(t, err)

	clock := newFakeClock()
	svc.now = clock.Now
	return svc, st, clock
}

func TestRegister(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, int64(800), user.BalanceCents)
	assert.Empty(t, user.PasswordHash, "credential must never leave the service")
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"missing username", "", "secret1", errors.ErrMissingFields},
		{"missing password", "alice", "", errors.ErrMissingFields},
		{"five char password", "alice", "abcde", errors.ErrWeakPassword},
		{"six char password ok", "alice", "abcdef", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, st, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "different1")
	assert.ErrorIs(t, err, errors.ErrDuplicateUsername)

	// Still exactly one record for the name.
	u, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(800), u.BalanceCents)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	svc, _, _ := newTestAuthService(t)

	_, err := svc.Authenticate(context.Background(), "nobody", "whatever1")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc, st, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)

	u, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, u.FailedAttempts)
	assert.Zero(t, u.LockedUntil)
}

func TestAuthenticateSuccessResetsAttempts(t *testing.T) {
	svc, st, _ := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = svc.Authenticate(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	}

	user, err := svc.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, int64(800), user.BalanceCents)

	u, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, u.FailedAttempts)
}

func TestLockoutOnFifthFailure(t *testing.T) {
	svc, st, clock := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.Authenticate(ctx, "alice", "wrong-password")
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
	}

	u, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, u.FailedAttempts)
	assert.Equal(t, clock.Now().Unix()+1800, u.LockedUntil)

	// Correct password is rejected while locked, before it is inspected:
	// no attempt counting happens in the locked state.
	_, err = svc.Authenticate(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, errors.ErrAccountLocked)

	u, err = st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 5, u.FailedAttempts)
}

func TestLockoutExpires(t *testing.T) {
	svc, st, clock := newTestAuthService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "secret1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _ = svc.Authenticate(ctx, "alice", "wrong-password")
	}

	// One second before the window closes: still locked.
	clock.Advance(1799 * time.Second)
	_, err = svc.Authenticate(ctx, "alice", "secret1")
	assert.ErrorIs(t, err, errors.ErrAccountLocked)

	// Window elapsed: the correct password succeeds and the counters clear.
	clock.Advance(1 * time.Second)
	user, err := svc.Authenticate(ctx, "alice", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	u, err := st.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Zero(t, u.FailedAttempts)
	assert.Zero(t, u.LockedUntil)
}
