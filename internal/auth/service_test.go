package auth

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/inf/reelbox/internal/store"
)

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, st.Close()) })
	return NewService(st, zerolog.Nop(), opts...)
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	u, err := svc.Register(ctx, "alice", "555-0100", "hunter22")
	require.NoError(t, err)
	require.NotZero(t, u.ID)

	token, got, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, u.ID, got.ID)

	// The phone number is an alternate login.
	_, got, err = svc.Login(ctx, "555-0100", "hunter22")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	_, err := svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "nobody", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Register(ctx, "  ", "", "hunter22")
	require.ErrorIs(t, err, ErrBadUsername)

	_, err = svc.Register(ctx, "alice", "", "short")
	require.ErrorIs(t, err, ErrWeakPassword)

	_, err = svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "alice", "", "hunter23")
	require.ErrorIs(t, err, store.ErrUsernameTaken)
}

func TestValidateAndLogout(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	u, err := svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	got, err := svc.Validate(ctx, token)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	svc.Logout(token)
	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.Validate(ctx, "no-such-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokensExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	svc := newTestService(t, WithSessionTTL(time.Hour), WithClock(func() time.Time { return clock() }))

	_, err := svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)
	token, _, err := svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	_, err = svc.Validate(ctx, token)
	require.NoError(t, err)

	clock = func() time.Time { return now.Add(2 * time.Hour) }
	_, err = svc.Validate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	u, err := svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "wrong", "newpassword"), ErrInvalidCredentials)
	require.ErrorIs(t, svc.ChangePassword(ctx, u.ID, "hunter22", "abc"), ErrWeakPassword)
	require.NoError(t, svc.ChangePassword(ctx, u.ID, "hunter22", "newpassword"))

	_, _, err = svc.Login(ctx, "alice", "hunter22")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "alice", "newpassword")
	require.NoError(t, err)
}

func TestPruneExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	svc := newTestService(t, WithSessionTTL(time.Minute), WithClock(func() time.Time { return clock() }))

	_, err := svc.Register(ctx, "alice", "", "hunter22")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)
	_, _, err = svc.Login(ctx, "alice", "hunter22")
	require.NoError(t, err)

	require.Zero(t, svc.PruneExpired())
	clock = func() time.Time { return now.Add(time.Hour) }
	require.Equal(t, 2, svc.PruneExpired())
}
