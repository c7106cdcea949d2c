package devserver_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-keeper/internal/devserver"
	"github.com/jrsteele09/go-session-keeper/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokens(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	tokens := devserver.NewRefreshTokens(devserver.NewMemoryRefreshTokenRepo(), time.Hour, func() time.Time { return now })

	first, err := tokens.Create("client-1", "user-1", "session")
	require.NoError(t, err)
	require.Len(t, first, 64)

	// One live token per user.
	second, err := tokens.Create("client-1", "user-1", "session")
	require.NoError(t, err)
	_, _, err = tokens.Rotate(first)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)

	rt, third, err := tokens.Rotate(second)
	require.NoError(t, err)
	require.Equal(t, "user-1", rt.UserID)
	require.Equal(t, "session", rt.Scope)
	require.NotEqual(t, second, third)

	_, _, err = tokens.Rotate(second)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken, "rotated tokens are single use")

	now = now.Add(time.Hour + time.Second)
	_, _, err = tokens.Rotate(third)
	require.ErrorIs(t, err, errors.ErrRefreshTokenExpired)
	_, _, err = tokens.Rotate(third)
	require.ErrorIs(t, err, errors.ErrInvalidRefreshToken)

	tokens.Revoke("never-issued")
}

func TestDevUser(t *testing.T) {
	u, err := devserver.NewDevUser("john.doe@example.com", "Password1")
	require.NoError(t, err)
	require.Equal(t, "john.doe", u.Name)
	require.NotEqual(t, "Password1", u.PasswordHash)

	require.True(t, u.Authenticate("John.Doe@example.com ", "Password1"))
	require.False(t, u.Authenticate("john.doe@example.com", "password1"))
	require.False(t, u.Authenticate("jane@example.com", "Password1"))
}
