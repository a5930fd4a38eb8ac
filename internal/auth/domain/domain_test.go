package domain_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	tests := map[string]string{
		"+61 412 345 678": "+61412345678",
		"(02) 9876-5432":  "0298765432",
		"  0412.345.678 ": "0412345678",
		"0412345678":      "0412345678",
		"":                "",
	}
	for in, want := range tests {
		require.Equal(t, want, domain.NormalizePhone(in), "input %q", in)
	}
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "a@x.com", domain.NormalizeEmail("  A@X.com "))
	require.True(t, domain.LooksLikeEmail("a@x.com"))
	require.False(t, domain.LooksLikeEmail("0412 345 678"))
}

func TestUserCredentials(t *testing.T) {
	hash, provider, empty := "$argon2id$...", "google", ""

	u := domain.User{}
	require.False(t, u.HasPassword())
	require.False(t, u.IsLinked())

	u.PasswordHash, u.Provider = &hash, &provider
	require.True(t, u.HasPassword())
	require.True(t, u.IsLinked())

	u.PasswordHash, u.Provider = &empty, &empty
	require.False(t, u.HasPassword())
	require.False(t, u.IsLinked())
}

func TestSessionRoundTrip(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC)

	t.Run("pending", func(t *testing.T) {
		in := domain.Pending2FA{UserID: "u1", Email: "a@x.com", Attempts: 2, ExpiresAt: exp}
		raw, err := domain.MarshalSession(in)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"kind":"pending_2fa"`)
		require.NotContains(t, string(raw), "access_token")

		out, err := domain.UnmarshalSession(raw)
		require.NoError(t, err)
		require.Equal(t, in, out)
	})

	t.Run("authenticated", func(t *testing.T) {
		in := &domain.Authenticated{UserID: "u1", Email: "a@x.com", Role: "user", AccessToken: "a", RefreshToken: "r", TokenExpiresAt: exp}
		raw, err := domain.MarshalSession(in)
		require.NoError(t, err)

		out, err := domain.UnmarshalSession(raw)
		require.NoError(t, err)
		require.Equal(t, *in, out)
		require.Equal(t, domain.SessionAuthenticated, out.Kind())
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := domain.UnmarshalSession([]byte(`{"kind":"both"}`))
		require.Error(t, err)
		_, err = domain.UnmarshalSession([]byte(`{"kind":"pending_2fa"}`))
		require.Error(t, err)
		_, err = domain.UnmarshalSession([]byte(`nope`))
		require.Error(t, err)
	})
}

func TestPending2FA_Expired(t *testing.T) {
	now := time.Now()
	require.False(t, domain.Pending2FA{ExpiresAt: now.Add(time.Minute)}.Expired(now))
	require.True(t, domain.Pending2FA{ExpiresAt: now}.Expired(now))
	require.False(t, domain.Pending2FA{}.Expired(now))
}

func TestErrorMatching(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("logout: %w", domain.Internal(cause))

	require.ErrorIs(t, err, domain.ErrInternalFailure)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, domain.ErrInvalidCredentials)

	de := domain.AsError(err)
	require.Equal(t, http.StatusInternalServerError, de.Status)
	require.Equal(t, domain.KindInternalFailure, de.Kind)

	plain := domain.AsError(errors.New("boom"))
	require.Equal(t, domain.KindInternalFailure, plain.Kind)

	custom := domain.ErrInvalidRequest.WithMessage("email is required")
	require.ErrorIs(t, custom, domain.ErrInvalidRequest)
	require.Equal(t, "Invalid request", domain.ErrInvalidRequest.Message, "sentinel must not be mutated")
}
