package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
)

const testPassword = "Abc12345"

// enableTwoFactor walks setup and verification and returns the secret and
// the plaintext backup codes.
func (h *harness) enableTwoFactor(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := h.svc.SetupTwoFactor(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, h.svc.VerifyTwoFactorSetup(ctx, userID, h.code(t, setup.Secret)))
	return setup.Secret, setup.BackupCodes
}

func (h *harness) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := totp.GenerateCode(secret, h.clock.Now())
	require.NoError(t, err)
	return c
}

func (h *harness) session(t *testing.T, sid string) domain.Session {
	t.Helper()
	s, err := h.sessions.GetSession(context.Background(), sid)
	require.NoError(t, err)
	return s
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	res, err := h.svc.Register(ctx, "sid-1", RegisterInput{
		Name:     "Alice",
		Email:    "  A@X.com ",
		Phone:    "+61 (400) 000-000",
		Password: testPassword,
	})
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFactor)
	require.NotNil(t, res.Tokens)
	require.Equal(t, "a@x.com", res.User.Email)
	require.Equal(t, "user", res.User.Role)
	require.Equal(t, "+61400000000", *res.User.Phone)

	require.True(t, idx.ValidUserID(res.User.ID))

	stored, err := h.store.Users().GetUserByID(ctx, res.User.ID)
	require.NoError(t, err)
	require.NoError(t, cryptox.VerifyPassword(testPassword, *stored.PasswordHash))

	sess, ok := h.session(t, "sid-1").(domain.Authenticated)
	require.True(t, ok)
	require.Equal(t, res.Tokens.AccessToken, sess.AccessToken)
	require.Equal(t, res.Tokens.RefreshToken, sess.RefreshToken)
	require.True(t, sess.TokenExpiresAt.Equal(res.Tokens.ExpiresAt))

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := h.svc.Register(ctx, "", RegisterInput{Email: "a@x.com", Password: testPassword})
		require.ErrorIs(t, err, domain.ErrAccountConflict)
	})

	t.Run("explicit role is kept", func(t *testing.T) {
		res, err := h.svc.Register(ctx, "", RegisterInput{Email: "admin@x.com", Password: testPassword, Role: "admin"})
		require.NoError(t, err)
		require.Equal(t, "admin", res.User.Role)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := h.svc.Register(ctx, "", RegisterInput{Email: "nobody", Password: testPassword})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)

		_, err = h.svc.Register(ctx, "", RegisterInput{Email: "b@x.com", Password: "short"})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.Register(ctx, "", RegisterInput{
		Email:    "a@x.com",
		Phone:    "0400 123 456",
		Password: testPassword,
	})
	require.NoError(t, err)

	t.Run("email", func(t *testing.T) {
		res, err := h.svc.Login(ctx, "sid-email", "A@X.COM", testPassword)
		require.NoError(t, err)
		require.False(t, res.RequiresTwoFactor)
		require.NotNil(t, res.Tokens)
		require.Equal(t, domain.SessionAuthenticated, h.session(t, "sid-email").Kind())
	})

	t.Run("phone with separators", func(t *testing.T) {
		res, err := h.svc.Login(ctx, "sid-phone", "(0400) 123-456", testPassword)
		require.NoError(t, err)
		require.Equal(t, "a@x.com", res.User.Email)
	})

	tests := []struct {
		name       string
		identifier string
		password   string
	}{
		{"wrong password", "a@x.com", "wrong-password"},
		{"unknown email", "nobody@x.com", testPassword},
		{"unknown phone", "0499 999 999", testPassword},
		{"empty identifier", "", testPassword},
		{"empty password", "a@x.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.svc.Login(ctx, "sid-bad", tt.identifier, tt.password)
			require.ErrorIs(t, err, domain.ErrInvalidCredentials)
			require.Nil(t, res)
		})
	}

	t.Run("provider only account has no password", func(t *testing.T) {
		_, err := h.svc.ProviderLogin(ctx, "", domain.ProviderIdentity{
			Provider: "google", ProviderID: "g-1", Email: "oauth@x.com",
		})
		require.NoError(t, err)

		_, err = h.svc.Login(ctx, "sid-oauth", "oauth@x.com", testPassword)
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
	})
}

func TestTwoFactorLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)
	userID := reg.User.ID

	setup, err := h.svc.SetupTwoFactor(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, setup.Secret)
	require.Contains(t, setup.ProvisioningURI, "otpauth://totp/")
	require.NotEmpty(t, setup.QRCodePNG)
	require.Len(t, setup.BackupCodes, BackupCodeCount)

	u, err := h.store.Users().GetUserByID(ctx, userID)
	require.NoError(t, err)
	require.False(t, u.TwoFactorEnabled, "setup alone must not enable 2FA")
	require.Equal(t, setup.Secret, *u.TwoFactorSecret)

	n, err := h.store.BackupCodes().CountUserBackupCodes(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, BackupCodeCount, n)

	// Password login still completes directly until verification.
	res, err := h.svc.Login(ctx, "sid-0", "a@x.com", testPassword)
	require.NoError(t, err)
	require.False(t, res.RequiresTwoFactor)

	require.ErrorIs(t, h.svc.VerifyTwoFactorSetup(ctx, userID, "12345"), domain.ErrInvalidTwoFactorCode)
	require.NoError(t, h.svc.VerifyTwoFactorSetup(ctx, userID, h.code(t, setup.Secret)))

	u, err = h.store.Users().GetUserByID(ctx, userID)
	require.NoError(t, err)
	require.True(t, u.TwoFactorEnabled)

	_, err = h.svc.SetupTwoFactor(ctx, userID)
	require.ErrorIs(t, err, domain.ErrTwoFactorAlreadyEnabled)

	res, err = h.svc.Login(ctx, "sid-1", "a@x.com", testPassword)
	require.NoError(t, err)
	require.True(t, res.RequiresTwoFactor)
	require.Nil(t, res.Tokens)
	pending, ok := h.session(t, "sid-1").(domain.Pending2FA)
	require.True(t, ok)
	require.Equal(t, userID, pending.UserID)

	res, err = h.svc.VerifyTwoFactorLogin(ctx, "sid-1", h.code(t, setup.Secret))
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)
	sess, ok := h.session(t, "sid-1").(domain.Authenticated)
	require.True(t, ok)
	require.Equal(t, userID, sess.UserID)
	require.Equal(t, res.Tokens.RefreshToken, sess.RefreshToken)

	t.Run("verify without pending session", func(t *testing.T) {
		_, err := h.svc.VerifyTwoFactorLogin(ctx, "sid-1", h.code(t, setup.Secret))
		require.ErrorIs(t, err, domain.ErrTwoFactorSessionExpired)

		_, err = h.svc.VerifyTwoFactorLogin(ctx, "unknown", h.code(t, setup.Secret))
		require.ErrorIs(t, err, domain.ErrTwoFactorSessionExpired)
	})

	t.Run("pending session expires", func(t *testing.T) {
		_, err := h.svc.Login(ctx, "sid-late", "a@x.com", testPassword)
		require.NoError(t, err)

		h.clock.Advance(DefaultPendingTTL + time.Second)
		_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid-late", h.code(t, setup.Secret))
		require.ErrorIs(t, err, domain.ErrTwoFactorSessionExpired)
	})

	t.Run("regenerate backup codes", func(t *testing.T) {
		_, err := h.svc.RegenerateBackupCodes(ctx, userID, "abc")
		require.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)

		codes, err := h.svc.RegenerateBackupCodes(ctx, userID, h.code(t, setup.Secret))
		require.NoError(t, err)
		require.Len(t, codes, BackupCodeCount)

		// The old set is gone.
		_, err = h.svc.Login(ctx, "sid-old", "a@x.com", testPassword)
		require.NoError(t, err)
		_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid-old", setup.BackupCodes[0])
		require.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)
	})

	t.Run("disable", func(t *testing.T) {
		require.ErrorIs(t, h.svc.DisableTwoFactor(ctx, userID, "wrong-password"), domain.ErrInvalidCredentials)
		require.NoError(t, h.svc.DisableTwoFactor(ctx, userID, testPassword))

		u, err := h.store.Users().GetUserByID(ctx, userID)
		require.NoError(t, err)
		require.False(t, u.TwoFactorEnabled)
		require.Nil(t, u.TwoFactorSecret)

		n, err := h.store.BackupCodes().CountUserBackupCodes(ctx, userID)
		require.NoError(t, err)
		require.Zero(t, n)

		require.ErrorIs(t, h.svc.DisableTwoFactor(ctx, userID, testPassword), domain.ErrTwoFactorNotEnrolled)

		res, err := h.svc.Login(ctx, "sid-2", "a@x.com", testPassword)
		require.NoError(t, err)
		require.False(t, res.RequiresTwoFactor)
	})
}

func TestTwoFactorManagementErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.SetupTwoFactor(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	reg := h.register(t, "", "a@x.com", testPassword)
	require.ErrorIs(t, h.svc.VerifyTwoFactorSetup(ctx, reg.User.ID, "123456"), domain.ErrTwoFactorNotEnrolled)

	_, err = h.svc.RegenerateBackupCodes(ctx, reg.User.ID, "123456")
	require.ErrorIs(t, err, domain.ErrTwoFactorNotEnrolled)

	oauth, err := h.svc.ProviderLogin(ctx, "", domain.ProviderIdentity{
		Provider: "github", ProviderID: "42", Email: "gh@x.com",
	})
	require.NoError(t, err)
	require.ErrorIs(t, h.svc.DisableTwoFactor(ctx, oauth.User.ID, ""), domain.ErrInvalidCredentials)
}

func TestBackupCodeLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)
	_, codes := h.enableTwoFactor(t, reg.User.ID)

	before, err := h.store.BackupCodes().CountUserBackupCodes(ctx, reg.User.ID)
	require.NoError(t, err)

	_, err = h.svc.Login(ctx, "sid-1", "a@x.com", testPassword)
	require.NoError(t, err)
	res, err := h.svc.VerifyTwoFactorLogin(ctx, "sid-1", codes[3])
	require.NoError(t, err)
	require.NotNil(t, res.Tokens)

	after, err := h.store.BackupCodes().CountUserBackupCodes(ctx, reg.User.ID)
	require.NoError(t, err)
	require.Equal(t, before-1, after)

	// Replaying the same code fails.
	_, err = h.svc.Login(ctx, "sid-2", "a@x.com", testPassword)
	require.NoError(t, err)
	_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid-2", codes[3])
	require.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)

	// A different code still works.
	_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid-2", codes[4])
	require.NoError(t, err)
}

func TestTwoFactorAttemptLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)
	secret, _ := h.enableTwoFactor(t, reg.User.ID)

	_, err := h.svc.Login(ctx, "sid", "a@x.com", testPassword)
	require.NoError(t, err)

	for range MaxTwoFactorAttempts {
		_, err := h.svc.VerifyTwoFactorLogin(ctx, "sid", "abcdef")
		require.ErrorIs(t, err, domain.ErrInvalidTwoFactorCode)
	}

	_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid", h.code(t, secret))
	require.ErrorIs(t, err, domain.ErrTwoFactorSessionExpired)
}

func TestTwoFactorAttemptLimitConcurrent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)
	h.enableTwoFactor(t, reg.User.ID)

	_, err := h.svc.Login(ctx, "sid", "a@x.com", testPassword)
	require.NoError(t, err)

	const callers = 20
	results := make(chan error, callers)
	for range callers {
		go func() {
			_, err := h.svc.VerifyTwoFactorLogin(ctx, "sid", "abcdef")
			results <- err
		}()
	}

	var rejected, expired int
	for range callers {
		err := <-results
		switch {
		case errors.Is(err, domain.ErrInvalidTwoFactorCode):
			rejected++
		case errors.Is(err, domain.ErrTwoFactorSessionExpired):
			expired++
		default:
			t.Fatalf("unexpected result: %v", err)
		}
	}
	require.Equal(t, MaxTwoFactorAttempts, rejected)
	require.Equal(t, callers-MaxTwoFactorAttempts, expired)

	_, err = h.sessions.GetSession(ctx, "sid")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTwoFactorFailureAfterSuccessKeepsSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)
	secret, _ := h.enableTwoFactor(t, reg.User.ID)

	_, err := h.svc.Login(ctx, "sid", "a@x.com", testPassword)
	require.NoError(t, err)

	res, err := h.svc.VerifyTwoFactorLogin(ctx, "sid", h.code(t, secret))
	require.NoError(t, err)

	// A slower request that started on the pending session finishes with a
	// wrong code after the login completed.
	_, err = h.svc.VerifyTwoFactorLogin(ctx, "sid", "abcdef")
	require.ErrorIs(t, err, domain.ErrTwoFactorSessionExpired)

	sess, ok := h.session(t, "sid").(domain.Authenticated)
	require.True(t, ok)
	require.Equal(t, res.Tokens.AccessToken, sess.AccessToken)
	require.Equal(t, res.Tokens.RefreshToken, sess.RefreshToken)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "sid", "a@x.com", testPassword)
	old := reg.Tokens.RefreshToken

	res, err := h.svc.Refresh(ctx, "sid", old)
	require.NoError(t, err)
	require.NotEqual(t, old, res.Tokens.RefreshToken)
	require.NotEqual(t, reg.Tokens.AccessToken, res.Tokens.AccessToken)

	sess, ok := h.session(t, "sid").(domain.Authenticated)
	require.True(t, ok)
	require.Equal(t, res.Tokens.RefreshToken, sess.RefreshToken)

	_, err = h.svc.Refresh(ctx, "sid", old)
	require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

	t.Run("falls back to session token", func(t *testing.T) {
		next, err := h.svc.Refresh(ctx, "sid", "")
		require.NoError(t, err)
		require.NotEqual(t, res.Tokens.RefreshToken, next.Tokens.RefreshToken)

		_, err = h.svc.Refresh(ctx, "no-session", "")
		require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	})

	t.Run("every failure is the same error", func(t *testing.T) {
		for _, tok := range []string{"garbage", reg.Tokens.AccessToken} {
			_, err := h.svc.Refresh(ctx, "", tok)
			require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
			require.Equal(t, domain.ErrInvalidRefreshToken.Message, domain.AsError(err).Message)
		}
	})

	t.Run("expired refresh token", func(t *testing.T) {
		r := h.register(t, "", "late@x.com", testPassword)
		h.clock.Advance(8 * 24 * time.Hour)
		_, err := h.svc.Refresh(ctx, "", r.Tokens.RefreshToken)
		require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	})
}

func TestRefreshConcurrentSingleUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "", "a@x.com", testPassword)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Refresh(ctx, "", reg.Tokens.RefreshToken); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
}

func TestLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	reg := h.register(t, "sid", "a@x.com", testPassword)

	claims, err := h.svc.VerifyAccess(ctx, reg.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, reg.User.ID, claims.Subject)

	require.NoError(t, h.svc.Logout(ctx, "sid"))

	_, err = h.sessions.GetSession(ctx, "sid")
	require.Error(t, err)

	for _, tok := range []string{reg.Tokens.AccessToken, reg.Tokens.RefreshToken} {
		revoked, err := h.svc.Revocations.IsRevoked(ctx, tok)
		require.NoError(t, err)
		require.True(t, revoked)
	}

	_, err = h.svc.VerifyAccess(ctx, reg.Tokens.AccessToken)
	require.ErrorIs(t, err, domain.ErrTokenRevoked)

	_, err = h.svc.Refresh(ctx, "", reg.Tokens.RefreshToken)
	require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)

	t.Run("no session and malformed tokens", func(t *testing.T) {
		require.NoError(t, h.svc.Logout(ctx, ""))
		require.NoError(t, h.svc.Logout(ctx, "gone", "not-a-token", ""))
	})

	t.Run("explicit tokens are revoked", func(t *testing.T) {
		other := h.register(t, "", "b@x.com", testPassword)
		require.NoError(t, h.svc.Logout(ctx, "", other.Tokens.RefreshToken))

		_, err := h.svc.Refresh(ctx, "", other.Tokens.RefreshToken)
		require.ErrorIs(t, err, domain.ErrInvalidRefreshToken)
	})
}

type stubVerifier struct {
	err   error
	calls atomic.Int32
}

func (v *stubVerifier) VerifyIdentity(ctx context.Context, id domain.ProviderIdentity) error {
	v.calls.Add(1)
	return v.err
}

func TestProviderLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	google := func(id, email string) domain.ProviderIdentity {
		return domain.ProviderIdentity{Provider: "google", ProviderID: id, Email: email, Name: "Bob", AccessToken: "tok"}
	}

	t.Run("idempotent", func(t *testing.T) {
		h := newHarness(t)

		first, err := h.svc.ProviderLogin(ctx, "sid-1", google("g-123", "b@x.com"))
		require.NoError(t, err)
		second, err := h.svc.ProviderLogin(ctx, "sid-2", google("g-123", "b@x.com"))
		require.NoError(t, err)
		require.Equal(t, first.User.ID, second.User.ID)
		require.Equal(t, "user", first.User.Role)
		require.Nil(t, first.User.PasswordHash)
	})

	t.Run("links unlinked password account", func(t *testing.T) {
		h := newHarness(t)
		reg := h.register(t, "", "c@x.com", testPassword)

		id := google("g-999", "C@x.com")
		id.Avatar = "https://img/c.png"
		res, err := h.svc.ProviderLogin(ctx, "sid", id)
		require.NoError(t, err)
		require.Equal(t, reg.User.ID, res.User.ID)
		require.Equal(t, "google", *res.User.Provider)
		require.Equal(t, "g-999", *res.User.ProviderID)
		require.Equal(t, "https://img/c.png", *res.User.Avatar)

		// Password login keeps working after linking.
		_, err = h.svc.Login(ctx, "sid-pw", "c@x.com", testPassword)
		require.NoError(t, err)
	})

	t.Run("conflict with other provider", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.ProviderLogin(ctx, "", google("g-1", "d@x.com"))
		require.NoError(t, err)

		_, err = h.svc.ProviderLogin(ctx, "sid", domain.ProviderIdentity{
			Provider: "github", ProviderID: "77", Email: "d@x.com",
		})
		require.ErrorIs(t, err, domain.ErrAccountConflict)

		_, err = h.svc.ProviderLogin(ctx, "sid", google("g-2", "d@x.com"))
		require.ErrorIs(t, err, domain.ErrAccountConflict)
	})

	t.Run("avatar refresh", func(t *testing.T) {
		h := newHarness(t)
		id := google("g-5", "e@x.com")
		id.Avatar = "https://img/1.png"
		_, err := h.svc.ProviderLogin(ctx, "", id)
		require.NoError(t, err)

		id.Avatar = "https://img/2.png"
		res, err := h.svc.ProviderLogin(ctx, "", id)
		require.NoError(t, err)
		require.Equal(t, "https://img/2.png", *res.User.Avatar)
	})

	t.Run("verifier gates login", func(t *testing.T) {
		h := newHarness(t)
		v := &stubVerifier{err: ErrProviderMismatch}
		h.svc.Providers = v

		_, err := h.svc.ProviderLogin(ctx, "", google("g-6", "f@x.com"))
		require.ErrorIs(t, err, domain.ErrInvalidCredentials)
		require.Equal(t, int32(1), v.calls.Load())

		v.err = nil
		_, err = h.svc.ProviderLogin(ctx, "", google("g-6", "f@x.com"))
		require.NoError(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.ProviderLogin(ctx, "", domain.ProviderIdentity{Provider: "google", Email: "g@x.com"})
		require.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestIssueTokensRequiresUserID(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, err := h.svc.issueTokens(context.Background(), "sid", domain.User{Email: "a@x.com"})
	require.ErrorIs(t, err, domain.ErrInternalFailure)
}

func TestCurrentSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.svc.CurrentSession(ctx, "sid")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	h.register(t, "sid", "a@x.com", testPassword)
	cur, err := h.svc.CurrentSession(ctx, "sid")
	require.NoError(t, err)
	require.Equal(t, domain.SessionAuthenticated, cur.Kind())
}
