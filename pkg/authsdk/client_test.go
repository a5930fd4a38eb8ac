package authsdk_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	authhttp "github.com/aussiebroadwan/tabauth/internal/auth/http"
	"github.com/aussiebroadwan/tabauth/internal/auth/service"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/tabauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tabauth-sdk")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// newServer runs the real router over SQLite and in-memory sessions.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	tokens, err := service.NewTokenService(service.TokenConfig{
		Issuer:        "tabauth-test",
		AccessSecret:  "access-secret-access-secret-0123456789",
		RefreshSecret: "refresh-secret-refresh-secret-0123456789",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	require.NoError(t, err)

	auth := &service.AuthService{
		Store:       st,
		Tokens:      tokens,
		TOTP:        service.NewTOTPService("TabAuth"),
		Revocations: service.NewRevocationRegistry(st.Revocations(), tokens),
		Sessions:    service.NewSessionManager(memory.NewSessions(), service.DefaultSessionTTL),
		DefaultRole: service.DefaultRole,
	}

	router := authhttp.NewRouter(auth, authhttp.CookieConfig{}, "test", slogx.Discard())
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, srv *httptest.Server) *authsdk.SDKClient {
	t.Helper()
	c, err := authsdk.NewSDKClient(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func TestClient_TwoFactorLifecycle(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t))

	reg, err := c.Register(ctx, authsdk.RegisterRequest{
		Name:     "Alice",
		Email:    "alice@example.com",
		Phone:    "+61 400 000 000",
		Password: "password123",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", reg.User.Email)

	sess, err := c.NewSession(reg)
	require.NoError(t, err)

	setup, err := sess.SetupTwoFactor(ctx)
	require.NoError(t, err)
	require.Len(t, setup.BackupCodes, 10)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, sess.VerifyTwoFactorSetup(ctx, code))
	require.NoError(t, sess.Logout(ctx))

	_, err = c.CurrentSession(ctx)
	require.Equal(t, authsdk.ErrorCodeUnauthenticated, authsdk.ErrorCode(err))

	// The phone number works as an identifier in any formatting.
	login, err := c.Login(ctx, "+61400000000", "password123")
	require.NoError(t, err)
	require.True(t, login.RequiresTwoFactor)

	_, err = c.NewSession(login)
	require.Error(t, err)

	cur, err := c.CurrentSession(ctx)
	require.NoError(t, err)
	require.Equal(t, authsdk.SessionStatePending2FA, cur.State)

	verified, err := c.VerifyTwoFactor(ctx, code)
	require.NoError(t, err)
	require.True(t, verified.User.TwoFactorEnabled)

	sess, err = c.NewSession(verified)
	require.NoError(t, err)

	codes, err := sess.RegenerateBackupCodes(ctx, code)
	require.NoError(t, err)
	require.Len(t, codes, 10)
	require.NotEqual(t, setup.BackupCodes, codes)

	err = sess.DisableTwoFactor(ctx, "wrong-password")
	require.Equal(t, authsdk.ErrorCodeInvalidCredentials, authsdk.ErrorCode(err))
	require.NoError(t, sess.DisableTwoFactor(ctx, "password123"))
}

func TestSession_RefreshesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t))

	reg, err := c.Register(ctx, authsdk.RegisterRequest{Email: "alice@example.com", Password: "password123"})
	require.NoError(t, err)

	stale := *reg
	past := time.Now().Add(-time.Minute)
	stale.ExpiresAt = &past

	sess, err := c.NewSession(&stale)
	require.NoError(t, err)

	_, err = sess.SetupTwoFactor(ctx)
	require.NoError(t, err)
	require.NotEqual(t, reg.RefreshToken, sess.RefreshToken())
	require.NotEqual(t, reg.AccessToken, sess.AccessToken())
	require.Equal(t, reg.User.ID, sess.User().ID)

	// The consumed refresh token is single use.
	_, err = c.Refresh(ctx, reg.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrInvalidRefreshToken)
}

func TestClient_ProviderLogin(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t))

	res, err := c.ProviderLogin(ctx, "github", authsdk.ProviderLoginRequest{
		ProviderID:  "gh-1",
		Email:       "octo@example.com",
		Name:        "Octo",
		AccessToken: "gho_token",
	})
	require.NoError(t, err)
	require.Equal(t, "github", res.User.Provider)

	again, err := c.ProviderLogin(ctx, "github", authsdk.ProviderLoginRequest{
		ProviderID:  "gh-1",
		Email:       "octo@example.com",
		AccessToken: "gho_token",
	})
	require.NoError(t, err)
	require.Equal(t, res.User.ID, again.User.ID)
}

func TestClient_Health(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t))

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	c := newClient(t, srv)
	_, err := c.Login(context.Background(), "alice@example.com", "password123")

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeServerError, apiErr.Code)
}

func TestClient_RateLimited(t *testing.T) {
	ctx := context.Background()
	c := newClient(t, newServer(t))

	var err error
	for range 6 {
		_, err = c.Login(ctx, "nobody@example.com", "password123")
	}

	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRateLimited, apiErr.Code)
	require.GreaterOrEqual(t, apiErr.RetryAfter, time.Second)
}
