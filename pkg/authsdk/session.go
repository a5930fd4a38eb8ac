package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// refreshBuffer refreshes the access token slightly before it expires.
const refreshBuffer = 30 * time.Second

// Session holds a bearer token pair and refreshes it on demand. Every
// refresh rotates the refresh token, so a Session must not be copied.
type Session struct {
	client *SDKClient

	mu           sync.RWMutex
	user         *UserResponse
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func newSession(client *SDKClient, resp *AuthResponse) *Session {
	s := &Session{client: client}
	s.apply(resp)
	return s
}

// apply stores the tokens of resp. Callers hold the write lock or own s.
func (s *Session) apply(resp *AuthResponse) {
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	if resp.User != nil {
		s.user = resp.User
	}

	switch {
	case resp.ExpiresAt != nil:
		s.expiresAt = resp.ExpiresAt.Add(-refreshBuffer)
	default:
		s.expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn)*time.Second - refreshBuffer)
	}
}

// getValidToken returns a valid access token, automatically refreshing if expired.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	if time.Now().Before(s.expiresAt) {
		token := s.accessToken
		s.mu.RUnlock()
		return token, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Now().Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if s.refreshToken == "" {
		return "", fmt.Errorf("access token expired and no refresh token available")
	}

	resp, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to refresh token: %w", err)
	}
	s.apply(resp)
	return s.accessToken, nil
}

// AccessToken returns the current access token without checking expiration.
func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token.
func (s *Session) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// User returns the user the session was issued for.
func (s *Session) User() *UserResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Logout revokes the session's tokens on the server. The Session is
// unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.accessToken, s.refreshToken, s.expiresAt = "", "", time.Time{}
	s.mu.Unlock()

	return s.client.Logout(ctx, refreshToken)
}

// SetupTwoFactor starts enrolment. The result's backup codes are shown once.
func (s *Session) SetupTwoFactor(ctx context.Context) (*TwoFactorSetupResponse, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/setup", nil)
	if err != nil {
		return nil, err
	}

	var out TwoFactorSetupResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyTwoFactorSetup turns two-factor on with a code from the new secret.
func (s *Session) VerifyTwoFactorSetup(ctx context.Context, code string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/verify-setup", CodeRequest{Code: code})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// DisableTwoFactor turns two-factor off after re-checking the password.
func (s *Session) DisableTwoFactor(ctx context.Context, password string) error {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/disable", PasswordRequest{Password: password})
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// RegenerateBackupCodes replaces every backup code after a TOTP check.
func (s *Session) RegenerateBackupCodes(ctx context.Context, code string) ([]string, error) {
	resp, err := s.do(ctx, http.MethodPost, "/v1/2fa/backup-codes", CodeRequest{Code: code})
	if err != nil {
		return nil, err
	}

	var out BackupCodesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.BackupCodes, nil
}

func (s *Session) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.doRequest(ctx, method, path, body, token)
}
