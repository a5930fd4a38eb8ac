package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Register creates a password account and signs the client in.
func (c *SDKClient) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	return c.postAuth(ctx, "/v1/auth/register", req)
}

// Login signs in with an email or phone number. Check RequiresTwoFactor on
// the result and follow up with VerifyTwoFactor when it is set.
func (c *SDKClient) Login(ctx context.Context, identifier, password string) (*AuthResponse, error) {
	return c.postAuth(ctx, "/v1/auth/login", LoginRequest{Identifier: identifier, Password: password})
}

// VerifyTwoFactor completes a pending login with a TOTP or backup code.
func (c *SDKClient) VerifyTwoFactor(ctx context.Context, code string) (*AuthResponse, error) {
	return c.postAuth(ctx, "/v1/auth/2fa/verify", CodeRequest{Code: code})
}

// Refresh spends refreshToken for a new pair. An empty token refreshes the
// pair held by the session cookie.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	return c.postAuth(ctx, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken})
}

// ProviderLogin exchanges an identity from provider for a session.
func (c *SDKClient) ProviderLogin(ctx context.Context, provider string, req ProviderLoginRequest) (*AuthResponse, error) {
	return c.postAuth(ctx, "/v1/auth/oauth/"+url.PathEscape(provider), req)
}

// Logout revokes the session's tokens, plus refreshToken when given, and
// clears the session cookie.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", LogoutRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// CurrentSession reports the state behind the session cookie.
func (c *SDKClient) CurrentSession(ctx context.Context) (*SessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/v1/auth/session", nil, "")
	if err != nil {
		return nil, err
	}

	var sess SessionResponse
	if err := decodeJSON(resp, &sess, http.StatusOK); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (c *SDKClient) postAuth(ctx context.Context, path string, body any) (*AuthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, path, body, "")
	if err != nil {
		return nil, err
	}

	var out AuthResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
