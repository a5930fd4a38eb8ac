package authsdk

import "time"

// ErrorResponse is the wire shape of APIError.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ============================================================================
// Requests
// ============================================================================

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

// LoginRequest takes an email address or a phone number as Identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// CodeRequest carries a six digit TOTP code or an eight character backup code.
type CodeRequest struct {
	Code string `json:"code"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

// RefreshRequest may be empty, in which case the token cached in the
// session cookie is used.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// LogoutRequest lets bearer clients name a refresh token to revoke in
// addition to whatever the session cookie holds.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// ProviderLoginRequest is posted to /v1/auth/oauth/{provider} after the
// client has completed the provider's own OAuth flow.
type ProviderLoginRequest struct {
	ProviderID  string `json:"provider_id"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// ============================================================================
// Responses
// ============================================================================

type UserResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone,omitempty"`
	Role             string `json:"role"`
	Provider         string `json:"provider,omitempty"`
	Avatar           string `json:"avatar,omitempty"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}

// AuthResponse is returned by every endpoint that can sign a user in. When
// RequiresTwoFactor is set no tokens are present and the session cookie is
// waiting for POST /v1/auth/2fa/verify.
type AuthResponse struct {
	RequiresTwoFactor bool          `json:"requires_two_factor"`
	User              *UserResponse `json:"user,omitempty"`
	AccessToken       string        `json:"access_token,omitempty"`
	RefreshToken      string        `json:"refresh_token,omitempty"`
	TokenType         string        `json:"token_type,omitempty"`
	ExpiresAt         *time.Time    `json:"expires_at,omitempty"`
	ExpiresIn         int           `json:"expires_in,omitempty"`
}

// SessionResponse describes the session cookie's server-side state without
// exposing any token.
type SessionResponse struct {
	State     string     `json:"state"`
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Role      string     `json:"role,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Session states reported by SessionResponse.State.
const (
	SessionStatePending2FA    = "pending_2fa"
	SessionStateAuthenticated = "authenticated"
)

// TwoFactorSetupResponse is shown once. BackupCodes are never returned again.
type TwoFactorSetupResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"` // data:image/png;base64
	BackupCodes     []string `json:"backup_codes"`
}

type BackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
}

// ============================================================================
// Health
// ============================================================================

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database    string `json:"database"`
	Sessions    string `json:"sessions"`
	Revocations string `json:"revocations"`
}
