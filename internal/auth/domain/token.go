package domain

import "time"

// TokenPair is a freshly minted access and refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the access token's exp claim.
	ExpiresAt time.Time
}

// AuthResult is returned by every operation that can end in Authenticated.
// When RequiresTwoFactor is set Tokens is nil and Session is Pending2FA.
type AuthResult struct {
	User              User
	Session           Session
	Tokens            *TokenPair
	RequiresTwoFactor bool
}

// TwoFactorSetup is returned once, at enrolment. BackupCodes is the only
// time the plaintext codes leave the service.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	QRCodePNG       []byte
	BackupCodes     []string
}

// ProviderIdentity is what a client claims about an OAuth login.
type ProviderIdentity struct {
	Provider    string
	ProviderID  string
	Email       string
	Name        string
	Avatar      string
	AccessToken string
}
