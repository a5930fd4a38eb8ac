package domain

import (
	"strings"
	"time"
)

// User is a credential record. A user always has a password hash, a provider
// identity, or both once an OAuth identity has been linked to a password
// account.
type User struct {
	ID               string
	Name             string
	Email            string  // lowercased
	Phone            *string // digits and leading '+' only
	PasswordHash     *string // argon2id PHC string
	Role             string
	Provider         *string // e.g. "google"
	ProviderID       *string
	Avatar           *string
	TwoFactorEnabled bool
	TwoFactorSecret  *string // base32, set during setup before it is enabled
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != nil && *u.PasswordHash != "" }

// IsLinked reports whether an OAuth provider identity is attached.
func (u *User) IsLinked() bool { return u.Provider != nil && *u.Provider != "" }

// UserPatch is a partial update; nil fields are left unchanged.
type UserPatch struct {
	Name             *string
	Avatar           *string
	Provider         *string
	ProviderID       *string
	TwoFactorEnabled *bool
	TwoFactorSecret  *string

	// ClearTwoFactorSecret sets the secret to NULL. It wins over TwoFactorSecret.
	ClearTwoFactorSecret bool
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone strips the separators people type into phone numbers:
// spaces, dashes, dots and parentheses.
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')', '\t':
			return -1
		}
		return r
	}, strings.TrimSpace(phone))
}

// LooksLikeEmail is the cheap test Login uses to pick the lookup key.
func LooksLikeEmail(identifier string) bool {
	return strings.Contains(identifier, "@")
}
