package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrAlgMismatch  = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Claims is the payload carried by both access and refresh tokens. The two
// token kinds share this shape and differ only in signing secret and TTL.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated user at the time of issuance.
	Email string `json:"email"`

	// Role is carried for downstream services; this service does not
	// evaluate it.
	Role string `json:"role"`
}

// NewClaims builds claims for subject valid from now until now+ttl. Every
// token gets a fresh jti so two tokens minted in the same second for the same
// user never collide in the revocation registry.
func NewClaims(subject, email, role, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Email: email,
		Role:  role,
	}
}

// ExpiresAtTime returns the exp claim, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time.UTC()
}
