package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HS256 secret accepted, 256 bits.
const MinSecretLength = 32

// HMACSigner signs and verifies one kind of token (access or refresh) with a
// single HS256 secret and a fixed lifetime.
type HMACSigner struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewHMACSigner returns a signer for the given secret. A missing or short
// secret is a configuration error and is reported at startup.
func NewHMACSigner(secret string, ttl time.Duration, issuer string) (*HMACSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwtx: HS256 secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("jwtx: ttl must be positive")
	}
	return &HMACSigner{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// WithClock replaces the time source, mainly for tests.
func (s *HMACSigner) WithClock(now func() time.Time) *HMACSigner {
	s.now = now
	return s
}

// TTL returns the lifetime applied to every token this signer mints.
func (s *HMACSigner) TTL() time.Duration { return s.ttl }

// Issue builds claims for the subject and signs them.
func (s *HMACSigner) Issue(subject, email, role string) (string, Claims, error) {
	claims := NewClaims(subject, email, role, s.issuer, s.ttl, s.now().UTC())
	token, err := s.Sign(claims)
	if err != nil {
		return "", Claims{}, err
	}
	return token, claims, nil
}

// Sign turns the claims into a compact HS256 JWT.
func (s *HMACSigner) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

// Verify checks signature, algorithm, issuer and expiry and returns the claims.
func (s *HMACSigner) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	return s.parse(token, opts...)
}

// Decode checks the signature only and returns the claims even when the token
// has expired. Logout uses it to learn how long a token still needs to stay
// in the revocation registry.
func (s *HMACSigner) Decode(token string) (*Claims, error) {
	return s.parse(token,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
}

func (s *HMACSigner) parse(token string, opts ...jwt.ParserOption) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrAlgMismatch
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, mapParseError(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidClaim
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidClaim)
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, ErrAlgMismatch), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrInvalidClaim, err)
	}
}
