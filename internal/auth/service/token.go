package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
)

// TokenConfig carries the two independent signing setups.
type TokenConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// TokenService mints and verifies access and refresh tokens. The two kinds
// share a payload but never a secret, so one cannot stand in for the other.
type TokenService struct {
	access  *jwtx.HMACSigner
	refresh *jwtx.HMACSigner
}

// NewTokenService fails on missing, short or shared secrets. It is called
// once at startup.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("access and refresh token secrets must differ")
	}

	access, err := jwtx.NewHMACSigner(cfg.AccessSecret, cfg.AccessTTL, cfg.Issuer)
	if err != nil {
		return nil, errors.Join(errors.New("access token signer"), err)
	}
	refresh, err := jwtx.NewHMACSigner(cfg.RefreshSecret, cfg.RefreshTTL, cfg.Issuer)
	if err != nil {
		return nil, errors.Join(errors.New("refresh token signer"), err)
	}

	return &TokenService{access: access, refresh: refresh}, nil
}

// WithClock replaces the time source of both signers.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.access.WithClock(now)
	s.refresh.WithClock(now)
	return s
}

func (s *TokenService) AccessTTL() time.Duration  { return s.access.TTL() }
func (s *TokenService) RefreshTTL() time.Duration { return s.refresh.TTL() }

// Issue mints a pair for the user. ExpiresAt is read back from the access
// token's own exp claim.
func (s *TokenService) Issue(u domain.User) (domain.TokenPair, error) {
	accessToken, accessClaims, err := s.SignAccess(u)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refreshToken, _, err := s.SignRefresh(u)
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    accessClaims.ExpiresAtTime(),
	}, nil
}

func (s *TokenService) SignAccess(u domain.User) (string, jwtx.Claims, error) {
	return s.access.Issue(u.ID, u.Email, u.Role)
}

func (s *TokenService) SignRefresh(u domain.User) (string, jwtx.Claims, error) {
	return s.refresh.Issue(u.ID, u.Email, u.Role)
}

// VerifyAccess checks signature, issuer and expiry against the access secret.
func (s *TokenService) VerifyAccess(token string) (*jwtx.Claims, error) {
	c, err := s.access.Verify(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid.WithCause(err)
	}
	return c, nil
}

// VerifyRefresh checks signature, issuer and expiry against the refresh secret.
func (s *TokenService) VerifyRefresh(token string) (*jwtx.Claims, error) {
	c, err := s.refresh.Verify(token)
	if err != nil {
		return nil, domain.ErrTokenInvalid.WithCause(err)
	}
	return c, nil
}

// DecodeAccess checks the signature only; expired tokens still decode.
func (s *TokenService) DecodeAccess(token string) (*jwtx.Claims, error) {
	return s.access.Decode(token)
}

// DecodeRefresh checks the signature only; expired tokens still decode.
func (s *TokenService) DecodeRefresh(token string) (*jwtx.Claims, error) {
	return s.refresh.Decode(token)
}
