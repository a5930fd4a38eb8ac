package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/cryptox"
	"github.com/aussiebroadwan/tabauth/pkg/jwtx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// FallbackRevocationTTL bounds the entry for a token whose expiry cannot be
// read.
const FallbackRevocationTTL = 24 * time.Hour

var ErrAlreadyRevoked = errors.New("token already revoked")

// RevocationRegistry records tokens that must never be accepted again.
// Entries are keyed by fingerprint and live until the token's own expiry.
type RevocationRegistry struct {
	Store  store.Revocations
	Tokens *TokenService

	now func() time.Time
}

func NewRevocationRegistry(st store.Revocations, tokens *TokenService) *RevocationRegistry {
	return &RevocationRegistry{Store: st, Tokens: tokens, now: time.Now}
}

// WithClock replaces the time source used for fallback expiries.
func (r *RevocationRegistry) WithClock(now func() time.Time) *RevocationRegistry {
	r.now = now
	return r
}

// Revoke inserts the token. ErrAlreadyRevoked means another caller got there
// first; refresh rotation relies on exactly one caller seeing nil.
func (r *RevocationRegistry) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	err := r.Store.Revoke(ctx, cryptox.FingerprintToken(token), expiresAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAlreadyExists):
		return ErrAlreadyRevoked
	default:
		return fmt.Errorf("revoke token: %w", err)
	}
}

func (r *RevocationRegistry) IsRevoked(ctx context.Context, token string) (bool, error) {
	revoked, err := r.Store.IsRevoked(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}

// BestEffortRevoke revokes a token of unknown kind during logout. Expired
// tokens are skipped, undecodable ones get FallbackRevocationTTL and a
// duplicate counts as success. Only a store failure is reported.
func (r *RevocationRegistry) BestEffortRevoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	now := r.now()
	expiresAt := now.Add(FallbackRevocationTTL)
	if c := r.decode(token); c != nil {
		exp := c.ExpiresAtTime()
		if !exp.After(now) {
			return nil
		}
		expiresAt = exp
	}

	err := r.Revoke(ctx, token, expiresAt)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyRevoked):
		return nil
	default:
		slogx.FromContext(ctx).ErrorContext(ctx, "token revocation failed", slog.Any("err", err))
		return domain.Internal(err)
	}
}

// decode tries the access secret first, then the refresh secret.
func (r *RevocationRegistry) decode(token string) *jwtx.Claims {
	if c, err := r.Tokens.DecodeAccess(token); err == nil {
		return c
	}
	if c, err := r.Tokens.DecodeRefresh(token); err == nil {
		return c
	}
	return nil
}
