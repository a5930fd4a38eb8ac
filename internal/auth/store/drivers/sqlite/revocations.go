package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type revocationsRepo struct {
	q *queries
}

func (r *revocationsRepo) Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error {
	n, err := r.q.InsertRevokedToken(ctx, fingerprint, expiresAt, time.Now().UTC())
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (r *revocationsRepo) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	return r.q.RevokedTokenExists(ctx, fingerprint)
}

func (r *revocationsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.q.DeleteExpiredRevokedTokens(ctx, now)
}
