// Package redis keeps sessions and token revocations in Redis, where key
// expiry does the housekeeping.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix    = "tabauth:sess:"
	revocationKeyPrefix = "tabauth:rvk:"

	// maxWatchRetries bounds optimistic retries when a watched key changes
	// between read and EXEC.
	maxWatchRetries = 8
)

// ErrContended is returned when a watched update keeps losing to concurrent
// writers.
var ErrContended = errors.New("redis: session update contended")

// Store implements store.Sessions and store.Revocations.
type Store struct {
	rdb *goredis.Client
}

// Options mirrors the REDIS_* configuration keys.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewStore dials Redis and pings it once so misconfiguration fails at startup.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return &Store{rdb: rdb}, nil
}

// NewStoreFromClient wraps an existing client.
func NewStoreFromClient(rdb *goredis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	data, err := s.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return domain.UnmarshalSession(data)
}

func (s *Store) PutSession(ctx context.Context, id string, sess domain.Session, ttl time.Duration) error {
	data, err := domain.MarshalSession(sess)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, sessionKeyPrefix+id, data, ttl).Err()
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, sessionKeyPrefix+id).Err()
}

// IncrementPendingAttempts reads, checks and rewrites the session inside
// WATCH/MULTI so it never replaces a session that left Pending2FA meanwhile.
func (s *Store) IncrementPendingAttempts(ctx context.Context, id string, limit int) (domain.Pending2FA, error) {
	key := sessionKeyPrefix + id

	for range maxWatchRetries {
		var updated domain.Pending2FA
		err := s.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			sess, err := domain.UnmarshalSession(data)
			if err != nil {
				return err
			}
			p, ok := sess.(domain.Pending2FA)
			if !ok {
				return store.ErrNotFound
			}

			p.Attempts++
			updated = p
			if p.Attempts >= limit {
				_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				return err
			}

			enc, err := domain.MarshalSession(p)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, enc, goredis.KeepTTL)
				return nil
			})
			return err
		}, key)

		switch {
		case errors.Is(err, goredis.TxFailedErr):
			continue
		case errors.Is(err, goredis.Nil):
			return domain.Pending2FA{}, store.ErrNotFound
		case err != nil:
			return domain.Pending2FA{}, err
		}
		return updated, nil
	}
	return domain.Pending2FA{}, ErrContended
}

// Revoke uses SET NX so exactly one caller wins for a given fingerprint.
func (s *Store) Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error {
	ttl := max(time.Until(expiresAt), time.Second)
	ok, err := s.rdb.SetNX(ctx, revocationKeyPrefix+fingerprint, expiresAt.Unix(), ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, fingerprint string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revocationKeyPrefix+fingerprint).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
