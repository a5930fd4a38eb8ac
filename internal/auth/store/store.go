package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface for durable credential state.
// Concrete drivers implement it and expose sub-repositories so a transaction
// hands out the same repositories bound to the transaction.
type Store interface {
	Users() Users
	BackupCodes() BackupCodes
	Revocations() Revocations

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Users is the credential store.
type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// FindByEmailOrPhone matches either column. Pass "" to skip one of them.
	FindByEmailOrPhone(ctx context.Context, email, phone string) (domain.User, error)

	FindByEmail(ctx context.Context, email string) (domain.User, error)

	// FindByProvider looks up an OAuth identity.
	FindByProvider(ctx context.Context, provider, providerID string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID). Returns
	// ErrAlreadyExists when the email, phone or provider identity is taken.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUser applies a partial update, bumps updated_at and returns the
	// stored record.
	UpdateUser(ctx context.Context, id string, patch domain.UserPatch) (domain.User, error)
}

type BackupCodes interface {
	// ReplaceBackupCodes drops any existing codes and stores the new hashes.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// ListBackupCodes returns the stored hashes.
	ListBackupCodes(ctx context.Context, userID string) ([]string, error)

	// DeleteBackupCode removes one hash. It reports false when the hash was
	// already gone, which means a concurrent request consumed it first.
	DeleteBackupCode(ctx context.Context, userID string, codeHash string) (bool, error)

	// DeleteAllBackupCodes removes all backup codes for a user.
	DeleteAllBackupCodes(ctx context.Context, userID string) error

	// CountUserBackupCodes returns the number of backup codes for a user.
	CountUserBackupCodes(ctx context.Context, userID string) (int, error)
}

// Revocations is the registry of consumed or invalidated tokens, keyed by
// token fingerprint.
type Revocations interface {
	// Revoke inserts the fingerprint. A second call for the same fingerprint
	// returns ErrAlreadyExists, which refresh rotation treats as double-spend.
	Revoke(ctx context.Context, fingerprint string, expiresAt time.Time) error

	// IsRevoked reports whether the fingerprint is present, regardless of
	// whether its expiry has passed but housekeeping has not run yet.
	IsRevoked(ctx context.Context, fingerprint string) (bool, error)
}

// Sessions holds the server side of the session cookie.
type Sessions interface {
	// GetSession returns ErrNotFound for unknown or expired ids.
	GetSession(ctx context.Context, id string) (domain.Session, error)

	// PutSession replaces whatever the id held before.
	PutSession(ctx context.Context, id string, s domain.Session, ttl time.Duration) error

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error

	// IncrementPendingAttempts counts one second-factor attempt against a
	// Pending2FA session in a single atomic step and returns the updated
	// record. The record is deleted once Attempts reaches limit. Missing,
	// expired and authenticated sessions yield ErrNotFound and are left as is.
	IncrementPendingAttempts(ctx context.Context, id string, limit int) (domain.Pending2FA, error)

	Ping(ctx context.Context) error
}

// ExpirySweeper is implemented by backends that do not expire entries on
// their own. Housekeeping calls it periodically.
type ExpirySweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
