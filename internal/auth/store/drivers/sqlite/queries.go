package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the hand-written SQL, one method per statement.
type queries struct {
	db dbtx
}

const userColumns = `id, name, email, phone, password_hash, role, provider, provider_id,
	avatar, two_factor_enabled, two_factor_secret, created_at, updated_at`

type userRow struct {
	ID               string
	Name             string
	Email            string
	Phone            sql.NullString
	PasswordHash     sql.NullString
	Role             string
	Provider         sql.NullString
	ProviderID       sql.NullString
	Avatar           sql.NullString
	TwoFactorEnabled bool
	TwoFactorSecret  sql.NullString
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var r userRow
	err := row.Scan(
		&r.ID, &r.Name, &r.Email, &r.Phone, &r.PasswordHash, &r.Role, &r.Provider,
		&r.ProviderID, &r.Avatar, &r.TwoFactorEnabled, &r.TwoFactorSecret,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		Phone:            mapNullStringPtr(r.Phone),
		PasswordHash:     mapNullStringPtr(r.PasswordHash),
		Role:             r.Role,
		Provider:         mapNullStringPtr(r.Provider),
		ProviderID:       mapNullStringPtr(r.ProviderID),
		Avatar:           mapNullStringPtr(r.Avatar),
		TwoFactorEnabled: r.TwoFactorEnabled,
		TwoFactorSecret:  mapNullStringPtr(r.TwoFactorSecret),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

func (q *queries) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (q *queries) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

// GetUserByEmailOrPhone prefers an email match when both columns hit
// different rows.
func (q *queries) GetUserByEmailOrPhone(ctx context.Context, email, phone string) (domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		WHERE (? <> '' AND email = ?) OR (? <> '' AND phone = ?)
		ORDER BY CASE WHEN email = ? THEN 0 ELSE 1 END
		LIMIT 1`,
		email, email, phone, phone, email))
}

func (q *queries) GetUserByProvider(ctx context.Context, provider, providerID string) (domain.User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`,
		provider, providerID))
}

func (q *queries) CreateUser(ctx context.Context, u domain.User) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Email, mapOptionalString(u.Phone), mapOptionalString(u.PasswordHash),
		u.Role, mapOptionalString(u.Provider), mapOptionalString(u.ProviderID),
		mapOptionalString(u.Avatar), u.TwoFactorEnabled, mapOptionalString(u.TwoFactorSecret),
		u.CreatedAt, u.UpdatedAt,
	)
	return err
}

// UpdateUser uses COALESCE so nil patch fields keep the stored value.
func (q *queries) UpdateUser(ctx context.Context, id string, p domain.UserPatch, now time.Time) (int64, error) {
	var enabled sql.NullBool
	if p.TwoFactorEnabled != nil {
		enabled = sql.NullBool{Bool: *p.TwoFactorEnabled, Valid: true}
	}

	res, err := q.db.ExecContext(ctx,
		`UPDATE users SET
			name               = COALESCE(?, name),
			avatar             = COALESCE(?, avatar),
			provider           = COALESCE(?, provider),
			provider_id        = COALESCE(?, provider_id),
			two_factor_enabled = COALESCE(?, two_factor_enabled),
			two_factor_secret  = CASE WHEN ? THEN NULL ELSE COALESCE(?, two_factor_secret) END,
			updated_at         = ?
		WHERE id = ?`,
		mapOptionalString(p.Name), mapOptionalString(p.Avatar),
		mapOptionalString(p.Provider), mapOptionalString(p.ProviderID),
		enabled, p.ClearTwoFactorSecret, mapOptionalString(p.TwoFactorSecret),
		now, id,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) CreateBackupCode(ctx context.Context, userID, codeHash string, now time.Time) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO backup_codes (user_id, code_hash, created_at) VALUES (?, ?, ?)`,
		userID, codeHash, now)
	return err
}

func (q *queries) ListBackupCodes(ctx context.Context, userID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT code_hash FROM backup_codes WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

func (q *queries) DeleteBackupCode(ctx context.Context, userID, codeHash string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM backup_codes WHERE user_id = ? AND code_hash = ?`, userID, codeHash)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM backup_codes WHERE user_id = ?`, userID)
	return err
}

func (q *queries) CountUserBackupCodes(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

func (q *queries) InsertRevokedToken(ctx context.Context, hash string, expiresAt, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO revoked_tokens (token_hash, expires_at, revoked_at) VALUES (?, ?, ?)
		ON CONFLICT (token_hash) DO NOTHING`,
		hash, expiresAt.Unix(), now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) RevokedTokenExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_hash = ?)`, hash).Scan(&exists)
	return exists, err
}

func (q *queries) DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`DELETE FROM revoked_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
