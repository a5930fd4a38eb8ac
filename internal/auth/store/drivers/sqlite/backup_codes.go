package sqlite

import (
	"context"
	"time"
)

type backupCodesRepo struct {
	q *queries
}

// ReplaceBackupCodes is only atomic when called on a Tx-scoped store.
func (r *backupCodesRepo) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if err := r.q.DeleteAllBackupCodes(ctx, userID); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, h := range hashes {
		if err := r.q.CreateBackupCode(ctx, userID, h, now); err != nil {
			return mapConstraint(err)
		}
	}
	return nil
}

func (r *backupCodesRepo) ListBackupCodes(ctx context.Context, userID string) ([]string, error) {
	return r.q.ListBackupCodes(ctx, userID)
}

func (r *backupCodesRepo) DeleteBackupCode(ctx context.Context, userID string, codeHash string) (bool, error) {
	n, err := r.q.DeleteBackupCode(ctx, userID, codeHash)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	return r.q.DeleteAllBackupCodes(ctx, userID)
}

func (r *backupCodesRepo) CountUserBackupCodes(ctx context.Context, userID string) (int, error) {
	count, err := r.q.CountUserBackupCodes(ctx, userID)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
