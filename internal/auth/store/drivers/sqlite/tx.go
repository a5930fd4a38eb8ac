package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

// ErrNestedTx is returned by Tx on a transaction-scoped store. WithTx joins
// the outer transaction instead.
var ErrNestedTx = errors.New("sqlite: nested transactions are not supported")

// txStore hands out repositories bound to one *sql.Tx. Commit and Rollback
// belong to whoever opened it; joined callers only see the repositories.
type txStore struct {
	tx *sql.Tx
	q  *queries
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx, q: &queries{db: tx}}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Tx(context.Context) (store.Tx, error) { return nil, ErrNestedTx }

// WithTx runs fn inside the enclosing transaction, so a service helper that
// opens its own unit of work composes with a caller that already has one.
// fn's error still aborts the outer transaction once it propagates.
func (t *txStore) WithTx(_ context.Context, fn func(tx store.Tx) error) error {
	return fn(joinedTx{t})
}

func (t *txStore) Users() store.Users             { return &usersRepo{q: t.q} }
func (t *txStore) BackupCodes() store.BackupCodes { return &backupCodesRepo{q: t.q} }
func (t *txStore) Revocations() store.Revocations { return &revocationsRepo{q: t.q} }

func (t *txStore) ApplyMigrations() error         { return ErrNestedTx }
func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }

// joinedTx is the view given to a nested WithTx: the outer owner decides
// the outcome, so Commit and Rollback are no-ops here.
type joinedTx struct{ *txStore }

func (joinedTx) Commit() error   { return nil }
func (joinedTx) Rollback() error { return nil }
