package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/campushq/identity/internal/identity/store"
)

// txStore scopes all repositories to a single *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) store.Tx {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Users() store.Users                   { return &usersRepo{q: t.tx} }
func (t *txStore) RefreshRecords() store.RefreshRecords { return &refreshRecordsRepo{q: t.tx} }
func (t *txStore) OneTimeKeys() store.OneTimeKeys       { return &oneTimeKeysRepo{q: t.tx} }
func (t *txStore) Federations() store.Federations       { return &federationsRepo{q: t.tx} }
func (t *txStore) RBAC() store.RBAC                     { return &rbacRepo{q: t.tx} }
func (t *txStore) LoginAttempts() store.LoginAttempts   { return &loginAttemptsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error {
	return errors.New("sqlite: migrations cannot run inside a transaction")
}

func (t *txStore) Close() error { return t.tx.Rollback() }

func (t *txStore) Ping(ctx context.Context) error { return nil }

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	return nil, errors.New("sqlite: nested transactions are not supported")
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	// Already inside a transaction; run fn against the same scope.
	return fn(t)
}
