package sqlite

import (
	"context"

	"github.com/campushq/identity/internal/identity/domain"
)

type oneTimeKeysRepo struct {
	q querier
}

func (r *oneTimeKeysRepo) CreateOneTimeKey(ctx context.Context, k domain.OneTimeKey) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO one_time_keys (key_hash, purpose, tenant_id, context, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.KeyHash,
		k.Purpose,
		k.TenantID,
		k.Context,
		k.CreatedAt.UTC(),
	)
	return mapUnique(err)
}

// RedeemOneTimeKey deletes the key and returns it in one statement, so two
// concurrent redemptions cannot both succeed. The loser sees zero returned
// rows, which maps to ErrNotFound.
func (r *oneTimeKeysRepo) RedeemOneTimeKey(ctx context.Context, keyHash, purpose string) (domain.OneTimeKey, error) {
	row := r.q.QueryRowContext(ctx,
		`DELETE FROM one_time_keys
		 WHERE key_hash = ? AND purpose = ?
		 RETURNING key_hash, purpose, tenant_id, context, created_at`,
		keyHash, purpose)

	var k domain.OneTimeKey
	err := row.Scan(&k.KeyHash, &k.Purpose, &k.TenantID, &k.Context, &k.CreatedAt)
	if err != nil {
		return domain.OneTimeKey{}, mapNotFound(err)
	}
	return k, nil
}
