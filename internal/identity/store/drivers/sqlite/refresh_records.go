package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/store"
)

type refreshRecordsRepo struct {
	q querier
}

const refreshRecordColumns = `id, user_id, tenant_id, session_id, fingerprint_hash, issued_at, expires_at, consumed, created_at, updated_at`

func scanRefreshRecord(row *sql.Row) (domain.RefreshRecord, error) {
	var rec domain.RefreshRecord
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.TenantID,
		&rec.SessionID,
		&rec.FingerprintHash,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.Consumed,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return domain.RefreshRecord{}, mapNotFound(err)
	}
	return rec, nil
}

func (r *refreshRecordsRepo) CreateRefreshRecord(ctx context.Context, rec domain.RefreshRecord) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO refresh_records (`+refreshRecordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.UserID,
		rec.TenantID,
		rec.SessionID,
		rec.FingerprintHash,
		rec.IssuedAt.UTC(),
		rec.ExpiresAt.UTC(),
		rec.Consumed,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	return mapUnique(err)
}

func (r *refreshRecordsRepo) GetRefreshRecordByID(ctx context.Context, id string) (domain.RefreshRecord, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+refreshRecordColumns+` FROM refresh_records WHERE id = ?`, id)
	return scanRefreshRecord(row)
}

// ConsumeRefreshRecord flips consumed from 0 to 1 if and only if the record
// is still live. The conditional UPDATE is the single point of mutual
// exclusion: of N concurrent consumers exactly one sees RowsAffected == 1.
// Losers get a classifying read to tell reuse from expiry from absence.
func (r *refreshRecordsRepo) ConsumeRefreshRecord(ctx context.Context, id string, now time.Time) (domain.RefreshRecord, error) {
	res, err := r.q.ExecContext(ctx,
		`UPDATE refresh_records
		 SET consumed = 1, updated_at = ?
		 WHERE id = ? AND consumed = 0 AND expires_at > ?`,
		now.UTC(), id, now.UTC())
	if err != nil {
		return domain.RefreshRecord{}, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return domain.RefreshRecord{}, err
	}

	rec, getErr := r.GetRefreshRecordByID(ctx, id)

	if n == 1 {
		if getErr != nil {
			return domain.RefreshRecord{}, getErr
		}
		return rec, nil
	}

	// The UPDATE matched nothing. Classify why.
	if getErr != nil {
		return domain.RefreshRecord{}, getErr // includes ErrNotFound
	}
	if rec.Consumed {
		return rec, store.ErrAlreadyConsumed
	}
	return rec, store.ErrExpired
}

func (r *refreshRecordsRepo) GetActiveSessionRecord(ctx context.Context, sessionID string, now time.Time) (domain.RefreshRecord, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+refreshRecordColumns+` FROM refresh_records
		 WHERE session_id = ? AND consumed = 0 AND expires_at > ?
		 ORDER BY issued_at DESC
		 LIMIT 1`,
		sessionID, now.UTC())
	return scanRefreshRecord(row)
}
