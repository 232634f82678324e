package sqlite

import (
	"context"

	"github.com/campushq/identity/internal/identity/domain"
)

type loginAttemptsRepo struct {
	q querier
}

func (r *loginAttemptsRepo) CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO login_attempts (user_id, attempted_at, success)
		 VALUES (?, ?, ?)`,
		a.UserID,
		a.AttemptedAt.UTC(),
		a.Success,
	)
	return mapUnique(err)
}

func (r *loginAttemptsRepo) ListLoginAttempts(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT user_id, attempted_at, success
		 FROM login_attempts
		 WHERE user_id = ?
		 ORDER BY attempted_at DESC
		 LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LoginAttempt
	for rows.Next() {
		var a domain.LoginAttempt
		if err := rows.Scan(&a.UserID, &a.AttemptedAt, &a.Success); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
