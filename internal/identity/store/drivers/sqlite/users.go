package sqlite

import (
	"context"
	"database/sql"

	"github.com/campushq/identity/internal/identity/domain"
)

type usersRepo struct {
	q querier
}

const userColumns = `id, tenant_id, username, email, user_type, password_hash, disabled, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID,
		&u.TenantID,
		&u.Username,
		&u.Email,
		&u.UserType,
		&u.PasswordHash,
		&u.Disabled,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND username = ?`,
		tenantID, username)
	return scanUser(row)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND lower(email) = lower(?)`,
		tenantID, email)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.TenantID,
		u.Username,
		u.Email,
		u.UserType,
		u.PasswordHash,
		u.Disabled,
		u.CreatedAt.UTC(),
		u.UpdatedAt.UTC(),
	)
	return mapUnique(err)
}
