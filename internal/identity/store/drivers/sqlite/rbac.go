package sqlite

import (
	"context"
	"strings"

	"github.com/campushq/identity/internal/identity/domain"
)

type rbacRepo struct {
	q querier
}

func (r *rbacRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO roles (id, tenant_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		role.ID,
		role.TenantID,
		role.Name,
		role.CreatedAt.UTC(),
		role.UpdatedAt.UTC(),
	)
	return mapUnique(err)
}

func (r *rbacRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?)`,
		userID, roleID)
	return mapUnique(err)
}

func (r *rbacRepo) GetRolesForUser(ctx context.Context, userID string) ([]domain.Role, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT r.id, r.tenant_id, r.name, r.created_at, r.updated_at
		 FROM roles r
		 JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ?
		 ORDER BY r.name ASC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *rbacRepo) CreateAccessGrant(ctx context.Context, g domain.AccessGrant) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO access_grants (id, role_id, access_type, reference_id, granted_by, granted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID,
		g.RoleID,
		g.AccessType,
		g.ReferenceID,
		g.GrantedBy,
		g.GrantedAt.UTC(),
	)
	return mapUnique(err)
}

func (r *rbacRepo) ListAccessGrantsForRoles(ctx context.Context, roleIDs []string) ([]domain.AccessGrant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roleIDs)), ", ")
	args := make([]any, len(roleIDs))
	for i, id := range roleIDs {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT id, role_id, access_type, reference_id, granted_by, granted_at
		 FROM access_grants
		 WHERE role_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccessGrant
	for rows.Next() {
		var g domain.AccessGrant
		if err := rows.Scan(&g.ID, &g.RoleID, &g.AccessType, &g.ReferenceID, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
