package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/pkg/idx"
)

// AuthorizeService answers permission questions: does this principal, via
// any of its roles, hold a grant for (access type, reference id)?
type AuthorizeService struct {
	Store store.Store
}

// Decision is the outcome of an authorization check.
type Decision struct {
	UserID  string   `json:"user_id"`
	Roles   []string `json:"roles"`
	Allowed bool     `json:"allowed"`
}

// Authorize resolves the principal's roles, then their grants, and answers
// whether the required capability is present. An unknown user fails
// authentication rather than returning an empty decision.
func (s *AuthorizeService) Authorize(ctx context.Context, userID, accessType, referenceID string) (Decision, error) {
	if strings.TrimSpace(accessType) == "" || strings.TrimSpace(referenceID) == "" {
		return Decision{}, ErrValidation
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Decision{}, ErrAuthenticationFailed
		}
		return Decision{}, err
	}
	if user.Disabled {
		return Decision{}, ErrAuthenticationFailed
	}

	roles, err := s.Store.RBAC().GetRolesForUser(ctx, user.ID)
	if err != nil {
		return Decision{}, err
	}

	roleIDs := make([]string, 0, len(roles))
	for _, r := range roles {
		roleIDs = append(roleIDs, r.ID)
	}

	grants, err := s.Store.RBAC().ListAccessGrantsForRoles(ctx, roleIDs)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		UserID: user.ID,
		Roles:  roleNames(roles),
	}
	for _, g := range grants {
		if g.AccessType == accessType && g.ReferenceID == referenceID {
			decision.Allowed = true
			break
		}
	}
	return decision, nil
}

// CreateRole registers a role within a tenant.
func (s *AuthorizeService) CreateRole(ctx context.Context, tenantID, name string) (domain.Role, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Role{}, ErrValidation
	}

	now := time.Now().UTC()
	role := domain.Role{
		ID:        idx.New().String(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.RBAC().CreateRole(ctx, role); err != nil {
		return domain.Role{}, err
	}
	return role, nil
}

// AssignRole links a user to a role.
func (s *AuthorizeService) AssignRole(ctx context.Context, userID, roleID string) error {
	return s.Store.RBAC().AssignRole(ctx, userID, roleID)
}

// Grant records a permission for a role over a resource. The (role, access
// type, reference) triple is unique; a duplicate is rejected here at write
// time, not filtered at read time.
func (s *AuthorizeService) Grant(ctx context.Context, roleID, accessType, referenceID, grantedBy string) (domain.AccessGrant, error) {
	if strings.TrimSpace(accessType) == "" || strings.TrimSpace(referenceID) == "" {
		return domain.AccessGrant{}, ErrValidation
	}

	g := domain.AccessGrant{
		ID:          idx.New().String(),
		RoleID:      roleID,
		AccessType:  accessType,
		ReferenceID: referenceID,
		GrantedBy:   grantedBy,
		GrantedAt:   time.Now().UTC(),
	}
	if err := s.Store.RBAC().CreateAccessGrant(ctx, g); err != nil {
		return domain.AccessGrant{}, err
	}
	return g, nil
}
