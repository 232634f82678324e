package domain

import "time"

type Role struct {
	ID        string
	TenantID  string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccessGrant ties a role to an access type over a specific resource. The
// (RoleID, AccessType, ReferenceID) triple is the access-check key and is
// unique at write time.
type AccessGrant struct {
	ID          string
	RoleID      string
	AccessType  string
	ReferenceID string
	GrantedBy   string
	GrantedAt   time.Time
}
