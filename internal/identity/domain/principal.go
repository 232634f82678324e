package domain

// Principal is the authenticated identity carried in access-token claims.
// It is immutable once issued into a token; privileged lookups re-derive it
// from storage.
type Principal struct {
	UserID   string
	Username string
	UserType string
	TenantID string
	Roles    []string
}
