package domain

import (
	"strings"
	"time"
)

// Federation auth methods control how the client credential is presented to
// the IdP's token endpoint.
const (
	AuthMethodSecretPost = "client_secret_post"
	AuthMethodBasic      = "client_secret_basic"
)

// Federation is an administrator-managed external identity provider a tenant
// trusts for SSO. Name is unique per tenant, case-insensitively.
type Federation struct {
	ID           string
	TenantID     string
	Name         string
	AuthURL      string // authorization-init endpoint
	TokenURL     string // token-exchange endpoint
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	AuthMethod   string   // client_secret_post or client_secret_basic
	EmailDomains []string // compared case-insensitively; may be empty
	// Position orders federations within a tenant; email-domain lookup takes
	// the first configured match.
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimsDomain reports whether the federation claims the given email domain.
// Matching is case-insensitive in both directions: administrators may
// configure domains in any case.
func (f Federation) ClaimsDomain(domain string) bool {
	for _, d := range f.EmailDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}
