package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Every TTL is configuration-driven per kind; these only
// back the config defaults.
const (
	// DefaultAccessTokenTTL keeps access tokens short-lived.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL must always exceed the access TTL, otherwise a
	// session could never be refreshed.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultExchangeTokenTTL bounds the window between a federated callback
	// and the front-end redeeming the one-time exchange token.
	DefaultExchangeTokenTTL = 2 * time.Minute
)

// Claims are the token claims shared by every credential kind. Access tokens
// carry the full principal; refresh and exchange tokens only need the
// registered claims plus the subject, with jti doubling as the single-use
// rotation identifier.
type Claims struct {
	jwt.RegisteredClaims

	// SID ties the token to a logical session that survives refreshes.
	SID string `json:"sid,omitempty"`

	// Username of the authenticated user.
	Username string `json:"username,omitempty"`

	// UserType tags the principal class, e.g. "learner" or "staff".
	UserType string `json:"user_type,omitempty"`

	// TenantID identifies the owning site.
	TenantID string `json:"tenant_id,omitempty"`

	// Roles granted to the principal at issuance time.
	Roles []string `json:"roles,omitempty"`
}

// NewClaims builds minimally-correct claims for the given subject. Audience
// and issuer are stamped by the codec per kind.
func NewClaims(subject, sid string, now time.Time, ttl time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID: sid,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the iss claim against the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks that at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry enforces exp and nbf with the given leeway. Zero leeway
// means exact expiry enforcement.
func (c *Claims) ValidateExpiry(leeway time.Duration) error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
