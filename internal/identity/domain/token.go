package domain

import "time"

// TokenPair is what a successful login, refresh or exchange returns. The
// fingerprint travels separately in a cookie and is never part of the pair.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	TokenType        string    `json:"token_type,omitempty"` // typically "Bearer"
}

// RefreshRecord is the persisted footprint of an issued refresh token. The
// record id equals the refresh token's jti; consumption is the single-use
// rotation gate.
type RefreshRecord struct {
	ID              string
	UserID          string
	TenantID        string
	SessionID       string // persists across refreshes
	FingerprintHash string // SHA-256 of the cookie-bound fingerprint
	IssuedAt        time.Time
	ExpiresAt       time.Time
	Consumed        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ProviderTokens is the normalized shape of an external IdP's token-endpoint
// response.
type ProviderTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"` // seconds
}
