// Package jwtx implements the credential codec: a per-kind JWT
// signer/verifier where each kind (access, refresh, exchange) carries its own
// signing key, issuer and audience. A token minted for one kind can never
// verify under another kind's parameters.
package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which credential class a token belongs to.
type Kind string

const (
	KindAccess   Kind = "access"
	KindRefresh  Kind = "refresh"
	KindExchange Kind = "exchange"
)

// KeyConfig holds the signing parameters for one token kind.
type KeyConfig struct {
	// Secret is the HS256 signing key. Required, minimum 32 bytes.
	Secret []byte

	// Issuer stamped into iss and enforced on verify.
	Issuer string

	// Audience stamped into aud and enforced on verify.
	Audience []string

	// TTL is the token lifetime.
	TTL time.Duration

	// Leeway is the clock-skew tolerance for exp/nbf. Zero means exact
	// expiry enforcement.
	Leeway time.Duration
}

const minSecretLen = 32

// Codec issues and verifies signed tokens for a fixed set of kinds.
type Codec struct {
	kinds map[Kind]KeyConfig
}

// NewCodec validates each kind's config and returns a ready codec.
func NewCodec(kinds map[Kind]KeyConfig) (*Codec, error) {
	if len(kinds) == 0 {
		return nil, errors.New("jwtx: at least one kind is required")
	}
	for kind, cfg := range kinds {
		if len(cfg.Secret) < minSecretLen {
			return nil, fmt.Errorf("jwtx: kind %q secret must be at least %d bytes", kind, minSecretLen)
		}
		if cfg.Issuer == "" {
			return nil, fmt.Errorf("jwtx: kind %q issuer is required", kind)
		}
		if len(cfg.Audience) == 0 {
			return nil, fmt.Errorf("jwtx: kind %q audience is required", kind)
		}
		if cfg.TTL <= 0 {
			return nil, fmt.Errorf("jwtx: kind %q ttl must be positive", kind)
		}
	}

	// A refresh token that outlives nothing cannot rotate anything: the
	// access lifetime must stay strictly below the refresh lifetime.
	access, hasAccess := kinds[KindAccess]
	refresh, hasRefresh := kinds[KindRefresh]
	if hasAccess && hasRefresh && access.TTL >= refresh.TTL {
		return nil, fmt.Errorf("jwtx: access ttl %s must be shorter than refresh ttl %s", access.TTL, refresh.TTL)
	}

	return &Codec{kinds: kinds}, nil
}

// TTL returns the configured lifetime for a kind, or zero for unknown kinds.
func (c *Codec) TTL(kind Kind) time.Duration {
	return c.kinds[kind].TTL
}

// Issue signs claims under the kind's key, stamping the kind's issuer and
// audience over whatever the caller set.
func (c *Codec) Issue(kind Kind, claims Claims) (string, error) {
	cfg, ok := c.kinds[kind]
	if !ok {
		return "", ErrUnknownKind
	}

	claims.Issuer = cfg.Issuer
	claims.Audience = jwt.ClaimStrings(cfg.Audience)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry in that order,
// short-circuiting on the first failure.
func (c *Codec) Verify(kind Kind, tokenStr string) (Claims, error) {
	cfg, ok := c.kinds[kind]
	if !ok {
		return Claims{}, ErrUnknownKind
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Claim checks happen below, in contract order.
		jwt.WithoutClaimsValidation(),
	)

	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return cfg.Secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSig
		default:
			return Claims{}, ErrMalformed
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(cfg.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(cfg.Audience); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiry(cfg.Leeway); err != nil {
		return Claims{}, err
	}

	return *claims, nil
}
