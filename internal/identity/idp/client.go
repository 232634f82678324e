// Package idp talks to external identity providers. It covers the two
// outbound moments of a federated login: building the authorization redirect
// and exchanging the returned code for tokens.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/campushq/identity/internal/identity/domain"

	"golang.org/x/oauth2"
)

var (
	// ErrOpenID is a definitive protocol rejection from the provider, e.g.
	// an expired or replayed authorization code. Never retried.
	ErrOpenID = errors.New("idp: provider rejected the request")

	// ErrUpstream is a transient provider or transport failure. The client
	// retries these once before giving up.
	ErrUpstream = errors.New("idp: provider unavailable")
)

// Token-endpoint calls sit on the interactive login path, so the budget for
// connect plus response stays at a few seconds.
const defaultTimeout = 3 * time.Second

// Client exchanges authorization codes against a federation's token
// endpoint. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	retries    int
}

type Option func(*Client)

// WithHTTPClient replaces the transport, mainly for tests pointed at an
// httptest server.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries sets how many extra attempts follow a transient failure.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		retries:    1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// oauthConfig maps a stored federation onto the oauth2 client config.
func oauthConfig(f domain.Federation) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if f.AuthMethod == domain.AuthMethodBasic {
		style = oauth2.AuthStyleInHeader
	}

	return &oauth2.Config{
		ClientID:     f.ClientID,
		ClientSecret: f.ClientSecret,
		RedirectURL:  f.RedirectURL,
		Scopes:       f.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.AuthURL,
			TokenURL:  f.TokenURL,
			AuthStyle: style,
		},
	}
}

// AuthCodeURL builds the provider authorization redirect carrying the given
// anti-forgery state.
func (c *Client) AuthCodeURL(f domain.Federation, state string) string {
	return oauthConfig(f).AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for the provider's tokens.
// Definitive provider rejections surface as ErrOpenID; transient transport
// or 5xx failures are retried once and then surface as ErrUpstream.
func (c *Client) ExchangeCode(ctx context.Context, f domain.Federation, code string) (domain.ProviderTokens, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	cfg := oauthConfig(f)

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		tok, err := cfg.Exchange(ctx, code)
		if err == nil {
			return providerTokens(tok), nil
		}

		if isDefinitive(err) {
			return domain.ProviderTokens{}, fmt.Errorf("%w: %s", ErrOpenID, providerErrorCode(err))
		}
		if ctx.Err() != nil {
			return domain.ProviderTokens{}, ctx.Err()
		}
		lastErr = err
	}

	return domain.ProviderTokens{}, fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

// isDefinitive reports whether the exchange failed with a protocol-level
// rejection rather than a transient fault. A 4xx token-endpoint response is
// the provider telling us the request itself is bad; retrying cannot help.
func isDefinitive(err error) bool {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return rerr.Response.StatusCode >= 400 && rerr.Response.StatusCode < 500
	}
	return false
}

// providerErrorCode pulls the OAuth "error" code out of a rejection body so
// logs carry invalid_grant rather than a raw byte dump.
func providerErrorCode(err error) string {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return "unknown"
	}
	if rerr.ErrorCode != "" {
		return rerr.ErrorCode
	}

	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(rerr.Body, &body) == nil && body.Error != "" {
		return body.Error
	}
	return fmt.Sprintf("status %d", rerr.Response.StatusCode)
}

func providerTokens(tok *oauth2.Token) domain.ProviderTokens {
	pt := domain.ProviderTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		pt.IDToken = idToken
	}
	if !tok.Expiry.IsZero() {
		if secs := int64(time.Until(tok.Expiry).Seconds()); secs > 0 {
			pt.ExpiresIn = secs
		}
	}
	return pt
}
