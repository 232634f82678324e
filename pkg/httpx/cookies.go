package httpx

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig describes the session-fingerprint cookie. The TTL is
// independent of any token TTL so the fingerprint can outlive a single
// access token.
type CookieConfig struct {
	Name     string
	Domain   string
	SameSite string // "", "lax", "strict", "none"
	Secure   bool
	TTL      time.Duration
}

// BindCookie sets value as an HTTP-only cookie per cfg. The fingerprint
// travels only in this cookie while the token travels in the response body,
// so possession of one artifact alone cannot replay a session.
func BindCookie(w http.ResponseWriter, cfg CookieConfig, value string) {
	now := time.Now().UTC()
	c := &http.Cookie{
		Name:     cfg.Name,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(cfg.TTL),
		MaxAge:   int(cfg.TTL.Seconds()),
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(cfg.SameSite),
	}
	if cfg.Domain != "" {
		c.Domain = cfg.Domain
	}
	http.SetCookie(w, c)
}

// UnbindCookie overwrites the cookie with an already-expired one so the
// user agent drops it. Name, domain and flags must match the bound cookie.
func UnbindCookie(w http.ResponseWriter, cfg CookieConfig) {
	c := &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		Secure:   cfg.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(cfg.SameSite),
	}
	if cfg.Domain != "" {
		c.Domain = cfg.Domain
	}
	http.SetCookie(w, c)
}

// parseSameSite accepts "", "lax", "strict", "none" case-insensitively and
// defaults to Lax. SameSite=None requires Secure on modern browsers; that is
// the deployer's responsibility, not enforced here.
func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
