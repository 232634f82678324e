package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/pkg/httpx"
)

// SessionHandler serves the credential lifecycle endpoints: login, refresh,
// exchange and invalidate. Tokens travel in JSON bodies; the fingerprint
// only ever travels in its HTTP-only cookie.
type SessionHandler struct {
	Sessions *service.SessionService
	Cookie   httpx.CookieConfig
}

// TokenResponse is the success shape of every issuance endpoint.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

func tokenResponse(pair domain.TokenPair) TokenResponse {
	now := time.Now()
	return TokenResponse{
		AccessToken:      pair.AccessToken,
		TokenType:        pair.TokenType,
		ExpiresIn:        int64(pair.AccessExpiresAt.Sub(now).Seconds()),
		RefreshToken:     pair.RefreshToken,
		RefreshExpiresIn: int64(pair.RefreshExpiresAt.Sub(now).Seconds()),
	}
}

// writeSession binds the fingerprint cookie and writes the pair. The
// response is marked uncacheable since it carries credentials.
func (h *SessionHandler) writeSession(w http.ResponseWriter, creds service.SessionCredentials) {
	httpx.NoCache(w)
	httpx.BindCookie(w, h.Cookie, creds.Fingerprint)
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(creds.Pair))
}

// HandleLogin serves POST /v1/sessions/login.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	creds, err := h.Sessions.Login(r.Context(), req.TenantID, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSession(w, creds)
}

// HandleRefresh serves POST /v1/sessions/refresh. The fingerprint is read
// from the cookie so a body-only replay of a stolen refresh token fails.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	fingerprint := ""
	if c, err := r.Cookie(h.Cookie.Name); err == nil {
		fingerprint = c.Value
	}

	creds, err := h.Sessions.Refresh(r.Context(), req.RefreshToken, fingerprint)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSession(w, creds)
}

// HandleExchange serves POST /v1/sessions/exchange, redeeming the one-time
// token a federated login hands to the front-end.
func (h *SessionHandler) HandleExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	creds, err := h.Sessions.ExchangeToken(r.Context(), req.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeSession(w, creds)
}

// HandleInvalidate serves POST /v1/sessions/invalidate. Requires an
// authenticated caller; the refresh record is consumed and the fingerprint
// cookie cleared. Partial failure is reported, never swallowed.
func (h *SessionHandler) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "")
		return
	}

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	principal := domain.Principal{
		UserID:   claims.Subject,
		Username: claims.Username,
		UserType: claims.UserType,
		TenantID: claims.TenantID,
		Roles:    claims.Roles,
	}
	if err := h.Sessions.Invalidate(r.Context(), principal, req.RefreshToken); err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.UnbindCookie(w, h.Cookie)
	w.WriteHeader(http.StatusNoContent)
}
