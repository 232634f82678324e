package http

import (
	"errors"
	"net/http"

	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/pkg/httpx"
)

// FederationHandler serves the SSO endpoints: the outbound redirect, email
// routing and the provider callback.
type FederationHandler struct {
	Federations *service.FederationService
}

// HandleURL serves GET /v1/federations/{name}/url?tenant_id=...,
// answering with the provider authorization redirect target.
func (h *FederationHandler) HandleURL(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	tenantID := r.URL.Query().Get("tenant_id")

	target, err := h.Federations.FederationURL(r.Context(), tenantID, name)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"redirect_url": target})
}

// HandleFind serves GET /v1/federations/find?tenant_id=...&email=...,
// routing an email address to the federation claiming its domain.
func (h *FederationHandler) HandleFind(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	match, err := h.Federations.FindFederation(r.Context(), q.Get("tenant_id"), q.Get("email"))
	switch {
	case errors.Is(err, service.ErrNotFound):
		// No federation claims the domain: the caller falls back to
		// password login. The body still carries the no-match status.
		httpx.WriteJSON(w, http.StatusNotFound, match)
	case err != nil:
		writeServiceError(w, err)
	default:
		httpx.WriteJSON(w, http.StatusOK, match)
	}
}

// HandleCallback serves GET /v1/federations/callback. The provider sends
// the browser here with code and state; on success the browser is bounced
// to the front-end completion page carrying the one-time exchange token.
func (h *FederationHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sess, err := h.Federations.CreateFederatedSession(r.Context(),
		q.Get("tenant_id"), q.Get("code"), q.Get("state"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if sess.RedirectURL != "" {
		http.Redirect(w, r, sess.RedirectURL, http.StatusFound)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"exchange_token": sess.ExchangeToken,
	})
}
