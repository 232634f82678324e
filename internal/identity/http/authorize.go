package http

import (
	"encoding/json"
	"net/http"

	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/pkg/httpx"
)

// AuthorizeHandler serves permission checks and the admin-facing role and
// grant management endpoints.
type AuthorizeHandler struct {
	Authorize *service.AuthorizeService
}

// HandleCheck serves POST /v1/authorize for the authenticated caller.
func (h *AuthorizeHandler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromCtx(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "")
		return
	}

	var req struct {
		AccessType  string `json:"access_type"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	decision, err := h.Authorize.Authorize(r.Context(), claims.Subject, req.AccessType, req.ReferenceID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, decision)
}

// HandleCreateRole serves POST /v1/roles (admin only).
func (h *AuthorizeHandler) HandleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID string `json:"tenant_id"`
		Name     string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	role, err := h.Authorize.CreateRole(r.Context(), req.TenantID, req.Name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":   role.ID,
		"name": role.Name,
	})
}

// HandleAssignRole serves POST /v1/roles/{id}/assign (admin only).
func (h *AuthorizeHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	if err := h.Authorize.AssignRole(r.Context(), req.UserID, r.PathValue("id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGrant serves POST /v1/roles/{id}/grants (admin only).
func (h *AuthorizeHandler) HandleGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccessType  string `json:"access_type"`
		ReferenceID string `json:"reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid JSON body")
		return
	}

	grantedBy := httpx.UserIDFromCtx(r.Context())
	grant, err := h.Authorize.Grant(r.Context(), r.PathValue("id"), req.AccessType, req.ReferenceID, grantedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"id":           grant.ID,
		"access_type":  grant.AccessType,
		"reference_id": grant.ReferenceID,
	})
}
