package http

import (
	"errors"
	"net/http"

	"github.com/campushq/identity/internal/identity/idp"
	"github.com/campushq/identity/internal/identity/service"
	"github.com/campushq/identity/internal/identity/store"
	"github.com/campushq/identity/pkg/httpx"
)

// ErrorResponse is the wire shape of every failure.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeError(w http.ResponseWriter, code int, err, desc string) {
	httpx.WriteJSON(w, code, ErrorResponse{Error: err, Description: desc})
}

// writeServiceError maps the service failure taxonomy onto status codes.
// Internal detail never leaks: the body carries only the taxonomy code.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", "malformed or missing input")
	case errors.Is(err, service.ErrAuthenticationFailed):
		writeError(w, http.StatusUnauthorized, "authentication_failed", "")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "")
	case errors.Is(err, idp.ErrOpenID):
		writeError(w, http.StatusBadRequest, "openid_failure", "identity provider rejected the exchange")
	case errors.Is(err, idp.ErrUpstream):
		writeError(w, http.StatusBadGateway, "upstream_unavailable", "identity provider unreachable")
	case errors.Is(err, store.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_exists", "")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", "")
	}
}
