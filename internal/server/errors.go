package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/drago-vuckovic/sso/internal/provider"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error kind to the caller-facing status. ErrAuthentication
// is the gateway's own admin credential failing upstream, hence 502.
func statusFor(kind error) int {
	switch kind {
	case provider.ErrValidation:
		return http.StatusBadRequest
	case provider.ErrNotFound:
		return http.StatusNotFound
	case provider.ErrConflict:
		return http.StatusConflict
	case provider.ErrUnresolvedRole:
		return http.StatusUnprocessableEntity
	case provider.ErrAuthentication:
		return http.StatusBadGateway
	case provider.ErrUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindName(kind error) string {
	switch kind {
	case provider.ErrValidation:
		return "validation"
	case provider.ErrNotFound:
		return "not_found"
	case provider.ErrConflict:
		return "conflict"
	case provider.ErrUnresolvedRole:
		return "unresolved_role"
	case provider.ErrAuthentication:
		return "provider_authentication"
	case provider.ErrUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// publicMessage returns a message safe to show the caller. Locally produced
// validation and role messages are passed through; upstream bodies are not.
func publicMessage(kind, err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) && perr.StatusCode == 0 && perr.Message != "" {
		if kind == provider.ErrValidation || kind == provider.ErrUnresolvedRole {
			return perr.Message
		}
	}
	switch kind {
	case provider.ErrValidation:
		return "invalid request"
	case provider.ErrNotFound:
		return "user not found"
	case provider.ErrConflict:
		return "a user with this username or email already exists"
	case provider.ErrUnresolvedRole:
		return "unknown role"
	case provider.ErrAuthentication:
		return "identity provider rejected the gateway credential"
	case provider.ErrUnavailable:
		return "identity provider unavailable"
	default:
		return "internal error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, r *http.Request, err error) {
	kind := provider.Kind(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: publicMessage(kind, err), Kind: kindName(kind)})
}
