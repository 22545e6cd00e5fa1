package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/drago-vuckovic/sso/internal/auth"
	"github.com/drago-vuckovic/sso/internal/directory"
	"github.com/drago-vuckovic/sso/internal/provider"
)

// maxBodyBytes bounds request bodies on the admin surface.
const maxBodyBytes = 1 << 20

// UserService is the subset of *directory.Directory the handlers need.
type UserService interface {
	List(ctx context.Context, opts directory.ListOptions) ([]directory.UserSummary, error)
	Get(ctx context.Context, id string) (*directory.User, error)
	Create(ctx context.Context, in directory.NewUser) (*directory.CreateResult, error)
	Update(ctx context.Context, id string, upd directory.UserUpdate) error
	Delete(ctx context.Context, id string) error
	ListRoles(ctx context.Context) ([]directory.Role, error)
}

type createUserRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

type createUserResponse struct {
	ID       string   `json:"id"`
	Roles    []string `json:"roles"`
	Warnings []string `json:"warnings,omitempty"`
}

// updateUserRequest uses pointers so absent fields stay untouched.
type updateUserRequest struct {
	Username *string   `json:"username"`
	Email    *string   `json:"email"`
	Enabled  *bool     `json:"enabled"`
	Roles    *[]string `json:"roles"`
}

type userHandlers struct {
	users     UserService
	validator *Validator
	logger    *slog.Logger
}

func (h *userHandlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := directory.ListOptions{Filter: q.Get("filter")}
	var err error
	if opts.First, err = intParam(q.Get("first")); err != nil {
		writeError(w, h.logger, r, provider.Validation("List", "first must be an integer"))
		return
	}
	if opts.Max, err = intParam(q.Get("max")); err != nil {
		writeError(w, h.logger, r, provider.Validation("List", "max must be an integer"))
		return
	}

	users, err := h.users.List(r.Context(), opts)
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *userHandlers) get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *userHandlers) create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(r, schemaCreateUser, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	result, err := h.users.Create(r.Context(), directory.NewUser{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Roles:    req.Roles,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	resp := createUserResponse{ID: result.ID, Roles: result.Roles.Added}
	if resp.Roles == nil {
		resp.Roles = []string{}
	}
	if !result.Complete() {
		kind := provider.Kind(result.RolesErr)
		resp.Warnings = append(resp.Warnings, "user created but initial roles were not fully assigned: "+publicMessage(kind, result.RolesErr))
	}
	w.Header().Set("Location", "/api/admin/users/"+result.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *userHandlers) update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userID")
	var req updateUserRequest
	if err := h.decode(r, schemaUpdateUser, &req); err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	err := h.users.Update(r.Context(), id, directory.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Enabled:  req.Enabled,
		Roles:    req.Roles,
	})
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}

	// The update is already applied; a failed re-read must not report failure.
	user, err := h.users.Get(r.Context(), id)
	if err != nil {
		h.logger.WarnContext(r.Context(), "re-read after update failed", "user", id, "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *userHandlers) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), chi.URLParam(r, "userID")); err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *userHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.users.ListRoles(r.Context())
	if err != nil {
		writeError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roles)
}

// decode validates the body against schema and unmarshals it into dst.
func (h *userHandlers) decode(r *http.Request, schema string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return provider.Validation("DecodeBody", "could not read request body")
	}
	if len(body) > maxBodyBytes {
		return provider.Validation("DecodeBody", "request body too large")
	}
	if err := h.validator.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return provider.Validation("DecodeBody", "request body does not match the expected shape")
	}
	return nil
}

func handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthenticated"})
		return
	}
	resp := whoAmIResponse{Principal: principal}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		resp.Claims = claims
	}
	writeJSON(w, http.StatusOK, resp)
}

type whoAmIResponse struct {
	auth.Principal
	// Claims is the verified access token payload. Absent without a token.
	Claims map[string]any `json:"claims,omitempty"`
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
