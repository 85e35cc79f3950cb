package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/company"
	"github.com/cbums/cbums/internal/user"
	"github.com/go-chi/chi/v5"
)

// userStore is the slice of user.Store the user handlers need; tests swap in
// fakes.
type userStore interface {
	Create(ctx context.Context, in user.CreateUserInput) (*user.User, error)
	ListVisible(ctx context.Context, actor *auth.Identity, params user.ListParams) ([]*user.User, string, error)
	GetVisibleByID(ctx context.Context, actor *auth.Identity, id string) (*user.User, error)
	Update(ctx context.Context, id string, in user.UpdateUserInput) (*user.User, error)
	Delete(ctx context.Context, id string) error
	GetPermissions(ctx context.Context, userID string) (*user.OperatorPermissions, error)
	SetPermissions(ctx context.Context, p user.OperatorPermissions) (*user.OperatorPermissions, error)
}

// companyScope resolves a client-supplied company id inside the actor's
// visibility; out-of-scope and absent ids both read as pgx.ErrNoRows.
type companyScope interface {
	GetVisibleByID(ctx context.Context, actor *auth.Identity, id string) (*company.Company, error)
}

// usersHandler groups user management HTTP handlers.
type usersHandler struct {
	store     userStore
	companies companyScope
	recorder  *audit.Recorder
}

func newUsersHandler(store userStore, companies companyScope, recorder *audit.Recorder) *usersHandler {
	return &usersHandler{store: store, companies: companies, recorder: recorder}
}

// canCreateRole enforces who may create whom. SUPERADMIN creates anyone,
// ADMIN creates companies' employees and COMPANY logins, COMPANY creates its
// own employees.
func canCreateRole(actor *auth.Identity, targetRole string) bool {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return true
	case auth.RoleAdmin:
		return targetRole == auth.RoleEmployee || targetRole == auth.RoleCompany
	case auth.RoleCompany:
		return targetRole == auth.RoleEmployee
	default:
		return false
	}
}

// CreateUser handles POST /api/v1/users.
func (h *usersHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	var req user.CreateUserInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if !canCreateRole(actor, req.Role) {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot create users with that role")
		return
	}

	// Company logins always create employees inside their own company;
	// everyone else must name a company inside their own scope.
	if actor.Role == auth.RoleCompany {
		req.CompanyID = actor.CompanyID
	} else if req.CompanyID != "" {
		if _, err := h.companies.GetVisibleByID(r.Context(), actor, req.CompanyID); err != nil {
			writeStoreError(w, err, "company not found")
			return
		}
	}
	req.CreatedByID = actor.ID

	if err := user.ValidateCreate(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	u, err := h.store.Create(r.Context(), req)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionCreate, "user", u.ID, audit.Details{
		"role":    u.Role,
		"subrole": u.Subrole,
	})
	writeJSON(w, http.StatusCreated, u)
}

// ListUsers handles GET /api/v1/users.
func (h *usersHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	params := user.ListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}

	users, nextCursor, err := h.store.ListVisible(r.Context(), actor, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if users == nil {
		users = []*user.User{}
	}

	recordActivity(h.recorder, r, audit.ActionViewUsers, "user", "", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":       users,
		"next_cursor": nextCursor,
	})
}

// GetUser handles GET /api/v1/users/{id}.
func (h *usersHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	u, err := h.store.GetVisibleByID(r.Context(), actor, id)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// UpdateUser handles PUT /api/v1/users/{id}.
func (h *usersHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	// Scope check first so out-of-scope ids read as absent.
	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	var input user.UpdateUserInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	u, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionUpdate, "user", u.ID, nil)
	writeJSON(w, http.StatusOK, u)
}

// DeleteUser handles DELETE /api/v1/users/{id}.
func (h *usersHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if id == actor.ID {
		writeError(w, http.StatusConflict, "constraint_error", "you cannot delete your own account")
		return
	}

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionDelete, "user", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// GetPermissions handles GET /api/v1/users/{id}/permissions.
func (h *usersHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	target, err := h.store.GetVisibleByID(r.Context(), actor, id)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if target.Subrole != auth.SubroleOperator {
		writeError(w, http.StatusConflict, "constraint_error", "permissions only apply to operators")
		return
	}

	perms, err := h.store.GetPermissions(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, perms)
}

// SetPermissions handles PUT /api/v1/users/{id}/permissions.
func (h *usersHandler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	target, err := h.store.GetVisibleByID(r.Context(), actor, id)
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if target.Subrole != auth.SubroleOperator {
		writeError(w, http.StatusConflict, "constraint_error", "permissions only apply to operators")
		return
	}

	var req struct {
		CanCreate bool `json:"can_create"`
		CanModify bool `json:"can_modify"`
		CanDelete bool `json:"can_delete"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	saved, err := h.store.SetPermissions(r.Context(), user.OperatorPermissions{
		UserID:    id,
		CanCreate: req.CanCreate,
		CanModify: req.CanModify,
		CanDelete: req.CanDelete,
	})
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionUpdate, "permissions", id, audit.Details{
		"can_create": saved.CanCreate,
		"can_modify": saved.CanModify,
		"can_delete": saved.CanDelete,
	})
	writeJSON(w, http.StatusOK, saved)
}
