package api

import (
	"net/http"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/ratelimit"
	"github.com/cbums/cbums/internal/user"
)

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	store    *user.Store
	recorder *audit.Recorder
	metrics  *metrics.Metrics
}

func newAuthHandler(store *user.Store, recorder *audit.Recorder, m *metrics.Metrics) *authHandler {
	return &authHandler{store: store, recorder: recorder, metrics: m}
}

// Login handles POST /api/v1/auth/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "email and password are required")
		return
	}

	u, err := h.store.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.incAuthFailure("unknown_email")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	if !user.CheckPassword(u, req.Password) {
		h.incAuthFailure("bad_credentials")
		writeError(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	token, _, err := h.store.CreateSession(r.Context(), u.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to create session")
		return
	}

	if h.metrics != nil {
		h.metrics.IncAuthSuccess(u.Role)
	}

	// Identity is not in context yet on login, so set UserID directly.
	e := audit.Entry{
		UserID:       u.ID,
		Action:       audit.ActionLogin,
		ResourceType: "auth",
		IP:           ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if h.recorder != nil {
		h.recorder.Record(e)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  u,
	})
}

// Me handles GET /api/v1/auth/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "not authenticated")
		return
	}

	u, err := h.store.GetByID(r.Context(), id.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load profile")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

// Logout handles POST /api/v1/auth/logout.
func (h *authHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractBearerToken(r)
	if token != "" {
		_ = h.store.DeleteSession(r.Context(), token)
	}

	recordActivity(h.recorder, r, audit.ActionLogout, "auth", "", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *authHandler) incAuthFailure(reason string) {
	if h.metrics != nil {
		h.metrics.IncAuthFailure(reason)
	}
}
