package api

import (
	"net/http"
	"strconv"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/trip"
	"github.com/cbums/cbums/internal/user"
	"github.com/go-chi/chi/v5"
)

// tripsHandler groups trip and seal HTTP handlers.
type tripsHandler struct {
	store     *trip.Store
	users     *user.Store
	companies companyScope
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
}

func newTripsHandler(store *trip.Store, users *user.Store, companies companyScope, recorder *audit.Recorder, m *metrics.Metrics) *tripsHandler {
	return &tripsHandler{store: store, users: users, companies: companies, recorder: recorder, metrics: m}
}

// operatorCan checks one of the per-operator grants. Non-employee actors are
// governed by role alone, so this only ever consults the permissions table
// for operators.
func (h *tripsHandler) operatorCan(r *http.Request, actor *auth.Identity, check func(user.OperatorPermissions) bool) (bool, error) {
	switch actor.Role {
	case auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleCompany:
		return true, nil
	case auth.RoleEmployee:
		if actor.Subrole != auth.SubroleOperator {
			return false, nil
		}
		perms, err := h.users.GetPermissions(r.Context(), actor.ID)
		if err != nil {
			return false, err
		}
		return check(*perms), nil
	default:
		return false, nil
	}
}

// CreateTrip handles POST /api/v1/trips.
func (h *tripsHandler) CreateTrip(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	ok, err := h.operatorCan(r, actor, func(p user.OperatorPermissions) bool { return p.CanCreate })
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot create trips")
		return
	}

	var req trip.CreateTripInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	// Company logins and operators always create trips for their own company;
	// admins must name a company inside their own scope.
	if actor.CompanyID != "" {
		req.CompanyID = actor.CompanyID
	} else if req.CompanyID != "" {
		if _, err := h.companies.GetVisibleByID(r.Context(), actor, req.CompanyID); err != nil {
			writeStoreError(w, err, "company not found")
			return
		}
	}
	req.CreatedByID = actor.ID

	t, err := h.store.Create(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	recordActivity(h.recorder, r, audit.ActionCreate, "trip", t.ID, audit.Details{
		"source":      t.Source,
		"destination": t.Destination,
	})
	writeJSON(w, http.StatusCreated, t)
}

// ListTrips handles GET /api/v1/trips. Guards see IN_PROGRESS trips unless a
// status filter says otherwise.
func (h *tripsHandler) ListTrips(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	params := trip.ListParams{
		Status: r.URL.Query().Get("status"),
		Cursor: r.URL.Query().Get("cursor"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}

	trips, nextCursor, err := h.store.ListVisible(r.Context(), actor, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if trips == nil {
		trips = []*trip.Trip{}
	}

	recordActivity(h.recorder, r, audit.ActionViewTrips, "trip", "", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trips":       trips,
		"next_cursor": nextCursor,
	})
}

// GetTrip handles GET /api/v1/trips/{id}.
func (h *tripsHandler) GetTrip(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	t, err := h.store.GetVisibleByID(r.Context(), actor, id)
	if err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	writeJSON(w, http.StatusOK, t)
}

// UpdateStatus handles PUT /api/v1/trips/{id}/status.
func (h *tripsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ok, err := h.operatorCan(r, actor, func(p user.OperatorPermissions) bool { return p.CanModify })
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot modify trips")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "status is required")
		return
	}

	t, err := h.store.UpdateStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	if h.metrics != nil {
		h.metrics.IncTripTransition(t.Status)
	}
	recordActivity(h.recorder, r, audit.ActionUpdate, "trip", t.ID, audit.Details{
		"status": t.Status,
	})
	writeJSON(w, http.StatusOK, t)
}

// DeleteTrip handles DELETE /api/v1/trips/{id}.
func (h *tripsHandler) DeleteTrip(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ok, err := h.operatorCan(r, actor, func(p user.OperatorPermissions) bool { return p.CanDelete })
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot delete trips")
		return
	}

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionDelete, "trip", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// AttachSeal handles POST /api/v1/trips/{id}/seal.
func (h *tripsHandler) AttachSeal(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ok, err := h.operatorCan(r, actor, func(p user.OperatorPermissions) bool { return p.CanModify })
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot modify trips")
		return
	}

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Barcode == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "barcode is required")
		return
	}

	seal, err := h.store.AttachSeal(r.Context(), id, req.Barcode)
	if err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionCreate, "seal", seal.ID, audit.Details{
		"trip_id": id,
	})
	writeJSON(w, http.StatusCreated, seal)
}

// UpdateSealBarcode handles PUT /api/v1/trips/{id}/seal.
func (h *tripsHandler) UpdateSealBarcode(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	ok, err := h.operatorCan(r, actor, func(p user.OperatorPermissions) bool { return p.CanModify })
	if err != nil {
		writeStoreError(w, err, "user not found")
		return
	}
	if !ok {
		writeError(w, http.StatusForbidden, "forbidden", "you cannot modify trips")
		return
	}

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Barcode == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "barcode is required")
		return
	}

	seal, err := h.store.UpdateSealBarcode(r.Context(), id, req.Barcode)
	if err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionUpdate, "seal", seal.ID, audit.Details{
		"trip_id": id,
	})
	writeJSON(w, http.StatusOK, seal)
}

// VerifySeal handles POST /api/v1/trips/{id}/seal/verify. Only guards scan
// seals; a matching barcode completes the trip.
func (h *tripsHandler) VerifySeal(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if actor.Role != auth.RoleEmployee || actor.Subrole != auth.SubroleGuard {
		writeError(w, http.StatusForbidden, "forbidden", "only guards verify seals")
		return
	}

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "trip not found")
		return
	}

	var req struct {
		Barcode string `json:"barcode"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Barcode == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "barcode is required")
		return
	}

	seal, matched, err := h.store.VerifySeal(r.Context(), id, req.Barcode, actor.ID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.IncSealVerification("error")
		}
		writeStoreError(w, err, "trip not found")
		return
	}

	result := "match"
	if !matched {
		result = "mismatch"
	}
	if h.metrics != nil {
		h.metrics.IncSealVerification(result)
	}
	recordActivity(h.recorder, r, audit.ActionVerify, "seal", seal.ID, audit.Details{
		"trip_id": id,
		"result":  result,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched": matched,
		"seal":    seal,
	})
}
