package api

import (
	"net/http"
	"strconv"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/company"
	"github.com/go-chi/chi/v5"
)

// companiesHandler groups company management HTTP handlers.
type companiesHandler struct {
	store    *company.Store
	recorder *audit.Recorder
}

func newCompaniesHandler(store *company.Store, recorder *audit.Recorder) *companiesHandler {
	return &companiesHandler{store: store, recorder: recorder}
}

// CreateCompany handles POST /api/v1/companies.
func (h *companiesHandler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	var req company.CreateCompanyInput
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "name and email are required")
		return
	}
	req.CreatedByID = actor.ID

	c, err := h.store.Create(r.Context(), req)
	if err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionCreate, "company", c.ID, audit.Details{
		"name": c.Name,
	})
	writeJSON(w, http.StatusCreated, c)
}

// ListCompanies handles GET /api/v1/companies.
func (h *companiesHandler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	params := company.ListParams{
		Cursor: r.URL.Query().Get("cursor"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Limit = n
		}
	}

	companies, nextCursor, err := h.store.ListVisible(r.Context(), actor, params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if companies == nil {
		companies = []*company.Company{}
	}

	recordActivity(h.recorder, r, audit.ActionViewCompanies, "company", "", nil)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"companies":   companies,
		"next_cursor": nextCursor,
	})
}

// GetCompany handles GET /api/v1/companies/{id}.
func (h *companiesHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	c, err := h.store.GetVisibleByID(r.Context(), actor, id)
	if err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// UpdateCompany handles PUT /api/v1/companies/{id}.
func (h *companiesHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	var input company.UpdateCompanyInput
	if err := readJSON(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "failed to parse request body")
		return
	}

	c, err := h.store.Update(r.Context(), id, input)
	if err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionUpdate, "company", c.ID, nil)
	writeJSON(w, http.StatusOK, c)
}

// DeleteCompany handles DELETE /api/v1/companies/{id}.
func (h *companiesHandler) DeleteCompany(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if _, err := h.store.GetVisibleByID(r.Context(), actor, id); err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err, "company not found")
		return
	}

	recordActivity(h.recorder, r, audit.ActionDelete, "company", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
