package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
)

// activityHandler serves the append-only activity log.
type activityHandler struct {
	store *audit.Store
}

func newActivityHandler(store *audit.Store) *activityHandler {
	return &activityHandler{store: store}
}

// ListActivity handles GET /api/v1/activity. Results are scoped to what the
// actor is allowed to see and paginated with page/limit.
func (h *activityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())
	qs := r.URL.Query()

	q := audit.Query{
		Action:       qs.Get("action"),
		ResourceType: qs.Get("resource_type"),
		UserID:       qs.Get("user_id"),
	}
	if v := qs.Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Page = n
		}
	}
	if v := qs.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := qs.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "from must be an RFC 3339 timestamp")
			return
		}
		q.From = t
	}
	if v := qs.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "to must be an RFC 3339 timestamp")
			return
		}
		q.To = t
	}

	entries, total, err := h.store.List(r.Context(), actor, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read activity log")
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
	})
}

// GetFacets handles GET /api/v1/activity/facets.
func (h *activityHandler) GetFacets(w http.ResponseWriter, r *http.Request) {
	actor := auth.IdentityFromContext(r.Context())

	facets, err := h.store.GetFacets(r.Context(), actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to read activity facets")
		return
	}
	if facets.Actions == nil {
		facets.Actions = []string{}
	}
	if facets.ResourceTypes == nil {
		facets.ResourceTypes = []string{}
	}

	writeJSON(w, http.StatusOK, facets)
}
