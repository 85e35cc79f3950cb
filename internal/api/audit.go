package api

import (
	"net/http"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/ratelimit"
)

// recordActivity queues an activity log entry for the current request. It is
// fire-and-forget: the recorder buffers and flushes in the background, so a
// slow or failing audit write never delays the response.
func recordActivity(rec *audit.Recorder, r *http.Request, action, resourceType, resourceID string, details audit.Details) {
	if rec == nil {
		return
	}

	e := audit.Entry{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
		IP:           ratelimit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		e.UserID = id.ID
	}

	rec.Record(e)
}
