package api

import (
	"errors"
	"net/http"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/upload"
)

// uploadsHandler serves image uploads.
type uploadsHandler struct {
	service  *upload.Service
	recorder *audit.Recorder
	metrics  *metrics.Metrics
}

func newUploadsHandler(service *upload.Service, recorder *audit.Recorder, m *metrics.Metrics) *uploadsHandler {
	return &uploadsHandler{service: service, recorder: recorder, metrics: m}
}

// Upload handles POST /api/v1/uploads. The body is multipart form data with
// the image under the "file" field.
func (h *uploadsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "file storage is not configured")
		return
	}

	// One extra byte of headroom past the file limit covers the multipart
	// framing without admitting oversized files silently.
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+(64<<10))

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "multipart field 'file' is required")
		return
	}
	defer file.Close()

	result, err := h.service.Upload(r.Context(), file)
	if err != nil {
		if h.metrics != nil {
			switch {
			case errors.Is(err, upload.ErrTooLarge):
				h.metrics.IncUpload("too_large")
			case errors.Is(err, upload.ErrUnsupportedType):
				h.metrics.IncUpload("unsupported")
			}
		}
		writeStoreError(w, err, "upload failed")
		return
	}

	if h.metrics != nil {
		h.metrics.IncUpload("ok")
	}
	recordActivity(h.recorder, r, audit.ActionUpload, "file", result.Key, audit.Details{
		"content_type": result.ContentType,
		"size":         result.Size,
	})

	writeJSON(w, http.StatusCreated, result)
}
