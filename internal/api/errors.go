package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cbums/cbums/internal/coin"
	"github.com/cbums/cbums/internal/company"
	"github.com/cbums/cbums/internal/trip"
	"github.com/cbums/cbums/internal/upload"
	"github.com/cbums/cbums/internal/user"
	"github.com/jackc/pgx/v5"
)

// maxBodySize is the maximum allowed request body size (1 MB). Uploads use
// their own limit.
const maxBodySize = 1 << 20

// errorEnvelope is the standard error response shape.
type errorEnvelope struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorEnvelope{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeJSON writes a JSON response with the given status code and data.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes the request body into v, enforcing a size limit.
func readJSON(r *http.Request, v interface{}) error {
	lr := io.LimitReader(r.Body, maxBodySize)
	return json.NewDecoder(lr).Decode(v)
}

// writeStoreError maps well-known store errors onto HTTP responses. Rows that
// exist but are outside the caller's scope surface as pgx.ErrNoRows, so
// out-of-scope and absent ids are indistinguishable to clients.
func writeStoreError(w http.ResponseWriter, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		writeError(w, http.StatusNotFound, "not_found", notFoundMsg)
	case errors.Is(err, user.ErrDuplicateEmail), errors.Is(err, company.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, "duplicate_email", "email already in use")
	case errors.Is(err, coin.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient_funds", "coin balance too low for this transfer")
	case errors.Is(err, coin.ErrSelfTransfer):
		writeError(w, http.StatusBadRequest, "validation_error", "cannot transfer coins to yourself")
	case errors.Is(err, trip.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", "trip status cannot change that way")
	case errors.Is(err, trip.ErrSealExists):
		writeError(w, http.StatusConflict, "seal_exists", "trip already has a seal")
	case errors.Is(err, trip.ErrSealVerified):
		writeError(w, http.StatusConflict, "seal_verified", "seal is verified and can no longer change")
	case errors.Is(err, trip.ErrNoSeal):
		writeError(w, http.StatusConflict, "no_seal", "trip has no seal to verify")
	case errors.Is(err, upload.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "file exceeds the 5 MB limit")
	case errors.Is(err, upload.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, "unsupported_type", "only jpeg, png, gif and webp images are accepted")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
