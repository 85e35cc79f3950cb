package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/cbums.json.
const wellKnownManifest = `{
  "name": "CBUMS",
  "description": "Coin-based user management system",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "users": "/api/v1/users",
    "companies": "/api/v1/companies",
    "trips": "/api/v1/trips",
    "coins": "/api/v1/coins",
    "activity": "/api/v1/activity",
    "uploads": "/api/v1/uploads"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static CBUMS well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
