package api

import (
	"context"
	"net/http"
	"time"

	"github.com/cbums/cbums/internal/audit"
	"github.com/cbums/cbums/internal/auth"
	"github.com/cbums/cbums/internal/coin"
	"github.com/cbums/cbums/internal/company"
	"github.com/cbums/cbums/internal/metrics"
	"github.com/cbums/cbums/internal/ratelimit"
	"github.com/cbums/cbums/internal/trip"
	"github.com/cbums/cbums/internal/upload"
	"github.com/cbums/cbums/internal/user"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Pinger reports database reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Users          *user.Store
	Companies      *company.Store
	Trips          *trip.Store
	Coins          *coin.Store
	Activity       *audit.Store
	Recorder       *audit.Recorder
	Uploads        *upload.Service
	Sessions       auth.SessionLookup
	LoginLimiter   *ratelimit.Limiter
	Metrics        *metrics.Metrics
	DB             Pinger
	AllowedOrigins []string
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(instrumentMiddleware(deps.Metrics))
	}

	// Handlers.
	authH := newAuthHandler(deps.Users, deps.Recorder, deps.Metrics)
	usersH := newUsersHandler(deps.Users, deps.Companies, deps.Recorder)
	companiesH := newCompaniesHandler(deps.Companies, deps.Recorder)
	tripsH := newTripsHandler(deps.Trips, deps.Users, deps.Companies, deps.Recorder, deps.Metrics)
	coinsH := newCoinsHandler(deps.Coins, deps.Users, deps.Recorder, deps.Metrics)
	activityH := newActivityHandler(deps.Activity)
	uploadsH := newUploadsHandler(deps.Uploads, deps.Recorder, deps.Metrics)

	// Health check.
	r.Get("/health", healthHandler(deps.DB))

	// Well-known manifest.
	r.Get("/.well-known/cbums.json", WellKnownHandler)

	// Metrics summary.
	if deps.Metrics != nil {
		r.Get("/metrics", deps.Metrics.Handler())
	}

	// Login is public but throttled per client IP.
	login := http.HandlerFunc(authH.Login)
	if deps.LoginLimiter != nil {
		onReject := func() {}
		if deps.Metrics != nil {
			onReject = func() { deps.Metrics.IncRateLimitRejection("login") }
		}
		r.Method(http.MethodPost, "/api/v1/auth/login",
			ratelimit.Middleware(deps.LoginLimiter, onReject)(login))
	} else {
		r.Post("/api/v1/auth/login", login)
	}

	// Authenticated routes.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.Middleware(deps.Sessions))

		ar.Post("/auth/logout", authH.Logout)
		ar.Get("/auth/me", authH.Me)

		// User management.
		ar.Get("/users", usersH.ListUsers)
		ar.Get("/users/{id}", usersH.GetUser)
		ar.Group(func(mr chi.Router) {
			mr.Use(auth.RequireRoles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleCompany))
			mr.Post("/users", usersH.CreateUser)
			mr.Put("/users/{id}", usersH.UpdateUser)
			mr.Delete("/users/{id}", usersH.DeleteUser)
			mr.Get("/users/{id}/permissions", usersH.GetPermissions)
			mr.Put("/users/{id}/permissions", usersH.SetPermissions)
		})

		// Company management.
		ar.Get("/companies", companiesH.ListCompanies)
		ar.Get("/companies/{id}", companiesH.GetCompany)
		ar.Group(func(mr chi.Router) {
			mr.Use(auth.RequireRoles(auth.RoleSuperAdmin, auth.RoleAdmin))
			mr.Post("/companies", companiesH.CreateCompany)
			mr.Put("/companies/{id}", companiesH.UpdateCompany)
			mr.Delete("/companies/{id}", companiesH.DeleteCompany)
		})

		// Trips and seals.
		ar.Get("/trips", tripsH.ListTrips)
		ar.Get("/trips/{id}", tripsH.GetTrip)
		ar.Post("/trips", tripsH.CreateTrip)
		ar.Put("/trips/{id}/status", tripsH.UpdateStatus)
		ar.Delete("/trips/{id}", tripsH.DeleteTrip)
		ar.Post("/trips/{id}/seal", tripsH.AttachSeal)
		ar.Put("/trips/{id}/seal", tripsH.UpdateSealBarcode)
		ar.Post("/trips/{id}/seal/verify", tripsH.VerifySeal)

		// Coin ledger.
		ar.Get("/coins/balance", coinsH.GetBalance)
		ar.Get("/coins/transactions", coinsH.ListTransactions)
		ar.With(auth.RequireRoles(auth.RoleSuperAdmin, auth.RoleAdmin, auth.RoleCompany)).
			Post("/coins/transfer", coinsH.Transfer)

		// Activity log.
		ar.Get("/activity", activityH.ListActivity)
		ar.Get("/activity/facets", activityH.GetFacets)

		// Uploads.
		ar.Post("/uploads", uploadsH.Upload)
	})

	return r
}

// healthHandler reports service and database health. A nil pinger reports
// connected, which keeps tests and local tooling simple.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := "connected"
		status := "ok"
		code := http.StatusOK

		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				database = "unreachable"
				status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}

		writeJSON(w, code, map[string]string{
			"status":   status,
			"database": database,
		})
	}
}
