package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/batchlingo/internal/api/middleware"
	"github.com/kiranshivaraju/batchlingo/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	GetJobHandler       http.HandlerFunc
	StartJobHandler     http.HandlerFunc
	CancelJobHandler    http.HandlerFunc
	ListResultsHandler  http.HandlerFunc
	ClearResultsHandler http.HandlerFunc
	DownloadHandler     http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Route("/api/v1/jobs/{jobID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(mw.ScopeRead))

				r.Get("/", orNotImplemented(deps.GetJobHandler))
				r.Get("/results", orNotImplemented(deps.ListResultsHandler))
				r.Get("/download", orNotImplemented(deps.DownloadHandler))
			})

			r.Group(func(r chi.Router) {
				r.Use(deps.Auth.RequireScope(mw.ScopeWrite))

				r.Post("/start", orNotImplemented(deps.StartJobHandler))
				r.Post("/cancel", orNotImplemented(deps.CancelJobHandler))
				r.Delete("/results", orNotImplemented(deps.ClearResultsHandler))
			})
		})

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope(mw.ScopeAdmin))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
