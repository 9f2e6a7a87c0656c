// Package api assembles the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/phrasetracker/internal/api/middleware"
	"github.com/kiranshivaraju/phrasetracker/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler   http.HandlerFunc
	SubmitHandler   http.HandlerFunc
	StatusHandler   http.HandlerFunc
	StreamHandler   http.HandlerFunc
	ExportHandler   http.HandlerFunc
	TrackersHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Post("/api/v1/classify", orNotImplemented(deps.SubmitHandler))
		r.Route("/api/v1/classify/status/{jobID}", func(r chi.Router) {
			r.Get("/", orNotImplemented(deps.StatusHandler))
			r.Get("/stream", orNotImplemented(deps.StreamHandler))
			r.Get("/export", orNotImplemented(deps.ExportHandler))
		})

		r.Get("/api/v1/trackers", orNotImplemented(deps.TrackersHandler))
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
