package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	mw "github.com/Reality-Reimagined/TruthScope/internal/api/middleware"
	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler        http.HandlerFunc
	SubmitHandler        http.HandlerFunc
	GetSessionHandler    http.HandlerFunc
	ResetSessionHandler  http.HandlerFunc
	SessionEvents        http.HandlerFunc
	SessionResultHandler http.HandlerFunc
	ListAnalyses         http.HandlerFunc
	GetAnalysis          http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)

		r.With(deps.RateLimit.Limit).Post("/api/v1/analyses", orNotImplemented(deps.SubmitHandler))
		r.Get("/api/v1/analyses", orNotImplemented(deps.ListAnalyses))
		r.Get("/api/v1/analyses/{jobID}", orNotImplemented(deps.GetAnalysis))

		r.Get("/api/v1/session", orNotImplemented(deps.GetSessionHandler))
		r.Delete("/api/v1/session", orNotImplemented(deps.ResetSessionHandler))
		r.Get("/api/v1/session/events", orNotImplemented(deps.SessionEvents))
		r.Get("/api/v1/session/result", orNotImplemented(deps.SessionResultHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, response.CodeNotImplemented, "Endpoint not yet implemented", nil)
	}
}
