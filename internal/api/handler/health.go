package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
)

const healthTimeout = 3 * time.Second

// Pinger is anything whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Nil dependencies are reported as "disabled" and never fail the check.
func NewHealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		body := healthResponse{Status: "ok", Checks: make(map[string]string, len(deps))}
		for name, p := range deps {
			if p == nil {
				body.Checks[name] = "disabled"
				continue
			}
			if err := p.Ping(ctx); err != nil {
				body.Checks[name] = "unavailable"
				body.Status = "degraded"
				continue
			}
			body.Checks[name] = "ok"
		}

		if body.Status != "ok" {
			response.Error(w, http.StatusServiceUnavailable, response.CodeBackendUnavailable,
				"One or more dependencies are unavailable", body)
			return
		}
		response.JSON(w, body)
	}
}
