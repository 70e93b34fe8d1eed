package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
	"github.com/Reality-Reimagined/TruthScope/internal/session"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Session is the part of session.Controller the handlers drive.
type Session interface {
	SubmitFile(ctx context.Context, name string, body io.Reader) (session.State, error)
	SubmitURL(ctx context.Context, rawURL string) (session.State, error)
	Reset()
	State() session.State
	Subscribe() (<-chan session.State, func())
}

var _ Session = (*session.Controller)(nil)

// NewGetSessionHandler returns an http.HandlerFunc for GET /api/v1/session.
func NewGetSessionHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, s.State())
	}
}

// NewResetSessionHandler returns an http.HandlerFunc for DELETE /api/v1/session.
// It stops tracking the current job and returns the idle state.
func NewResetSessionHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Reset()
		response.JSON(w, s.State())
	}
}

// NewSessionEventsHandler returns an http.HandlerFunc for
// GET /api/v1/session/events. Every state transition is sent as a "state"
// event until the client disconnects or the session closes.
func NewSessionEventsHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sse, err := response.NewSSEWriter(w)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal, err.Error(), nil)
			return
		}

		states, unsubscribe := s.Subscribe()
		defer unsubscribe()

		for {
			select {
			case <-r.Context().Done():
				return
			case st, ok := <-states:
				if !ok {
					return
				}
				if err := sse.WriteEvent("state", st); err != nil {
					slog.Debug("event stream closed", "error", err)
					return
				}
			}
		}
	}
}

// NewSessionResultHandler returns an http.HandlerFunc for
// GET /api/v1/session/result?t=<seconds>. It picks the result for the given
// playback position.
func NewSessionResultHandler(s Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		position := 0.0
		if raw := r.URL.Query().Get("t"); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || v < 0 {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"t must be a non-negative number of seconds", nil)
				return
			}
			position = v
		}

		results, ok := s.State().Results()
		if !ok {
			response.Error(w, http.StatusNotFound, response.CodeNoResults,
				"No analysis results are available yet", nil)
			return
		}
		result, ok := models.SelectResult(results, position)
		if !ok {
			response.Error(w, http.StatusNotFound, response.CodeNoResults,
				"The analysis produced no results", nil)
			return
		}
		response.JSON(w, result)
	}
}
