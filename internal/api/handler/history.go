package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
	"github.com/Reality-Reimagined/TruthScope/internal/store"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// History is the read side of the analysis store.
type History interface {
	GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, filter store.AnalysisFilter) ([]*models.AnalysisRecord, int, error)
}

// SnapshotCache is the read side of the snapshot cache.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context, jobID string) (models.Snapshot, bool, error)
	GetSubmission(ctx context.Context, jobID string) (models.Submission, bool, error)
}

// NewListAnalysesHandler returns an http.HandlerFunc for GET /api/v1/analyses.
func NewListAnalysesHandler(h History) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h == nil {
			response.Error(w, http.StatusServiceUnavailable, response.CodeHistoryDisabled,
				"Analysis history requires DATABASE_URL", nil)
			return
		}

		q := r.URL.Query()
		filter := store.AnalysisFilter{
			Status: models.Status(q.Get("status")),
			Source: models.Source(q.Get("source")),
			Page:   1,
			Limit:  20,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"status must be one of uploading, processing, complete, error", nil)
			return
		}
		if filter.Source != "" && filter.Source != models.SourceUpload && filter.Source != models.SourceYouTube {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
				"source must be one of upload, youtube", nil)
			return
		}
		if raw := q.Get("since"); raw != "" {
			since, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = since
		}
		if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
			filter.Page = v
		}
		if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
			filter.Limit = min(v, 100)
		}

		records, total, err := h.ListAnalyses(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.CodeInternal,
				"Failed to list analyses", nil)
			return
		}
		response.Collection(w, records, response.NewPaginationMeta(filter.Page, filter.Limit, total))
	}
}

type cachedAnalysis struct {
	JobID    string          `json:"job_id"`
	Video    *models.Video   `json:"video,omitempty"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// NewGetAnalysisHandler returns an http.HandlerFunc for
// GET /api/v1/analyses/{jobID}. The store answers first; the snapshot cache
// covers jobs the store does not know or when no store is configured.
func NewGetAnalysisHandler(h History, c SnapshotCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")

		if h != nil {
			rec, err := h.GetAnalysis(r.Context(), jobID)
			if err == nil {
				response.JSON(w, rec)
				return
			}
			if !errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusInternalServerError, response.CodeInternal,
					"Failed to load analysis", nil)
				return
			}
		}

		if c != nil {
			snap, found, err := c.GetSnapshot(r.Context(), jobID)
			if err != nil {
				response.Error(w, http.StatusInternalServerError, response.CodeInternal,
					"Failed to load analysis", nil)
				return
			}
			if found {
				out := cachedAnalysis{JobID: jobID, Snapshot: snap}
				if sub, ok, err := c.GetSubmission(r.Context(), jobID); err == nil && ok {
					out.Video = &sub.Video
				}
				response.JSON(w, out)
				return
			}
		}

		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Analysis not found", nil)
	}
}
