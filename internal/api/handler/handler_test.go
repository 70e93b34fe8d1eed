package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
	"github.com/Reality-Reimagined/TruthScope/internal/api/handler"
	"github.com/Reality-Reimagined/TruthScope/internal/session"
	"github.com/Reality-Reimagined/TruthScope/internal/store"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// --- mock Session ---

type mockSession struct {
	SubmitFileFunc func(ctx context.Context, name string, body io.Reader) (session.State, error)
	SubmitURLFunc  func(ctx context.Context, rawURL string) (session.State, error)
	ResetFunc      func()
	StateFunc      func() session.State
	SubscribeFunc  func() (<-chan session.State, func())
}

func (m *mockSession) SubmitFile(ctx context.Context, name string, body io.Reader) (session.State, error) {
	return m.SubmitFileFunc(ctx, name, body)
}
func (m *mockSession) SubmitURL(ctx context.Context, rawURL string) (session.State, error) {
	return m.SubmitURLFunc(ctx, rawURL)
}
func (m *mockSession) Reset()               { m.ResetFunc() }
func (m *mockSession) State() session.State { return m.StateFunc() }
func (m *mockSession) Subscribe() (<-chan session.State, func()) {
	return m.SubscribeFunc()
}

// --- mock analyzer client, used to build real session states ---

type mockClient struct {
	snap models.Snapshot
}

func (m *mockClient) Submit(context.Context, analyzer.Input) (string, error) { return "abc123", nil }
func (m *mockClient) Fetch(context.Context, string) (models.Snapshot, error) { return m.snap, nil }
func (m *mockClient) Ready(context.Context) error                            { return nil }

// settledState runs a real session to completion with the given results.
func settledState(t *testing.T, results []models.AnalysisResult) session.State {
	t.Helper()
	c := session.New(&mockClient{snap: models.NewSnapshot(
		models.Job{ID: "abc123", Status: models.StatusComplete, Progress: 1}, results)}, session.Options{})
	t.Cleanup(c.Close)
	st, err := c.SubmitURL(context.Background(), "https://www.youtube.com/watch?v=x")
	require.NoError(t, err)
	return st
}

// --- helpers ---

func parseData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	return env.Data
}

func parseErr(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code, env.Error.Message
}

func multipartRequest(t *testing.T, field, filename, value string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(value))
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField(field, value))
	}
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

// ========================================
// Submit
// ========================================

func TestSubmitHandler_File(t *testing.T) {
	var gotName, gotBody string
	s := &mockSession{SubmitFileFunc: func(_ context.Context, name string, body io.Reader) (session.State, error) {
		gotName = name
		b, err := io.ReadAll(body)
		require.NoError(t, err)
		gotBody = string(b)
		return session.State{Phase: session.PhasePolling, JobID: "abc123"}, nil
	}}

	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 1<<20).ServeHTTP(rec, multipartRequest(t, "file", "clip.mp4", "video-bytes"))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "clip.mp4", gotName)
	assert.Equal(t, "video-bytes", gotBody)
	data := parseData(t, rec)
	assert.Equal(t, "abc123", data["job_id"])
	assert.Equal(t, "polling", data["phase"])
}

func TestSubmitHandler_MultipartURL(t *testing.T) {
	var got string
	s := &mockSession{SubmitURLFunc: func(_ context.Context, rawURL string) (session.State, error) {
		got = rawURL
		return session.State{Phase: session.PhasePolling, JobID: "yt1"}, nil
	}}

	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 0).ServeHTTP(rec,
		multipartRequest(t, "youtube_url", "", " https://youtu.be/x "))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://youtu.be/x", got)
}

func TestSubmitHandler_FormURL(t *testing.T) {
	var got string
	s := &mockSession{SubmitURLFunc: func(_ context.Context, rawURL string) (session.State, error) {
		got = rawURL
		return session.State{Phase: session.PhaseSettled, JobID: "yt1"}, nil
	}}

	form := url.Values{"youtube_url": {"https://www.youtube.com/watch?v=x"}}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 0).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "https://www.youtube.com/watch?v=x", got)
}

func TestSubmitHandler_NothingSubmitted(t *testing.T) {
	s := &mockSession{}

	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 0).ServeHTTP(rec, multipartRequest(t, "other", "", "x"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "INVALID_REQUEST", code)
}

func TestSubmitHandler_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"busy", session.ErrBusy, http.StatusConflict, "ANALYSIS_IN_PROGRESS", ""},
		{"superseded", session.ErrSuperseded, http.StatusConflict, "ANALYSIS_IN_PROGRESS", ""},
		{"closed", session.ErrClosed, http.StatusServiceUnavailable, "SESSION_CLOSED", ""},
		{
			"invalid input",
			&analyzer.SubmissionError{Message: "bad url", Cause: analyzer.ErrInvalidInput},
			http.StatusBadRequest, "INVALID_REQUEST", "bad url",
		},
		{
			"backend rejected",
			&analyzer.SubmissionError{Message: "Unsupported format", StatusCode: 400, Cause: analyzer.ErrBackendRejected},
			http.StatusBadGateway, "SUBMISSION_FAILED", "Unsupported format",
		},
		{
			"first fetch failed",
			&analyzer.FetchError{JobID: "abc123", Message: analyzer.DefaultFetchMessage},
			http.StatusBadGateway, "SUBMISSION_FAILED", "Failed to get analysis status",
		},
		{
			"upload too large",
			&analyzer.SubmissionError{Message: "Failed to upload video", Cause: &http.MaxBytesError{Limit: 10}},
			http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "",
		},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &mockSession{SubmitURLFunc: func(context.Context, string) (session.State, error) {
				return session.State{Phase: session.PhaseFailed}, tt.err
			}}

			rec := httptest.NewRecorder()
			handler.NewSubmitHandler(s, 0).ServeHTTP(rec, multipartRequest(t, "youtube_url", "", "https://youtu.be/x"))

			assert.Equal(t, tt.status, rec.Code)
			code, message := parseErr(t, rec)
			assert.Equal(t, tt.code, code)
			if tt.message != "" {
				assert.Equal(t, tt.message, message)
			}
		})
	}
}

func TestSubmitHandler_FileOverLimit(t *testing.T) {
	s := &mockSession{SubmitFileFunc: func(_ context.Context, _ string, body io.Reader) (session.State, error) {
		_, err := io.ReadAll(body)
		require.Error(t, err)
		// the transport reports its own error, not the body's
		return session.State{Phase: session.PhaseFailed},
			&analyzer.SubmissionError{Message: "Failed to upload video", Cause: errors.New("connection reset")}
	}}

	rec := httptest.NewRecorder()
	r := multipartRequest(t, "file", "clip.mp4", strings.Repeat("v", 4096))
	handler.NewSubmitHandler(s, 1024).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "PAYLOAD_TOO_LARGE", code)
}

func TestSubmitHandler_FormOverLimit(t *testing.T) {
	s := &mockSession{SubmitURLFunc: func(context.Context, string) (session.State, error) {
		t.Fatal("oversized form must not be submitted")
		return session.State{}, nil
	}}

	form := url.Values{"youtube_url": {"https://youtu.be/" + strings.Repeat("x", 2048)}}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 1024).ServeHTTP(rec, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSubmitHandler_FileUnderLimitIsNotRejected(t *testing.T) {
	s := &mockSession{SubmitFileFunc: func(_ context.Context, _ string, body io.Reader) (session.State, error) {
		_, err := io.ReadAll(body)
		require.NoError(t, err)
		return session.State{Phase: session.PhaseFailed},
			&analyzer.SubmissionError{Message: "Unsupported format", StatusCode: 400, Cause: analyzer.ErrBackendRejected}
	}}

	rec := httptest.NewRecorder()
	handler.NewSubmitHandler(s, 1<<20).ServeHTTP(rec, multipartRequest(t, "file", "clip.mp4", "video-bytes"))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

// ========================================
// Session
// ========================================

func TestGetSessionHandler(t *testing.T) {
	s := &mockSession{StateFunc: func() session.State { return session.State{Phase: session.PhaseIdle} }}

	rec := httptest.NewRecorder()
	handler.NewGetSessionHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "idle", data["phase"])
	assert.Nil(t, data["results"])
}

func TestResetSessionHandler(t *testing.T) {
	reset := false
	s := &mockSession{
		ResetFunc: func() { reset = true },
		StateFunc: func() session.State { return session.State{Phase: session.PhaseIdle} },
	}

	rec := httptest.NewRecorder()
	handler.NewResetSessionHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, reset)
}

func TestSessionEventsHandler(t *testing.T) {
	states := make(chan session.State, 2)
	states <- session.State{Phase: session.PhasePolling, JobID: "abc123"}
	states <- session.State{Phase: session.PhaseSettled, JobID: "abc123"}
	close(states)
	unsubscribed := false
	s := &mockSession{SubscribeFunc: func() (<-chan session.State, func()) {
		return states, func() { unsubscribed = true }
	}}

	rec := httptest.NewRecorder()
	handler.NewSessionEventsHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session/events", nil))

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, "event: state\n"))
	assert.Contains(t, body, `"phase":"settled"`)
	assert.True(t, unsubscribed)
}

func TestSessionEventsHandler_StopsOnDisconnect(t *testing.T) {
	states := make(chan session.State)
	s := &mockSession{SubscribeFunc: func() (<-chan session.State, func()) { return states, func() {} }}

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session/events", nil).WithContext(ctx)
	done := make(chan struct{})
	go func() {
		handler.NewSessionEventsHandler(s).ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not return after the client went away")
	}
}

func TestSessionResultHandler(t *testing.T) {
	st := settledState(t, []models.AnalysisResult{{Timestamp: 0}, {Timestamp: 5}, {Timestamp: 10}})
	s := &mockSession{StateFunc: func() session.State { return st }}
	h := handler.NewSessionResultHandler(s)

	tests := []struct {
		query string
		want  float64
	}{
		{"t=5.4", 5},
		{"t=9.2", 10},
		{"t=7.5", 0},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session/result?"+tt.query, nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, parseData(t, rec)["timestamp"])
		})
	}
}

func TestSessionResultHandler_InvalidPosition(t *testing.T) {
	s := &mockSession{}

	rec := httptest.NewRecorder()
	handler.NewSessionResultHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session/result?t=abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionResultHandler_NoResults(t *testing.T) {
	for name, st := range map[string]session.State{
		"absent": {Phase: session.PhasePolling},
		"empty":  settledState(t, []models.AnalysisResult{}),
	} {
		t.Run(name, func(t *testing.T) {
			s := &mockSession{StateFunc: func() session.State { return st }}

			rec := httptest.NewRecorder()
			handler.NewSessionResultHandler(s).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session/result?t=1", nil))

			assert.Equal(t, http.StatusNotFound, rec.Code)
			code, _ := parseErr(t, rec)
			assert.Equal(t, "NO_RESULTS", code)
		})
	}
}

// ========================================
// Health
// ========================================

func TestHealthHandler_OK(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.Pinger{
		"backend":  handler.PingFunc(func(context.Context) error { return nil }),
		"database": nil,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "ok", data["status"])
	checks := data["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["backend"])
	assert.Equal(t, "disabled", checks["database"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	h := handler.NewHealthHandler(map[string]handler.Pinger{
		"backend": handler.PingFunc(func(context.Context) error { return analyzer.ErrBackendUnreachable }),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "BACKEND_UNAVAILABLE", code)
}

// ========================================
// History
// ========================================

type mockHistory struct {
	GetFunc  func(ctx context.Context, jobID string) (*models.AnalysisRecord, error)
	ListFunc func(ctx context.Context, filter store.AnalysisFilter) ([]*models.AnalysisRecord, int, error)
}

func (m *mockHistory) GetAnalysis(ctx context.Context, jobID string) (*models.AnalysisRecord, error) {
	return m.GetFunc(ctx, jobID)
}
func (m *mockHistory) ListAnalyses(ctx context.Context, filter store.AnalysisFilter) ([]*models.AnalysisRecord, int, error) {
	return m.ListFunc(ctx, filter)
}

type mockSnapshots struct {
	snaps map[string]models.Snapshot
	subs  map[string]models.Submission
}

func (m *mockSnapshots) GetSnapshot(_ context.Context, jobID string) (models.Snapshot, bool, error) {
	s, ok := m.snaps[jobID]
	return s, ok, nil
}
func (m *mockSnapshots) GetSubmission(_ context.Context, jobID string) (models.Submission, bool, error) {
	s, ok := m.subs[jobID]
	return s, ok, nil
}

func historyRouter(h handler.History, c handler.SnapshotCache) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/analyses", handler.NewListAnalysesHandler(h))
	r.Get("/api/v1/analyses/{jobID}", handler.NewGetAnalysisHandler(h, c))
	return r
}

func TestListAnalysesHandler_Disabled(t *testing.T) {
	rec := httptest.NewRecorder()
	historyRouter(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	code, _ := parseErr(t, rec)
	assert.Equal(t, "HISTORY_DISABLED", code)
}

func TestListAnalysesHandler_Filters(t *testing.T) {
	var got store.AnalysisFilter
	h := &mockHistory{ListFunc: func(_ context.Context, f store.AnalysisFilter) ([]*models.AnalysisRecord, int, error) {
		got = f
		return []*models.AnalysisRecord{{JobID: "abc123"}}, 45, nil
	}}

	rec := httptest.NewRecorder()
	historyRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/analyses?status=complete&source=youtube&since=2024-01-01T00:00:00Z&page=2&limit=500", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.Equal(t, models.SourceYouTube, got.Source)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.Since)
	assert.Equal(t, 2, got.Page)
	assert.Equal(t, 100, got.Limit)

	var env struct {
		Data []map[string]any `json:"data"`
		Meta map[string]any   `json:"meta"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Len(t, env.Data, 1)
	assert.Equal(t, float64(45), env.Meta["total"])
	assert.Equal(t, false, env.Meta["has_next"])
}

func TestListAnalysesHandler_InvalidParams(t *testing.T) {
	h := &mockHistory{}
	for _, q := range []string{"status=done", "source=vimeo", "since=yesterday"} {
		t.Run(q, func(t *testing.T) {
			rec := httptest.NewRecorder()
			historyRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetAnalysisHandler_FromStore(t *testing.T) {
	h := &mockHistory{GetFunc: func(_ context.Context, jobID string) (*models.AnalysisRecord, error) {
		return &models.AnalysisRecord{JobID: jobID, Status: models.StatusComplete}, nil
	}}

	rec := httptest.NewRecorder()
	historyRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/abc123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "abc123", data["job_id"])
	assert.Equal(t, "complete", data["status"])
}

func TestGetAnalysisHandler_FallsBackToCache(t *testing.T) {
	h := &mockHistory{GetFunc: func(context.Context, string) (*models.AnalysisRecord, error) {
		return nil, store.ErrNotFound
	}}
	c := &mockSnapshots{
		snaps: map[string]models.Snapshot{"abc123": models.NewSnapshot(
			models.Job{ID: "abc123", Status: models.StatusProcessing, Progress: 0.4}, nil)},
		subs: map[string]models.Submission{"abc123": {JobID: "abc123", Video: models.Video{Title: "clip.mp4", Source: models.SourceUpload}}},
	}

	rec := httptest.NewRecorder()
	historyRouter(h, c).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/abc123", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "abc123", data["job_id"])
	assert.Equal(t, "clip.mp4", data["video"].(map[string]any)["title"])
	state := data["snapshot"].(map[string]any)["state"].(map[string]any)
	assert.Equal(t, "processing", state["status"])
}

func TestGetAnalysisHandler_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	historyRouter(nil, &mockSnapshots{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAnalysisHandler_StoreError(t *testing.T) {
	h := &mockHistory{GetFunc: func(context.Context, string) (*models.AnalysisRecord, error) {
		return nil, errors.New("connection reset")
	}}

	rec := httptest.NewRecorder()
	historyRouter(h, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/abc123", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
