// Package analyzer talks to the remote video analysis backend: it submits
// videos for analysis and fetches job status snapshots.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Client is the interface for the analysis backend.
type Client interface {
	Submit(ctx context.Context, in Input) (string, error)
	Fetch(ctx context.Context, id string) (models.Snapshot, error)
	Ready(ctx context.Context) error
}

// HTTPClient implements Client using the backend's HTTP/JSON API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	// timeout bounds Fetch and Ready. Submit streams whole videos and is
	// bounded by its context only.
	timeout time.Duration
}

// NewHTTPClient creates a new backend client. timeout applies to status
// fetches and readiness probes; zero means none.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		timeout: timeout,
	}
}

// withTimeout applies the metadata request timeout, if any.
func (c *HTTPClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Submit starts a new analysis and returns the backend-assigned job id.
// It makes exactly one attempt.
func (c *HTTPClient) Submit(ctx context.Context, in Input) (string, error) {
	if in == nil {
		return "", &SubmissionError{Message: DefaultSubmitMessage, Cause: ErrInvalidInput}
	}
	if err := in.validate(); err != nil {
		return "", &SubmissionError{Message: err.Error(), Cause: err}
	}

	body, contentType := multipartBody(in)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze/upload", body)
	if err != nil {
		return "", &SubmissionError{Message: DefaultSubmitMessage, Cause: fmt.Errorf("building request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &SubmissionError{Message: DefaultSubmitMessage, Cause: classifyError(err)}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return "", &SubmissionError{
			Message:    errorDetail(resp.Body, DefaultSubmitMessage),
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: status %d", ErrBackendRejected, resp.StatusCode),
		}
	}

	var created submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", &SubmissionError{
			Message:    DefaultSubmitMessage,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: decoding submit response: %w", ErrInvalidResponse, err),
		}
	}
	if created.ID == "" {
		return "", &SubmissionError{
			Message:    DefaultSubmitMessage,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: empty job id", ErrInvalidResponse),
		}
	}

	return created.ID, nil
}

// Fetch returns the current snapshot of job id.
func (c *HTTPClient) Fetch(ctx context.Context, id string) (models.Snapshot, error) {
	if id == "" {
		return models.Snapshot{}, &FetchError{Message: DefaultFetchMessage, Cause: ErrInvalidInput}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	u := fmt.Sprintf("%s/analysis/%s", c.baseURL, url.PathEscape(id))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return models.Snapshot{}, &FetchError{JobID: id, Message: DefaultFetchMessage, Cause: fmt.Errorf("building request: %w", err)}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.Snapshot{}, &FetchError{JobID: id, Message: DefaultFetchMessage, Cause: classifyError(err)}
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return models.Snapshot{}, &FetchError{
			JobID:      id,
			Message:    errorDetail(resp.Body, DefaultFetchMessage),
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: status %d", ErrBackendRejected, resp.StatusCode),
		}
	}

	var snap models.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return models.Snapshot{}, &FetchError{
			JobID:      id,
			Message:    DefaultFetchMessage,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: decoding snapshot: %w", ErrInvalidResponse, err),
		}
	}
	if !snap.State.Status.Valid() {
		return models.Snapshot{}, &FetchError{
			JobID:      id,
			Message:    DefaultFetchMessage,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%w: unknown status %q", ErrInvalidResponse, snap.State.Status),
		}
	}
	if snap.State.ID == "" {
		snap.State.ID = id
	}

	return snap, nil
}

// Ready probes the backend's OpenAPI document, which the service always
// serves when it is up.
func (c *HTTPClient) Ready(ctx context.Context) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/openapi.json", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: backend not ready (status %d)", ErrBackendUnreachable, resp.StatusCode)
	}
	return nil
}

// multipartBody streams the form through a pipe so large videos are never
// buffered in memory.
func multipartBody(in Input) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeForm(mw, in)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writeForm(mw *multipart.Writer, in Input) error {
	switch v := in.(type) {
	case FileInput:
		part, err := mw.CreateFormFile("file", v.Name)
		if err != nil {
			return err
		}
		_, err = io.Copy(part, v.Body)
		return err
	case URLInput:
		return mw.WriteField("youtube_url", v.URL)
	default:
		return fmt.Errorf("%w: unsupported input %T", ErrInvalidInput, in)
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// errorDetail extracts {"detail": "..."} from an error body. FastAPI
// validation errors carry a list in detail; those fall back too.
func errorDetail(body io.Reader, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 1<<20)).Decode(&payload); err != nil {
		return fallback
	}
	var detail string
	if err := json.Unmarshal(payload.Detail, &detail); err != nil || strings.TrimSpace(detail) == "" {
		return fallback
	}
	return detail
}

type submitResponse struct {
	ID string `json:"id"`
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
