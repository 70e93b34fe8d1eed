package handler

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"github.com/Reality-Reimagined/TruthScope/internal/analyzer"
	"github.com/Reality-Reimagined/TruthScope/internal/api/response"
	"github.com/Reality-Reimagined/TruthScope/internal/session"
)

const (
	fileField = "file"
	urlField  = "youtube_url"

	maxURLFieldBytes = 8 << 10
)

// NewSubmitHandler returns an http.HandlerFunc for POST /api/v1/analyses.
// The body is multipart with either a "file" part, streamed straight to the
// backend, or a "youtube_url" field. A urlencoded youtube_url is accepted too.
func NewSubmitHandler(s Session, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if maxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		}

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != "multipart/form-data" {
			if err := r.ParseForm(); err != nil {
				writeBodyError(w, err)
				return
			}
			rawURL := strings.TrimSpace(r.PostFormValue(urlField))
			if rawURL == "" {
				response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
					"Either a file or a youtube_url is required", nil)
				return
			}
			st, err := s.SubmitURL(r.Context(), rawURL)
			writeSubmission(w, st, err)
			return
		}

		mr, err := r.MultipartReader()
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid multipart body", nil)
			return
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				writeBodyError(w, err)
				return
			}

			switch part.FormName() {
			case fileField:
				name := part.FileName()
				if name == "" {
					name = "upload"
				}
				body := &bodyErrReader{r: part}
				st, err := s.SubmitFile(r.Context(), name, body)
				if err != nil {
					if readErr := body.Err(); isTooLarge(readErr) {
						writeBodyError(w, readErr)
						return
					}
				}
				writeSubmission(w, st, err)
				return
			case urlField:
				value, err := io.ReadAll(io.LimitReader(part, maxURLFieldBytes))
				if err != nil {
					writeBodyError(w, err)
					return
				}
				st, err := s.SubmitURL(r.Context(), strings.TrimSpace(string(value)))
				writeSubmission(w, st, err)
				return
			}
		}

		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest,
			"Either a file or a youtube_url is required", nil)
	}
}

// bodyErrReader remembers the first read error other than io.EOF. The
// upload is consumed on another goroutine, so access is locked.
type bodyErrReader struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (b *bodyErrReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err != nil && err != io.EOF {
		b.mu.Lock()
		if b.err == nil {
			b.err = err
		}
		b.mu.Unlock()
	}
	return n, err
}

func (b *bodyErrReader) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// writeBodyError reports a request body that could not be read.
func writeBodyError(w http.ResponseWriter, err error) {
	if isTooLarge(err) {
		response.Error(w, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, "Upload exceeds the size limit", nil)
		return
	}
	response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid request body", nil)
}

func writeSubmission(w http.ResponseWriter, st session.State, err error) {
	if err == nil {
		response.Accepted(w, st)
		return
	}

	var subErr *analyzer.SubmissionError
	var fetchErr *analyzer.FetchError
	switch {
	case errors.Is(err, session.ErrBusy):
		response.Error(w, http.StatusConflict, response.CodeAnalysisInProgress,
			"An analysis is already in progress; reset the session first", st)
	case errors.Is(err, session.ErrSuperseded):
		response.Error(w, http.StatusConflict, response.CodeAnalysisInProgress,
			"The submission was cancelled by a reset", nil)
	case errors.Is(err, session.ErrClosed):
		response.Error(w, http.StatusServiceUnavailable, response.CodeSessionClosed,
			"The session is shutting down", nil)
	case isTooLarge(err):
		writeBodyError(w, err)
	case errors.Is(err, analyzer.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), st)
	case errors.As(err, &subErr), errors.As(err, &fetchErr):
		response.Error(w, http.StatusBadGateway, response.CodeSubmissionFailed, err.Error(), st)
	default:
		response.Error(w, http.StatusInternalServerError, response.CodeInternal,
			"An unexpected error occurred", nil)
	}
}
