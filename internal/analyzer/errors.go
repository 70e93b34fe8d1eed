package analyzer

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for backend failures. SubmissionError and FetchError wrap
// one of these as their cause.
var (
	ErrBackendUnreachable = errors.New("analysis backend unreachable")
	ErrBackendTimeout     = errors.New("analysis backend timeout")
	ErrBackendRejected    = errors.New("analysis backend rejected request")
	ErrInvalidResponse    = errors.New("analysis backend returned invalid response")
	ErrInvalidInput       = errors.New("invalid analysis input")
)

// Fallback messages used when the backend gives no usable detail.
const (
	DefaultSubmitMessage = "Failed to analyze video"
	DefaultFetchMessage  = "Failed to get analysis status"
)

// SubmissionError is returned by Submit. Message is safe to show to users.
type SubmissionError struct {
	Message    string
	StatusCode int
	Cause      error
}

func (e *SubmissionError) Error() string { return e.Message }

func (e *SubmissionError) Unwrap() error { return e.Cause }

// FetchError is returned by Fetch. Message is safe to show to users.
type FetchError struct {
	JobID      string
	Message    string
	StatusCode int
	Cause      error
}

func (e *FetchError) Error() string { return e.Message }

func (e *FetchError) Unwrap() error { return e.Cause }

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrBackendTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrBackendUnreachable, err)
}
