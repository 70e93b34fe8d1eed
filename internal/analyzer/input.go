package analyzer

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Input is what gets submitted for analysis: either a FileInput or a
// URLInput, never both.
type Input interface {
	isInput()
	validate() error
}

// FileInput is a local video streamed to the backend as the multipart
// field "file".
type FileInput struct {
	Name string    `validate:"required"`
	Body io.Reader `validate:"required"`
}

// URLInput is a video-sharing URL sent as the form field "youtube_url".
type URLInput struct {
	URL string `validate:"required,url"`
}

func (FileInput) isInput() {}
func (URLInput) isInput()  {}

func (f FileInput) validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("%w: file name and body are required", ErrInvalidInput)
	}
	return nil
}

func (u URLInput) validate() error {
	if err := validate.Struct(u); err != nil {
		return fmt.Errorf("%w: %q is not a valid URL", ErrInvalidInput, u.URL)
	}
	parsed, _ := url.Parse(u.URL)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: URL must start with http:// or https://, got %q", ErrInvalidInput, u.URL)
	}
	return nil
}

// EmbedURL rewrites a watch URL into its embeddable form, leaving any other
// URL unchanged.
func EmbedURL(raw string) string {
	if strings.Contains(raw, "watch?v=") {
		return strings.Replace(raw, "watch?v=", "embed/", 1)
	}
	return raw
}
