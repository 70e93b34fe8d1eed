package session

import (
	"context"
	"errors"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Recorder persists what a session observes. Failures are logged by the
// controller and never affect the job.
type Recorder interface {
	RecordSubmission(ctx context.Context, sub models.Submission) error
	RecordSnapshot(ctx context.Context, snap models.Snapshot) error
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) RecordSubmission(context.Context, models.Submission) error { return nil }
func (NopRecorder) RecordSnapshot(context.Context, models.Snapshot) error     { return nil }

// MultiRecorder fans every record out to each of its recorders, in order.
type MultiRecorder []Recorder

// RecordSubmission records sub with every recorder and joins their errors.
func (m MultiRecorder) RecordSubmission(ctx context.Context, sub models.Submission) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordSubmission(ctx, sub); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordSnapshot records snap with every recorder and joins their errors.
func (m MultiRecorder) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ Recorder = NopRecorder{}
	_ Recorder = MultiRecorder(nil)
)
