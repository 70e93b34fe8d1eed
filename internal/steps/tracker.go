// Package steps tracks the coarse local stages of a file upload. The list is
// purely client-side and independent of the status the backend reports.
package steps

import (
	"slices"
	"sync"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Stage names, in order.
const (
	UploadVideo    = "Upload Video"
	ProcessVideo   = "Process Video"
	AnalyzeContent = "Analyze Content"
)

var stageNames = [...]string{UploadVideo, ProcessVideo, AnalyzeContent}

// Tracker holds the fixed three-stage checklist. It is safe for concurrent
// use.
type Tracker struct {
	mu    sync.Mutex
	steps []models.ProcessingStep
}

// NewTracker returns a tracker seeded via Begin.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.Begin()
	return t
}

// Begin resets the checklist: the upload stage is active, later stages are
// pending.
func (t *Tracker) Begin() []models.ProcessingStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.steps = make([]models.ProcessingStep, len(stageNames))
	for i, name := range stageNames {
		t.steps[i] = models.ProcessingStep{Name: name, Status: models.StepPending}
	}
	t.steps[0].Status = models.StepInProgress
	return slices.Clone(t.steps)
}

// MarkUploaded completes the upload stage and starts processing.
func (t *Tracker) MarkUploaded() []models.ProcessingStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.steps[0].Status = models.StepComplete
	t.steps[0].Progress = 1
	t.steps[1].Status = models.StepInProgress
	return slices.Clone(t.steps)
}

// MarkFailed puts every stage into error with zero progress.
func (t *Tracker) MarkFailed() []models.ProcessingStep {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.steps {
		t.steps[i].Status = models.StepError
		t.steps[i].Progress = 0
	}
	return slices.Clone(t.steps)
}

// Steps returns a copy of the current checklist.
func (t *Tracker) Steps() []models.ProcessingStep {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.steps)
}
