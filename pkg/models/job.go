// Package models contains the data shared between the analysis client, the
// session controller and the local API.
package models

import (
	"encoding/json"
	"slices"
)

// Status is the backend-reported lifecycle state of an analysis job.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusComplete, StatusError:
		return true
	}
	return false
}

// IsTerminal returns true once no further transitions can occur.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusUploading:
		return 1
	case StatusProcessing:
		return 2
	case StatusComplete:
		return 3
	}
	return 0
}

// CanTransition reports whether moving from s to next respects the forward-only
// lifecycle: uploading -> processing -> complete, or error from any
// non-terminal state. Repeating a non-terminal status is allowed.
func (s Status) CanTransition(next Status) bool {
	if s.IsTerminal() || !next.Valid() {
		return false
	}
	if next == StatusError {
		return true
	}
	if s == "" {
		return true
	}
	return next.rank() >= s.rank()
}

// Job is one analysis request as last reported by the backend.
//
// Steps is optional: a Job either carries a step list or it does not, and
// callers must go through Steps to find out which.
type Job struct {
	ID        string  `json:"id"`
	Status    Status  `json:"status"`
	Progress  float64 `json:"progress"`
	Message   string  `json:"message"`
	Timestamp string  `json:"timestamp"`

	steps []ProcessingStep
}

// Steps returns the step list and whether one is present.
func (j Job) Steps() ([]ProcessingStep, bool) {
	if j.steps == nil {
		return nil, false
	}
	return slices.Clone(j.steps), true
}

// WithSteps returns a copy of j carrying steps. A nil argument is stored as
// an empty, present list.
func (j Job) WithSteps(steps []ProcessingStep) Job {
	if steps == nil {
		steps = []ProcessingStep{}
	}
	j.steps = slices.Clone(steps)
	return j
}

// WithoutSteps returns a copy of j with no step list.
func (j Job) WithoutSteps() Job {
	j.steps = nil
	return j
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	if j.steps != nil {
		j.steps = slices.Clone(j.steps)
	}
	return j
}

type jobJSON struct {
	ID        string            `json:"id,omitempty"`
	Status    Status            `json:"status"`
	Progress  float64           `json:"progress"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
	Steps     *[]ProcessingStep `json:"steps,omitempty"`
}

func (j Job) MarshalJSON() ([]byte, error) {
	out := jobJSON{
		ID:        j.ID,
		Status:    j.Status,
		Progress:  j.Progress,
		Message:   j.Message,
		Timestamp: j.Timestamp,
	}
	if steps, ok := j.Steps(); ok {
		out.Steps = &steps
	}
	return json.Marshal(out)
}

func (j *Job) UnmarshalJSON(data []byte) error {
	var in jobJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*j = Job{
		ID:        in.ID,
		Status:    in.Status,
		Progress:  in.Progress,
		Message:   in.Message,
		Timestamp: in.Timestamp,
	}
	if in.Steps != nil {
		*j = j.WithSteps(*in.Steps)
	}
	return nil
}
