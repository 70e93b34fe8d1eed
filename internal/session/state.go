package session

import (
	"encoding/json"
	"time"

	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Phase is where the session is in the life of its current job.
type Phase string

const (
	// PhaseIdle means nothing has been submitted since the last reset.
	PhaseIdle Phase = "idle"
	// PhaseSubmitting covers the upload and the first status fetch.
	PhaseSubmitting Phase = "submitting"
	// PhasePolling means the backend accepted the job and it is not terminal yet.
	PhasePolling Phase = "polling"
	// PhaseSettled means the backend reported complete or error.
	PhaseSettled Phase = "settled"
	// PhaseFailed means the submission or its first fetch failed.
	PhaseFailed Phase = "failed"
	// PhaseInterrupted means a later status fetch failed and polling stopped.
	PhaseInterrupted Phase = "interrupted"
)

// State is a point-in-time copy of everything the presentation layer shows.
// Optional parts are reached through accessors that report presence.
type State struct {
	Phase     Phase
	JobID     string
	Error     string
	UpdatedAt time.Time

	job        models.Job
	hasJob     bool
	results    []models.AnalysisResult
	hasResults bool
	video      models.Video
	hasVideo   bool
}

// Busy reports whether a job is in flight. New submissions are refused
// while busy.
func (s State) Busy() bool {
	return s.Phase == PhaseSubmitting || s.Phase == PhasePolling
}

// Job returns the visible job state, local or backend-reported.
func (s State) Job() (models.Job, bool) {
	if !s.hasJob {
		return models.Job{}, false
	}
	return s.job.Clone(), true
}

// Results returns the analysis results, present once the backend sent any.
func (s State) Results() ([]models.AnalysisResult, bool) {
	if !s.hasResults {
		return nil, false
	}
	out := make([]models.AnalysisResult, len(s.results))
	copy(out, s.results)
	return out, true
}

// Video returns the metadata of the submitted video.
func (s State) Video() (models.Video, bool) {
	return s.video, s.hasVideo
}

// Steps returns the upload checklist carried by the job, if any.
func (s State) Steps() ([]models.ProcessingStep, bool) {
	if !s.hasJob {
		return nil, false
	}
	return s.job.Steps()
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.hasJob {
		out.job = s.job.Clone()
	}
	if s.hasResults {
		out.results = make([]models.AnalysisResult, len(s.results))
		copy(out.results, s.results)
	}
	return out
}

type stateJSON struct {
	Phase     Phase                    `json:"phase"`
	JobID     string                   `json:"job_id,omitempty"`
	Error     string                   `json:"error,omitempty"`
	Job       *models.Job              `json:"job,omitempty"`
	Results   *[]models.AnalysisResult `json:"results"`
	Video     *models.Video            `json:"video,omitempty"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// MarshalJSON renders absent results as null, like the backend does.
func (s State) MarshalJSON() ([]byte, error) {
	out := stateJSON{
		Phase:     s.Phase,
		JobID:     s.JobID,
		Error:     s.Error,
		UpdatedAt: s.UpdatedAt,
	}
	if s.hasJob {
		job := s.job
		out.Job = &job
	}
	if s.hasResults {
		results := s.results
		if results == nil {
			results = []models.AnalysisResult{}
		}
		out.Results = &results
	}
	if s.hasVideo {
		video := s.video
		out.Video = &video
	}
	return json.Marshal(out)
}
