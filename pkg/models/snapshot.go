package models

import (
	"encoding/json"
	"slices"
)

// Snapshot is the backend's current view of a job: its state and, once
// available, its results.
type Snapshot struct {
	State Job

	results []AnalysisResult
}

// NewSnapshot builds a snapshot. Pass nil results for "not available yet".
func NewSnapshot(state Job, results []AnalysisResult) Snapshot {
	s := Snapshot{State: state.Clone()}
	if results != nil {
		s.results = slices.Clone(results)
	}
	return s
}

// Results returns the result sequence and whether the backend provided one.
func (s Snapshot) Results() ([]AnalysisResult, bool) {
	if s.results == nil {
		return nil, false
	}
	return slices.Clone(s.results), true
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	return NewSnapshot(s.State, s.results)
}

type snapshotJSON struct {
	ID      string            `json:"id"`
	State   Job               `json:"state"`
	Results *[]AnalysisResult `json:"results"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{ID: s.State.ID, State: s.State}
	if res, ok := s.Results(); ok {
		out.Results = &res
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the backend wire shape
// {id, state: {status, progress, message, timestamp, steps?}, results: [...]|null}.
// The top-level id is copied onto State.ID.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	state := in.State
	if in.ID != "" {
		state.ID = in.ID
	}
	var results []AnalysisResult
	if in.Results != nil {
		results = *in.Results
		if results == nil {
			results = []AnalysisResult{}
		}
	}
	*s = NewSnapshot(state, results)
	return nil
}
