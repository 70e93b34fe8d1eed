package models

import "time"

// AnalysisRecord is the stored history entry of one submitted video.
type AnalysisRecord struct {
	JobID       string           `json:"job_id"`
	Video       Video            `json:"video"`
	Status      Status           `json:"status"`
	Progress    float64          `json:"progress"`
	Message     string           `json:"message"`
	Results     []AnalysisResult `json:"results"`
	SubmittedAt time.Time        `json:"submitted_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
