package models

import "time"

// Source says where a submitted video came from.
type Source string

const (
	SourceUpload  Source = "upload"
	SourceYouTube Source = "youtube"
)

// Video describes the submitted media for display.
type Video struct {
	Title  string `json:"title"`
	Source Source `json:"source"`
	// URL is playable for URL submissions; uploads have no remote URL.
	URL string `json:"url,omitempty"`
}

// Submission is what gets recorded when the backend accepts a video.
type Submission struct {
	JobID       string    `json:"job_id"`
	Video       Video     `json:"video"`
	SubmittedAt time.Time `json:"submitted_at"`
}
