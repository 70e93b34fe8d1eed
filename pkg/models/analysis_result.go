package models

import "math"

// AnalysisDetail is one behavioral channel of a sample.
type AnalysisDetail struct {
	Emotion           string   `json:"emotion"`
	Confidence        float64  `json:"confidence"`
	Description       string   `json:"description,omitempty"`
	Posture           string   `json:"posture,omitempty"`
	Gesture           string   `json:"gesture,omitempty"`
	Intensity         *float64 `json:"intensity,omitempty"`
	Context           *string  `json:"context,omitempty"`
	TimeMarkers       []string `json:"timeMarkers,omitempty"`
	TruthfulnessScore *float64 `json:"truthfulnessScore,omitempty"`
}

type DeceptionIndicator struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Timestamp   float64 `json:"timestamp"`
}

type ConfidenceMetric struct {
	Level       float64 `json:"level"`
	Description string  `json:"description"`
	Context     string  `json:"context"`
	Timestamp   float64 `json:"timestamp"`
}

type KeyStrength struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

type AreaOfNote struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Significance string `json:"significance"`
}

type QuestionResponse struct {
	ResponseStyle      string   `json:"responseStyle"`
	TopicHandling      string   `json:"topicHandling"`
	BehavioralPatterns []string `json:"behavioralPatterns"`
}

type TimelineEvent struct {
	Timestamp   float64 `json:"timestamp"`
	Description string  `json:"description"`
}

// QuestionImpact records a question that shifted the speaker's mood.
type QuestionImpact struct {
	Question   string   `json:"question"`
	Timestamp  float64  `json:"timestamp"`
	MoodChange string   `json:"moodChange"`
	Analysis   *string  `json:"analysis,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AnalysisResult is one timestamped behavioral sample produced by the
// backend. Timestamp is in seconds from the start of the video; the rest of
// the payload is passed through to renderers untouched.
type AnalysisResult struct {
	Timestamp           float64              `json:"timestamp"`
	FacialExpression    AnalysisDetail       `json:"facialExpression"`
	BodyPosture         AnalysisDetail       `json:"bodyPosture"`
	HandGestures        AnalysisDetail       `json:"handGestures"`
	OverallEmotion      string               `json:"overallEmotion"`
	ConfidenceScore     float64              `json:"confidenceScore"`
	Analysis            string               `json:"analysis"`
	DeceptionIndicators []DeceptionIndicator `json:"deceptionIndicators,omitempty"`
	ConfidenceMetrics   []ConfidenceMetric   `json:"confidenceMetrics,omitempty"`
	KeyStrengths        []KeyStrength        `json:"keyStrengths"`
	AreasOfNote         []AreaOfNote         `json:"areasOfNote"`
	QuestionResponse    QuestionResponse     `json:"questionResponse"`
	Timeline            []TimelineEvent      `json:"timeline"`
	QuestionImpacts     []QuestionImpact     `json:"questionImpacts,omitempty"`
}

// SelectWindow is how far, in seconds, a sample may sit from the playback
// position and still be considered current.
const SelectWindow = 1.0

// SelectResult picks the sample to display at a playback position: the one
// closest to position among those strictly within SelectWindow, else the
// first sample. It returns false only when results is empty.
func SelectResult(results []AnalysisResult, position float64) (AnalysisResult, bool) {
	if len(results) == 0 {
		return AnalysisResult{}, false
	}
	best := -1
	bestDist := SelectWindow
	for i, r := range results {
		d := math.Abs(r.Timestamp - position)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return results[0], true
	}
	return results[best], true
}
