package models

import "encoding/json"

// StepStatus is the state of one locally tracked upload stage.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepComplete   StepStatus = "complete"
	StepError      StepStatus = "error"
)

// ProcessingStep is one coarse stage of the local upload pipeline.
type ProcessingStep struct {
	Name     string     `json:"step"`
	Status   StepStatus `json:"status"`
	Progress float64    `json:"progress"`

	message string
	hasMsg  bool
}

// Message returns the optional step message and whether it is set.
func (s ProcessingStep) Message() (string, bool) {
	return s.message, s.hasMsg
}

// WithMessage returns a copy of s carrying msg.
func (s ProcessingStep) WithMessage(msg string) ProcessingStep {
	s.message = msg
	s.hasMsg = true
	return s
}

// WithoutMessage returns a copy of s with no message.
func (s ProcessingStep) WithoutMessage() ProcessingStep {
	s.message = ""
	s.hasMsg = false
	return s
}

type stepJSON struct {
	Name     string     `json:"step"`
	Status   StepStatus `json:"status"`
	Progress float64    `json:"progress"`
	Message  *string    `json:"message,omitempty"`
}

func (s ProcessingStep) MarshalJSON() ([]byte, error) {
	out := stepJSON{Name: s.Name, Status: s.Status, Progress: s.Progress}
	if msg, ok := s.Message(); ok {
		out.Message = &msg
	}
	return json.Marshal(out)
}

func (s *ProcessingStep) UnmarshalJSON(data []byte) error {
	var in stepJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = ProcessingStep{Name: in.Name, Status: in.Status, Progress: in.Progress}
	if in.Message != nil {
		*s = s.WithMessage(*in.Message)
	}
	return nil
}
