package models

import "time"

// UploadState is the feedback state of the current image in a session
type UploadState string

const (
	StatePending    UploadState = "pending"
	StateRecognized UploadState = "recognized"
	StateRated      UploadState = "rated"
)

// CorrectionRequest carries a human-typed answer
type CorrectionRequest struct {
	Text string `json:"text" binding:"required"`
}

// UploadView is what the UI sees of the current upload
type UploadView struct {
	Filename   string       `json:"filename"`
	Model      string       `json:"model"`
	State      UploadState  `json:"state"`
	Label      string       `json:"label,omitempty"`
	Empty      bool         `json:"empty"` // model answered with nothing usable
	FinalLabel string       `json:"final_label,omitempty"`
	Status     RecordStatus `json:"status,omitempty"`
}

// SessionView is the JSON snapshot of a session
type SessionView struct {
	ID       string       `json:"id"`
	Stats    SessionStats `json:"stats"`
	Accuracy float64      `json:"accuracy"`
	Current  *UploadView  `json:"current,omitempty"`
}

// FeedbackResult is returned after confirm/correct
type FeedbackResult struct {
	Session SessionView `json:"session"`
	Saved   bool        `json:"saved"`
	Warning string      `json:"warning,omitempty"`
}

// ModelView describes one selectable model
type ModelView struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Blocked  bool   `json:"blocked"`
}

// ExamplesView reports the gold-standard collection progress
type ExamplesView struct {
	Count   int      `json:"count"`
	Target  int      `json:"target"`
	Labels  []string `json:"labels"`
	Warning string   `json:"warning,omitempty"`
}

// RecordSummary is a record without its image bytes
type RecordSummary struct {
	ID          int64        `json:"id"`
	CorrectText string       `json:"correct_text"`
	ModelUsed   string       `json:"model_used"`
	CreatedAt   time.Time    `json:"created_at"`
	Status      RecordStatus `json:"status,omitempty"`
}

// OverallStats is the accuracy over every persisted record
type OverallStats struct {
	Total    int      `json:"total"`
	Correct  int      `json:"correct"`
	Accuracy *float64 `json:"accuracy,omitempty"` // nil when the backend has no status column
	Warning  string   `json:"warning,omitempty"`
}

// RecognitionResult is returned after an upload
type RecognitionResult struct {
	Session SessionView `json:"session"`
	Skipped bool        `json:"skipped"` // same file as before, no request was sent
	Warning string      `json:"warning,omitempty"`
}
