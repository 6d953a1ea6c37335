package models

import (
	"errors"
	"strings"
	"time"
	"unicode"
)

// RecordStatus tells whether the stored label came from the model or from a human
type RecordStatus string

const (
	StatusAICorrect      RecordStatus = "AI_CORRECT"
	StatusHumanCorrected RecordStatus = "HUMAN_CORRECTED"
)

// Valid reports whether s is a known status. Legacy rows carry an empty status.
func (s RecordStatus) Valid() bool {
	return s == StatusAICorrect || s == StatusHumanCorrected
}

// ErrEmptyLabel is returned when a label is empty after normalization
var ErrEmptyLabel = errors.New("label must not be empty")

// LabelRecord is one confirmed or corrected CAPTCHA
type LabelRecord struct {
	ID          int64        `json:"id" db:"id"`
	Image       []byte       `json:"-" db:"image_data"` // PNG encoded
	CorrectText string       `json:"correct_text" db:"correct_text"`
	ModelUsed   string       `json:"model_used" db:"model_used"`
	CreatedAt   time.Time    `json:"created_at" db:"timestamp"`
	Status      RecordStatus `json:"status,omitempty" db:"status"`
}

// GoldStandardExample is the few-shot projection of a LabelRecord
type GoldStandardExample struct {
	Image []byte
	Text  string
}

// Example projects the record into a few-shot example
func (r LabelRecord) Example() GoldStandardExample {
	return GoldStandardExample{Image: r.Image, Text: r.CorrectText}
}

// NormalizeLabel strips every whitespace rune. CAPTCHA answers are contiguous
// tokens, so "A7 b2" and " A7b2\n" both become "A7b2".
func NormalizeLabel(text string) (string, error) {
	label := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	if label == "" {
		return "", ErrEmptyLabel
	}
	return label, nil
}

// SessionStats counts verdicts within one interactive session
type SessionStats struct {
	Total   int `json:"total"`
	Correct int `json:"correct"`
}

// Accuracy returns correct/total in percent, 0 when nothing was rated yet
func (s SessionStats) Accuracy() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}
