package repository

import (
	"context"
	"errors"

	"captcha-trainer/internal/models"
)

// ErrUnavailable wraps every failure caused by an unreachable or
// misconfigured backing medium
var ErrUnavailable = errors.New("label store unavailable")

// LabelStore persists confirmed and corrected CAPTCHA labels. It is append-only.
type LabelStore interface {
	// Append stores rec and fills in its ID when the backend assigns one
	Append(ctx context.Context, rec *models.LabelRecord) error
	// Recent returns up to limit records, most recent first
	Recent(ctx context.Context, limit int) ([]models.LabelRecord, error)
	// All returns every record, most recent first
	All(ctx context.Context) ([]models.LabelRecord, error)
	// Name identifies the backend in logs and health output
	Name() string
	Close() error
}

// StatusReporter is implemented by backends whose schema may lack the status
// column (older spreadsheets)
type StatusReporter interface {
	HasStatusColumn(ctx context.Context) (bool, error)
}
