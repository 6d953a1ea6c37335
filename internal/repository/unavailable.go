package repository

import (
	"context"
	"fmt"

	"captcha-trainer/internal/models"
)

// UnavailableStore stands in for a backend that could not be opened at
// startup. Every call fails with ErrUnavailable and the original cause.
type UnavailableStore struct {
	name  string
	cause error
}

// NewUnavailableStore creates a placeholder for backend name
func NewUnavailableStore(name string, cause error) *UnavailableStore {
	return &UnavailableStore{name: name, cause: cause}
}

func (s *UnavailableStore) err() error {
	return fmt.Errorf("%s: %w: %w", s.name, ErrUnavailable, s.cause)
}

func (s *UnavailableStore) Append(context.Context, *models.LabelRecord) error {
	return s.err()
}

func (s *UnavailableStore) Recent(context.Context, int) ([]models.LabelRecord, error) {
	return nil, s.err()
}

func (s *UnavailableStore) All(context.Context) ([]models.LabelRecord, error) {
	return nil, s.err()
}

func (s *UnavailableStore) Name() string {
	return s.name
}

func (s *UnavailableStore) Close() error {
	return nil
}
