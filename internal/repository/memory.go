package repository

import (
	"context"
	"sync"

	"captcha-trainer/internal/models"
)

// MemoryStore keeps records in process memory; they are lost on exit
type MemoryStore struct {
	mu      sync.RWMutex
	records []models.LabelRecord
	nextID  int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1}
}

func (s *MemoryStore) Append(_ context.Context, rec *models.LabelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ID = s.nextID
	s.nextID++
	stored := *rec
	stored.Image = append([]byte(nil), rec.Image...)
	s.records = append(s.records, stored)
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]models.LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(limit), nil
}

func (s *MemoryStore) All(_ context.Context) ([]models.LabelRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.newestFirst(len(s.records)), nil
}

func (s *MemoryStore) newestFirst(limit int) []models.LabelRecord {
	if limit > len(s.records) {
		limit = len(s.records)
	}
	if limit <= 0 {
		return []models.LabelRecord{}
	}
	out := make([]models.LabelRecord, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[i])
	}
	return out
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func (s *MemoryStore) Close() error {
	return nil
}
