package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Recognize sends the payload to modelID and parses the answer.
// Errors are classified with ClassifyError; ErrEmptyResponse is returned when
// the model produced nothing usable. No retry is attempted.
func Recognize(ctx context.Context, p Provider, modelID string, payload []Part, delimiters ...string) (string, error) {
	raw, err := p.Generate(ctx, modelID, payload)
	if err != nil {
		return "", ClassifyError(err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyResponse
	}
	label := ExtractAfterDelimiter(raw, delimiters...)
	if label == "" {
		return "", ErrEmptyResponse
	}
	return label, nil
}

// QuotaState remembers models that hit a quota error for the process lifetime
type QuotaState struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewQuotaState creates an empty set
func NewQuotaState() *QuotaState {
	return &QuotaState{blocked: make(map[string]struct{})}
}

// Block marks modelID as rate-limited
func (q *QuotaState) Block(modelID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked[modelID] = struct{}{}
}

// IsBlocked reports whether modelID is rate-limited
func (q *QuotaState) IsBlocked(modelID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.blocked[modelID]
	return ok
}

// Check returns ErrModelBlocked for blocked models
func (q *QuotaState) Check(modelID string) error {
	if q.IsBlocked(modelID) {
		return fmt.Errorf("%w: %s", ErrModelBlocked, modelID)
	}
	return nil
}

// Blocked lists blocked models, sorted
func (q *QuotaState) Blocked() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]string, 0, len(q.blocked))
	for id := range q.blocked {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset clears the set. Only an explicit administrative action calls this.
func (q *QuotaState) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.blocked = make(map[string]struct{})
}
