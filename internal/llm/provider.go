package llm

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderGemini     ProviderType = "gemini"
	ProviderGroq       ProviderType = "groq"
	ProviderOpenRouter ProviderType = "openrouter"
)

// ModelConfig declares one selectable model and the provider serving it
type ModelConfig struct {
	ID       string       `yaml:"id"`
	Provider ProviderType `yaml:"provider"`
	APIKey   string       `yaml:"api_key"`

	// Client-side pacing, 0 uses the provider default
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// Overrides the provider's default endpoint
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Provider is any hosted multimodal model service
type Provider interface {
	// Generate sends the ordered parts to the model and returns its raw text.
	// A response without any content block yields ErrEmptyResponse.
	Generate(ctx context.Context, modelID string, parts []Part) (string, error)
	Close() error
	GetModelInfo() map[string]interface{}
}

// Registry maps model identifiers to the provider serving them
type Registry struct {
	providers map[string]Provider
	types     map[string]ProviderType
	order     []string
	logger    *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		types:     make(map[string]ProviderType),
		logger:    logger,
	}
}

// Register adds a model. Registration order is the UI order.
func (r *Registry) Register(modelID string, typ ProviderType, p Provider) {
	if _, ok := r.providers[modelID]; !ok {
		r.order = append(r.order, modelID)
	}
	r.providers[modelID] = p
	r.types[modelID] = typ

	r.logger.Info("Model registered",
		zap.String("model", modelID),
		zap.String("provider", string(typ)))
}

// Lookup returns the provider serving modelID
func (r *Registry) Lookup(modelID string) (Provider, error) {
	p, ok := r.providers[modelID]
	if !ok {
		return nil, fmt.Errorf("model %q is not configured: %w", modelID, ErrModelNotFound)
	}
	return p, nil
}

// Models returns the configured model ids in registration order
func (r *Registry) Models() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ProviderOf returns the provider type of modelID
func (r *Registry) ProviderOf(modelID string) ProviderType {
	return r.types[modelID]
}

// Close closes every distinct provider once. Wrappers are looked through, so
// a client shared by several paced models is closed a single time.
func (r *Registry) Close() error {
	seen := make(map[Provider]bool)
	var lastErr error
	ids := r.Models()
	sort.Strings(ids)
	for _, id := range ids {
		p := unwrap(r.providers[id])
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			r.logger.Error("Failed to close provider",
				zap.String("model", id),
				zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

func unwrap(p Provider) Provider {
	for {
		w, ok := p.(interface{ Unwrap() Provider })
		if !ok {
			return p
		}
		p = w.Unwrap()
	}
}
