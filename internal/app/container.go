package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"captcha-trainer/internal/config"
	"captcha-trainer/internal/gemini"
	"captcha-trainer/internal/llm"
	"captcha-trainer/internal/openrouter"
	"captcha-trainer/internal/repository"
	"captcha-trainer/internal/service"
	"captcha-trainer/internal/sheets"

	"go.uber.org/zap"
)

// Container wires the trainer with its store and model providers
type Container struct {
	Config   *config.Config
	Store    repository.LabelStore
	Registry *llm.Registry
	Quota    *llm.QuotaState
	Trainer  *service.Trainer
}

// NewLogger builds a development logger unless production is set
func NewLogger(production bool) (*zap.Logger, error) {
	if production {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// BuildContainer constructs the dependency graph. A label store that cannot
// be opened is replaced with one that reports itself unavailable, so the
// service still starts and recognizes without examples.
func BuildContainer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	registry, err := BuildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Label store unavailable, continuing without persistence",
			zap.String("backend", cfg.Store.Backend),
			zap.Error(err))
		store = repository.NewUnavailableStore(cfg.Store.Backend, err)
	}

	quota := llm.NewQuotaState()
	trainer := service.NewTrainer(
		store,
		registry,
		quota,
		llm.NewAssembler(cfg.FewShot.Language),
		service.Config{Examples: cfg.FewShot.Examples, Target: cfg.FewShot.Target},
		logger,
	)

	return &Container{
		Config:   cfg,
		Store:    store,
		Registry: registry,
		Quota:    quota,
		Trainer:  trainer,
	}, nil
}

// Close releases the store and every provider
func (c *Container) Close() error {
	return errors.Join(c.Registry.Close(), c.Store.Close())
}

// BuildRegistry creates one provider client per provider type and registers
// every configured model behind its own request pacer
func BuildRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*llm.Registry, error) {
	registry := llm.NewRegistry(logger)
	clients := make(map[string]llm.Provider)

	for _, m := range cfg.Models {
		key := string(m.Provider) + "|" + m.APIKey + "|" + m.BaseURL
		client, ok := clients[key]
		if !ok {
			var err error
			client, err = newProvider(ctx, cfg, m, logger)
			if err != nil {
				_ = registry.Close()
				return nil, fmt.Errorf("model %s: %w", m.ID, err)
			}
			clients[key] = client
		}
		registry.Register(m.ID, m.Provider, llm.NewRateLimitedProvider(client, m.RequestsPerMinute, logger))
	}

	if len(registry.Models()) == 0 {
		return nil, fmt.Errorf("no models configured")
	}
	return registry, nil
}

func newProvider(ctx context.Context, cfg *config.Config, m llm.ModelConfig, logger *zap.Logger) (llm.Provider, error) {
	switch m.Provider {
	case llm.ProviderGemini:
		endpoint := cfg.Gemini.Endpoint
		if m.BaseURL != "" {
			endpoint = m.BaseURL
		}
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:      m.APIKey,
			Endpoint:    endpoint,
			Temperature: cfg.Gemini.Temperature,
		}, logger)
	case llm.ProviderOpenRouter:
		return openrouter.NewClient(openrouter.Config{
			Name:    "openrouter",
			APIKey:  m.APIKey,
			BaseURL: m.BaseURL,
			Timeout: m.Timeout,
		}, logger)
	case llm.ProviderGroq:
		baseURL := m.BaseURL
		if baseURL == "" {
			baseURL = openrouter.GroqBaseURL
		}
		return openrouter.NewClient(openrouter.Config{
			Name:    "groq",
			APIKey:  m.APIKey,
			BaseURL: baseURL,
			Timeout: m.Timeout,
		}, logger)
	}
	return nil, fmt.Errorf("unknown provider %q", m.Provider)
}

// OpenStore opens the configured label store backend
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.LabelStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Warn("Using in-memory label store, records are lost on exit")
		return repository.NewMemoryStore(), nil
	case config.BackendSQLite:
		if err := ensureDir(cfg.Store.DSN); err != nil {
			return nil, err
		}
		return repository.NewSQLStore(repository.DriverSQLite, cfg.Store.DSN, logger)
	case config.BackendPostgres:
		return repository.NewSQLStore(repository.DriverPostgres, cfg.Store.DSN, logger)
	case config.BackendSheets:
		creds, err := cfg.ServiceAccountJSON()
		if err != nil {
			return nil, err
		}
		return sheets.NewStore(ctx, sheets.Config{
			SpreadsheetID:   cfg.Store.Sheets.SpreadsheetID,
			Table:           cfg.Store.Sheets.Table,
			CredentialsJSON: creds,
			MaxImageWidth:   cfg.Store.Sheets.MaxImageWidth,
		}, logger)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

// ensureDir creates the parent directory of a sqlite file path
func ensureDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, "file:") || strings.Contains(dsn, ":memory:") {
		return nil
	}
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return nil
}
