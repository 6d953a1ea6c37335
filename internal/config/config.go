package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"captcha-trainer/internal/imageutil"
	"captcha-trainer/internal/llm"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials halts startup before anything is served
var ErrMissingCredentials = errors.New("missing credentials")

// Environment variables consulted when the YAML file leaves secrets empty
const (
	EnvGeminiAPIKey       = "GEMINI_API_KEY"
	EnvServiceAccountJSON = "GOOGLE_SERVICE_ACCOUNT_JSON"
	EnvOpenRouterAPIKey   = "OPENROUTER_API_KEY"
	EnvGroqAPIKey         = "GROQ_API_KEY"
)

// Store backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSheets   = "sheets"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Port string `yaml:"port"`

		// Allowed CORS origins, empty allows all
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Log struct {
		Production bool `yaml:"production"`
	} `yaml:"log"`

	Gemini struct {
		APIKey      string  `yaml:"api_key"`
		Endpoint    string  `yaml:"endpoint"`
		Temperature float32 `yaml:"temperature"`
	} `yaml:"gemini"`

	// Models offered in the UI, first one is the default
	Models []llm.ModelConfig `yaml:"models"`

	FewShot struct {
		Examples int          `yaml:"examples"`
		Target   int          `yaml:"target"` // progress bar goal
		Language llm.Language `yaml:"language"`
	} `yaml:"few_shot"`

	Store struct {
		Backend string `yaml:"backend"`

		// SQLite path or PostgreSQL URL
		DSN string `yaml:"dsn"`

		Sheets struct {
			SpreadsheetID   string `yaml:"spreadsheet_id"`
			Table           string `yaml:"table"`
			CredentialsFile string `yaml:"credentials_file"`
			CredentialsJSON string `yaml:"credentials_json"`
			MaxImageWidth   int    `yaml:"max_image_width"`
		} `yaml:"sheets"`
	} `yaml:"store"`

	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// LoadConfig loads configuration from a YAML file. A missing file is not an
// error: defaults and environment variables are used instead. Variables from a
// .env file next to the working directory are loaded first.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load() // optional .env acts as the local secret store

	config := &Config{}

	file, err := os.Open(configPath)
	switch {
	case err == nil:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config.applyDefaults()
	config.expandSecrets()
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8501"
	}

	if len(c.Models) == 0 {
		c.Models = []llm.ModelConfig{
			{ID: "gemini-2.5-flash-lite", Provider: llm.ProviderGemini},
			{ID: "gemini-2.0-flash", Provider: llm.ProviderGemini},
		}
	}
	for i := range c.Models {
		if c.Models[i].Provider == "" {
			c.Models[i].Provider = llm.ProviderGemini
		}
	}

	if c.FewShot.Examples <= 0 {
		c.FewShot.Examples = llm.DefaultExamples
	}
	if c.FewShot.Target <= 0 {
		c.FewShot.Target = 5
	}
	if c.FewShot.Language == "" {
		c.FewShot.Language = llm.LanguageZH
	}

	if c.Store.Backend == "" {
		c.Store.Backend = BackendMemory
	}
	if c.Store.Backend == BackendSQLite && c.Store.DSN == "" {
		c.Store.DSN = "./data/captcha.db"
	}
	if c.Store.Sheets.Table == "" {
		c.Store.Sheets.Table = "records"
	}
	if c.Store.Sheets.MaxImageWidth <= 0 {
		c.Store.Sheets.MaxImageWidth = imageutil.DefaultMaxWidth
	}

	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 5 << 20
	}
}

// expandSecrets resolves ${VAR} references and falls back to well-known
// environment variables for empty secrets
func (c *Config) expandSecrets() {
	c.Gemini.APIKey = os.ExpandEnv(c.Gemini.APIKey)
	if c.Gemini.APIKey == "" {
		c.Gemini.APIKey = os.Getenv(EnvGeminiAPIKey)
	}

	for i := range c.Models {
		m := &c.Models[i]
		m.APIKey = os.ExpandEnv(m.APIKey)
		if m.APIKey != "" {
			continue
		}
		switch m.Provider {
		case llm.ProviderGemini:
			m.APIKey = c.Gemini.APIKey
		case llm.ProviderOpenRouter:
			m.APIKey = os.Getenv(EnvOpenRouterAPIKey)
		case llm.ProviderGroq:
			m.APIKey = os.Getenv(EnvGroqAPIKey)
		}
	}

	c.Store.DSN = os.ExpandEnv(c.Store.DSN)
	c.Store.Sheets.CredentialsJSON = os.ExpandEnv(c.Store.Sheets.CredentialsJSON)
	if c.Store.Sheets.CredentialsJSON == "" && c.Store.Sheets.CredentialsFile == "" {
		c.Store.Sheets.CredentialsJSON = os.Getenv(EnvServiceAccountJSON)
	}
}

// Validate checks that every required secret is present
func (c *Config) Validate() error {
	var missing []string
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("model entry without id")
		}
		switch m.Provider {
		case llm.ProviderGemini, llm.ProviderOpenRouter, llm.ProviderGroq:
		default:
			return fmt.Errorf("model %q: unknown provider %q", m.ID, m.Provider)
		}
		if m.APIKey == "" || m.APIKey == "YOUR_API_KEY_HERE" {
			missing = append(missing, fmt.Sprintf("api key for model %s", m.ID))
		}
	}

	switch c.Store.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	case BackendSheets:
		if c.Store.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("store.sheets.spreadsheet_id is required for the sheets backend")
		}
		if c.Store.Sheets.CredentialsJSON == "" && c.Store.Sheets.CredentialsFile == "" {
			missing = append(missing, "service account credentials ("+EnvServiceAccountJSON+")")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// ServiceAccountJSON returns the credential blob for the sheets backend
func (c *Config) ServiceAccountJSON() ([]byte, error) {
	if c.Store.Sheets.CredentialsJSON != "" {
		return []byte(c.Store.Sheets.CredentialsJSON), nil
	}
	data, err := os.ReadFile(c.Store.Sheets.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read service account file: %w", err)
	}
	return data, nil
}
