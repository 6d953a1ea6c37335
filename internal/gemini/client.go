package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"captcha-trainer/internal/llm"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Client wraps the Gemini API client. One client serves every Gemini model id.
type Client struct {
	client      *genai.Client
	logger      *zap.Logger
	temperature float32

	mu     sync.Mutex
	models map[string]*genai.GenerativeModel
}

// Config for Gemini client
type Config struct {
	APIKey      string
	Endpoint    string // overrides the API endpoint
	Temperature float32
}

// NewClient creates a new Gemini client
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("Gemini client initialized",
		zap.Float32("temperature", cfg.Temperature))

	return &Client{
		client:      client,
		logger:      logger,
		temperature: cfg.Temperature,
		models:      make(map[string]*genai.GenerativeModel),
	}, nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) model(modelID string) *genai.GenerativeModel {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[modelID]; ok {
		return m
	}
	m := c.client.GenerativeModel(modelID)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(c.temperature), // CAPTCHA answers should be deterministic
		MaxOutputTokens: genai.Ptr[int32](300),
	}
	c.models[modelID] = m
	return m
}

// Generate sends the multimodal payload to modelID
func (c *Client) Generate(ctx context.Context, modelID string, parts []llm.Part) (string, error) {
	resp, err := c.model(modelID).GenerateContent(ctx, toGenaiParts(parts)...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			c.logger.Warn("Gemini blocked the request",
				zap.String("model", modelID),
				zap.Error(err))
			return "", fmt.Errorf("%w: %v", llm.ErrEmptyResponse, err)
		}
		c.logger.Error("Gemini API error",
			zap.String("model", modelID),
			zap.Error(err))
		return "", fmt.Errorf("gemini API error: %w", err)
	}

	text, ok := responseText(resp)
	if !ok {
		c.logger.Warn("Empty response from Gemini", zap.String("model", modelID))
		return "", llm.ErrEmptyResponse
	}

	c.logger.Debug("Gemini answered",
		zap.String("model", modelID),
		zap.Int("chars", len(text)))
	return text, nil
}

// GetModelInfo returns provider information
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider":    "gemini",
		"temperature": c.temperature,
	}
}

func toGenaiParts(parts []llm.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			out = append(out, genai.ImageData(p.Format(), p.Image))
			continue
		}
		out = append(out, genai.Text(p.Text))
	}
	return out
}

// responseText joins the text parts of the first candidate.
// ok is false when the response carries no content block at all.
func responseText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil || len(cand.Content.Parts) == 0 {
		return "", false
	}

	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	if sb.Len() == 0 {
		return "", false
	}
	return sb.String(), true
}
