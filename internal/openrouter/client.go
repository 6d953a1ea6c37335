package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"captcha-trainer/internal/llm"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenRouter API
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// GroqBaseURL speaks the same chat-completions dialect
	GroqBaseURL = "https://api.groq.com/openai/v1"
)

// Client talks to OpenAI-compatible chat-completions APIs with image input
type Client struct {
	name       string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// Config holds configuration for the client.
type Config struct {
	Name    string // "openrouter" or "groq", used in logs and errors
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// NewClient creates a new client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Name == "" {
		cfg.Name = "openrouter"
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key is required", cfg.Name)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client := &Client{
		name:       cfg.Name,
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout}, // zero means the transport default
		logger:     logger,
	}

	logger.Info("Chat-completions client initialized",
		zap.String("provider", cfg.Name),
		zap.String("base_url", client.baseURL))

	return client, nil
}

// Generate sends the payload as a single user turn
func (c *Client) Generate(ctx context.Context, modelID string, parts []llm.Part) (string, error) {
	reqBody := chatRequest{
		Model: modelID,
		Messages: []chatMessage{{
			Role:    "user",
			Content: toContent(parts),
		}},
		Temperature: 0,
		MaxTokens:   300,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Title", "CAPTCHA Trainer")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Chat-completions request failed",
			zap.String("provider", c.name),
			zap.Error(err))
		return "", fmt.Errorf("%s API request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Chat-completions API error",
			zap.String("provider", c.name),
			zap.String("model", modelID),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)))
		return "", &llm.StatusError{Provider: c.name, Code: resp.StatusCode, Body: string(body)}
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if apiResp.Error != nil {
		return "", fmt.Errorf("%s API error: %s", c.name, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 || strings.TrimSpace(apiResp.Choices[0].Message.Content) == "" {
		c.logger.Warn("Empty chat-completions response",
			zap.String("provider", c.name),
			zap.String("model", modelID))
		return "", llm.ErrEmptyResponse
	}

	return apiResp.Choices[0].Message.Content, nil
}

// Close closes the client and releases resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetModelInfo returns information about the provider.
func (c *Client) GetModelInfo() map[string]interface{} {
	return map[string]interface{}{
		"provider": c.name,
		"base_url": c.baseURL,
	}
}

func toContent(parts []llm.Part) []contentPart {
	out := make([]contentPart, 0, len(parts))
	for _, p := range parts {
		if p.IsImage() {
			mime := p.MIMEType
			if mime == "" {
				mime = "image/png"
			}
			out = append(out, contentPart{
				Type:     "image_url",
				ImageURL: &imageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(p.Image)},
			})
			continue
		}
		out = append(out, contentPart{Type: "text", Text: p.Text})
	}
	return out
}
