package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitedProvider paces requests to a provider. It only delays calls;
// failures are passed through untouched.
type RateLimitedProvider struct {
	provider Provider
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewRateLimitedProvider wraps a provider with a requests-per-minute pacer
func NewRateLimitedProvider(provider Provider, requestsPerMinute int, logger *zap.Logger) *RateLimitedProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 8 // Conservative default for free tier
	}
	return &RateLimitedProvider{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1),
		logger:   logger,
	}
}

func (p *RateLimitedProvider) Generate(ctx context.Context, modelID string, parts []Part) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		p.logger.Warn("Rate limit wait aborted",
			zap.String("model", modelID),
			zap.Error(err))
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	return p.provider.Generate(ctx, modelID, parts)
}

// Unwrap returns the paced provider
func (p *RateLimitedProvider) Unwrap() Provider {
	return p.provider
}

func (p *RateLimitedProvider) Close() error {
	return p.provider.Close()
}

func (p *RateLimitedProvider) GetModelInfo() map[string]interface{} {
	info := p.provider.GetModelInfo()
	info["requests_per_minute"] = float64(p.limiter.Limit()) * 60
	return info
}
