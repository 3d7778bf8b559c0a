package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cropdoc/internal/config"
	"cropdoc/internal/metrics"
)

// Options carries the shared middleware inputs for every stage client.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	RPS     float64
	Burst   int
}

// FromStage builds the LLM client for one stage. It returns (nil, nil) when
// the stage has no API key, which marks the LLM tier as unavailable.
func FromStage(ctx context.Context, providerName, baseURL string, sc config.StageConfig, opt Options) (Client, error) {
	var inner Client
	switch strings.ToLower(providerName) {
	case config.ProviderFake:
		inner = NewFakeClient()
	case config.ProviderOpenAI:
		if sc.APIKey == "" {
			return nil, nil
		}
		inner = NewOpenAIClient(sc.APIKey, sc.Model, baseURL, sc.MaxOutputTokens)
	case config.ProviderGemini, "":
		if sc.APIKey == "" {
			return nil, nil
		}
		g, err := NewGeminiClient(ctx, sc.APIKey, sc.Model, sc.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("%s stage: gemini client: %w", sc.Name, err)
		}
		inner = g
	default:
		return nil, fmt.Errorf("%s stage: unknown llm provider %q", sc.Name, providerName)
	}
	return Wrap(inner,
		WithLogging(opt.Logger),
		WithMetrics(opt.Metrics),
		WithHooks(),
		RateLimit(opt.RPS, opt.Burst),
	), nil
}
