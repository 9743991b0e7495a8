package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
)

// NewClient creates the provider adapter selected by cfg.Provider.
func NewClient(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, logger)
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported model provider configured: '%s'. Supported: [%s, %s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderOpenAI, config.ProviderAnthropic)
	}
}

// withTimeout applies the configured per-call API timeout, if any.
func withTimeout(ctx context.Context, cfg config.VisionConfig) (context.Context, context.CancelFunc) {
	if cfg.APITimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, cfg.APITimeout)
}

// resolveOptions fills unset request options from the model config.
func resolveOptions(opts GenerationOptions, cfg config.VisionConfig) GenerationOptions {
	if opts.Temperature == 0 {
		opts.Temperature = cfg.Temperature
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = cfg.MaxTokens
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	return opts
}
