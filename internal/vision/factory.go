package vision

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/relscout/internal/config"
	"github.com/xkilldash9x/relscout/internal/llmclient"
)

// NewObserver builds the observer selected by cfg.Provider.
func NewObserver(ctx context.Context, cfg config.VisionConfig, logger *zap.Logger) (Observer, error) {
	if cfg.Provider == config.ProviderStub {
		logger.Warn("Vision provider is 'stub'; navigation will rely on URL heuristics only.")
		return StubObserver{}, nil
	}
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	return NewModelObserver(client, logger), nil
}
