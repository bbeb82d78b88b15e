package factory

import (
	"fmt"

	"github.com/mikey/submission-guard/internal/adapters/cache"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates LLM clients
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Enabled reports whether the LLM scorer is switched on
func (f *LLMFactory) Enabled() bool {
	return f.cfg.GetLLM().Enabled
}

// CreateLLMClient creates a new LLM client based on the configuration,
// wrapped in a verdict cache when one is enabled
func (f *LLMFactory) CreateLLMClient() (core.LLMClient, error) {
	client, err := f.createProviderClient()
	if err != nil {
		return nil, err
	}

	cacheCfg := f.cfg.GetLLM().Cache
	if !cacheCfg.Enabled {
		return client, nil
	}
	store, err := NewStoreFactory(f.cfg, f.logger).CreateVerdictCache()
	if err != nil {
		return nil, fmt.Errorf("failed to create verdict cache: %w", err)
	}
	f.logger.Info("Caching LLM verdicts",
		zap.String("store", cacheCfg.Store.Type),
		zap.Duration("ttl", cacheCfg.TTL))
	return cache.NewCachingClient(client, store, cacheCfg.TTL, f.logger), nil
}

func (f *LLMFactory) createProviderClient() (core.LLMClient, error) {
	llmConfig := f.cfg.GetLLM()

	switch llmConfig.Provider {
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger, f.textProcessor).CreateLLMClient()
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger, f.textProcessor).CreateLLMClient()
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger, f.textProcessor).CreateLLMClient()
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", llmConfig.Provider)
	}
}
