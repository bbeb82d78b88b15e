package factory

import (
	"github.com/mikey/submission-guard/internal/adapters/openai"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// OpenAIFactory creates OpenAI LLM clients
type OpenAIFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient creates an OpenAI LLM client. A custom base URL may point at
// any OpenAI-compatible endpoint, in which case the key may be empty.
func (f *OpenAIFactory) CreateLLMClient() (core.LLMClient, error) {
	openaiCfg := f.cfg.GetOpenAI()
	if openaiCfg.APIKey == "" && openaiCfg.BaseURL == "" {
		return nil, &core.ConfigError{Key: "openai.api_key", Reason: "is required"}
	}
	return openai.NewFactory(openaiCfg, f.logger, f.textProcessor).CreateLLMClient()
}
