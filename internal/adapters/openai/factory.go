package openai

import (
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Factory creates new instances of OpenAIClient
type Factory struct {
	cfg           config.OpenAIConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for OpenAIClient instances
func NewFactory(cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient creates a new OpenAIClient
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	clientCfg := openai.DefaultConfig(f.cfg.APIKey)
	if f.cfg.BaseURL != "" {
		clientCfg.BaseURL = f.cfg.BaseURL
	}

	return NewOpenAIClient(
		openai.NewClientWithConfig(clientCfg),
		f.cfg.ModelName,
		f.cfg.MaxTokens,
		f.cfg.Temperature,
		f.cfg.TopP,
		f.cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
