package gemini

import (
	"context"

	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// Factory creates new instances of GeminiClient
type Factory struct {
	cfg           config.GeminiConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new factory for GeminiClient instances
func NewFactory(cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient creates a new GeminiClient
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	return NewGeminiClient(
		context.Background(),
		f.cfg.APIKey,
		f.cfg.ModelName,
		f.cfg.MaxTokens,
		f.cfg.Temperature,
		f.cfg.TopP,
		f.cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	)
}
