package factory

import (
	"github.com/mikey/submission-guard/internal/adapters/gemini"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// GeminiFactory creates Gemini LLM clients
type GeminiFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *GeminiFactory {
	return &GeminiFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient creates a Gemini LLM client
func (f *GeminiFactory) CreateLLMClient() (core.LLMClient, error) {
	geminiCfg := f.cfg.GetGemini()
	if geminiCfg.APIKey == "" {
		return nil, &core.ConfigError{Key: "gemini.api_key", Reason: "is required"}
	}
	return gemini.NewFactory(geminiCfg, f.logger, f.textProcessor).CreateLLMClient()
}
