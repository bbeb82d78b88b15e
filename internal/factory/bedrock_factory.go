package factory

import (
	"github.com/mikey/submission-guard/internal/adapters/bedrock"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// BedrockFactory creates Bedrock LLM clients
type BedrockFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *BedrockFactory {
	return &BedrockFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient creates a Bedrock LLM client
func (f *BedrockFactory) CreateLLMClient() (core.LLMClient, error) {
	bedrockCfg := f.cfg.GetBedrock()
	if bedrockCfg.ModelID == "" {
		return nil, &core.ConfigError{Key: "bedrock.model_id", Reason: "is required"}
	}
	return bedrock.NewFactory(bedrockCfg, f.logger, f.textProcessor).CreateLLMClient()
}
