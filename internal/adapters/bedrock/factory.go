package bedrock

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// Factory creates Bedrock clients
type Factory struct {
	cfg           config.BedrockConfig
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewFactory creates a new Bedrock factory
func NewFactory(cfg config.BedrockConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Factory {
	return &Factory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateLLMClient loads the AWS configuration and creates a new Bedrock client
func (f *Factory) CreateLLMClient() (core.LLMClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(f.cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return NewBedrockClient(
		bedrockruntime.NewFromConfig(awsCfg),
		f.cfg.ModelID,
		f.cfg.MaxTokens,
		f.cfg.Temperature,
		f.cfg.TopP,
		f.cfg.MaxBodySize,
		f.logger,
		f.textProcessor,
	), nil
}
