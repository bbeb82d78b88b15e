package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIClient is an implementation of the LLMClient interface using OpenAI
type OpenAIClient struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(
	client *openai.Client,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// ScoreSubmission asks the chat model how likely the submission is spam
func (c *OpenAIClient) ScoreSubmission(ctx context.Context, sub *core.Submission) (*core.LLMVerdict, error) {
	prompt := c.textProcessor.SubmissionPrompt(sub, c.maxBodySize)

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: utils.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty response from OpenAI")
	}

	verdict, err := utils.ParseVerdict(resp.Choices[0].Message.Content, c.modelName)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("OpenAI verdict",
		zap.String("submission_id", sub.ID),
		zap.String("completion_id", resp.ID),
		zap.Float64("score", verdict.Score),
		zap.Float64("confidence", verdict.Confidence))
	return verdict, nil
}
