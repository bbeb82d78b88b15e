package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// GeminiClient is an implementation of the LLMClient interface using Google Gemini
type GeminiClient struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(
	ctx context.Context,
	apiKey string,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(temperature)
	model.SetTopP(topP)
	model.SetMaxOutputTokens(int32(maxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(utils.SystemPrompt)}}

	return &GeminiClient{
		client:        client,
		model:         model,
		modelName:     modelName,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// ScoreSubmission asks Gemini how likely the submission is spam
func (c *GeminiClient) ScoreSubmission(ctx context.Context, sub *core.Submission) (*core.LLMVerdict, error) {
	prompt := c.textProcessor.SubmissionPrompt(sub, c.maxBodySize)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return nil, err
	}

	verdict, err := utils.ParseVerdict(text, c.modelName)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Gemini verdict",
		zap.String("submission_id", sub.ID),
		zap.Float64("score", verdict.Score),
		zap.Float64("confidence", verdict.Confidence))
	return verdict, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response from Gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("empty response from Gemini")
	}
	return b.String(), nil
}
