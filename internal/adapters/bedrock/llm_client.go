package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/utils"
	"go.uber.org/zap"
)

// ModelInvoker is the subset of the Bedrock runtime client used for scoring
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient is an implementation of the LLMClient interface using Amazon Bedrock
type BedrockClient struct {
	client        ModelInvoker
	modelID       string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockClient creates a new Bedrock client
func NewBedrockClient(
	client ModelInvoker,
	modelID string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *BedrockClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if textProcessor == nil {
		textProcessor = utils.NewTextProcessor(logger)
	}
	return &BedrockClient{
		client:        client,
		modelID:       modelID,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// ScoreSubmission asks the Bedrock model how likely the submission is spam
func (c *BedrockClient) ScoreSubmission(ctx context.Context, sub *core.Submission) (*core.LLMVerdict, error) {
	payload, err := c.buildPayload(c.textProcessor.SubmissionPrompt(sub, c.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	responseText, err := c.extractText(resp.Body)
	if err != nil {
		return nil, err
	}

	verdict, err := utils.ParseVerdict(responseText, c.modelID)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Bedrock verdict",
		zap.String("submission_id", sub.ID),
		zap.Float64("score", verdict.Score),
		zap.Float64("confidence", verdict.Confidence))
	return verdict, nil
}

// buildPayload encodes the prompt in the request format of the model family
func (c *BedrockClient) buildPayload(prompt string) ([]byte, error) {
	switch {
	case c.isAnthropicModel():
		return json.Marshal(map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        c.maxTokens,
			"temperature":       c.temperature,
			"top_p":             c.topP,
			"system":            utils.SystemPrompt,
			"messages": []map[string]interface{}{
				{"role": "user", "content": prompt},
			},
		})
	case c.isAmazonTitanModel():
		return json.Marshal(map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": c.maxTokens,
				"temperature":   c.temperature,
				"topP":          c.topP,
			},
		})
	default:
		return json.Marshal(map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  c.maxTokens,
			"temperature": c.temperature,
			"top_p":       c.topP,
		})
	}
}

// extractText pulls the generated text out of a model family specific response body
func (c *BedrockClient) extractText(body []byte) (string, error) {
	switch {
	case c.isAnthropicModel():
		var claudeResp struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		}
		if err := json.Unmarshal(body, &claudeResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Claude response: %w", err)
		}
		var b strings.Builder
		for _, part := range claudeResp.Content {
			if part.Type == "text" {
				b.WriteString(part.Text)
			}
		}
		if b.Len() == 0 {
			return "", errors.New("empty response from Claude model")
		}
		return b.String(), nil
	case c.isAmazonTitanModel():
		var titanResp struct {
			Results []struct {
				OutputText string `json:"outputText"`
			} `json:"results"`
		}
		if err := json.Unmarshal(body, &titanResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal Titan response: %w", err)
		}
		if len(titanResp.Results) == 0 {
			return "", errors.New("empty response from Titan model")
		}
		return titanResp.Results[0].OutputText, nil
	default:
		var genericResp struct {
			Output   string `json:"output"`
			Text     string `json:"text"`
			Response string `json:"response"`
		}
		if err := json.Unmarshal(body, &genericResp); err != nil {
			return "", fmt.Errorf("failed to unmarshal generic response: %w", err)
		}
		switch {
		case genericResp.Output != "":
			return genericResp.Output, nil
		case genericResp.Text != "":
			return genericResp.Text, nil
		case genericResp.Response != "":
			return genericResp.Response, nil
		}
		return string(body), nil
	}
}

// isAnthropicModel checks if the model is an Anthropic Claude model
func (c *BedrockClient) isAnthropicModel() bool {
	return strings.Contains(c.modelID, "anthropic.claude")
}

// isAmazonTitanModel checks if the model is an Amazon Titan model
func (c *BedrockClient) isAmazonTitanModel() bool {
	return strings.HasPrefix(c.modelID, "amazon.titan")
}
