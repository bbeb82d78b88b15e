package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/mikey/submission-guard/internal/core"
)

const submissionPromptFormat = `You are a spam detection system for public web forms. Analyze the following form submission and determine if it's spam.
Respond with a JSON object containing:
- is_spam: boolean (true if spam, false if not)
- score: number between 0 and 1 (higher means more likely to be spam)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (brief explanation of why you think it's spam or not)

Form: %s
Fields:
%s

Respond only with the JSON object and nothing else.`

// SystemPrompt is sent as the system message by providers that support one
const SystemPrompt = "You are a spam detection system. Respond only with JSON."

// SpamAnalysisResponse represents the structured response from the LLM
type SpamAnalysisResponse struct {
	IsSpam      bool    `json:"is_spam"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// SubmissionPrompt renders the scoring prompt. Field values are sanitized and
// limited to maxFieldSize bytes each. The source address is never included.
func (tp *TextProcessor) SubmissionPrompt(sub *core.Submission, maxFieldSize int) string {
	names := make([]string, 0, len(sub.Fields))
	for name := range sub.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		value := strings.TrimSpace(sub.Fields[name])
		if value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", name, tp.ProcessText(value, maxFieldSize))
	}
	return fmt.Sprintf(submissionPromptFormat, sub.FormKey, strings.TrimRight(b.String(), "\n"))
}

// ParseVerdict decodes a model response into a verdict. Responses that wrap the
// JSON object in prose are accepted.
func ParseVerdict(responseText, model string) (*core.LLMVerdict, error) {
	var resp SpamAnalysisResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		start := strings.IndexByte(responseText, '{')
		end := strings.LastIndexByte(responseText, '}')
		if start < 0 || end <= start {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[start:end+1]), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}
	if math.IsNaN(resp.Score) || math.IsNaN(resp.Confidence) {
		return nil, errors.New("LLM response contains an invalid score")
	}

	return &core.LLMVerdict{
		Score:       clampUnit(resp.Score),
		Confidence:  clampUnit(resp.Confidence),
		Explanation: resp.Explanation,
		Model:       model,
	}, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
