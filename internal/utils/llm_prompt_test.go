package utils

import (
	"strings"
	"testing"

	"github.com/mikey/submission-guard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSubmissionPrompt(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())
	sub := &core.Submission{
		FormKey:  "contact",
		SourceIP: "203.0.113.7",
		Fields: map[string]string{
			"name":    "Ann",
			"message": "hello there, this is a long message",
			"phone":   "  ",
		},
	}

	prompt := tp.SubmissionPrompt(sub, 10)
	assert.Contains(t, prompt, "Form: contact")
	assert.Contains(t, prompt, "name: Ann")
	assert.Contains(t, prompt, "message: hello ther")
	assert.Contains(t, prompt, "Content truncated")
	assert.NotContains(t, prompt, "phone:")
	assert.NotContains(t, prompt, "203.0.113.7")
	assert.Less(t, strings.Index(prompt, "message:"), strings.Index(prompt, "name:"))
}

func TestParseVerdict(t *testing.T) {
	v, err := ParseVerdict(`{"is_spam": true, "score": 0.92, "confidence": 0.8, "explanation": "casino ad"}`, "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 0.92, v.Score)
	assert.Equal(t, 0.8, v.Confidence)
	assert.Equal(t, "casino ad", v.Explanation)
	assert.Equal(t, "gpt-4", v.Model)

	v, err = ParseVerdict("Sure! Here is my answer:\n{\"score\": 1.7, \"confidence\": -2}\nThanks", "m")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.Score)
	assert.Equal(t, 0.0, v.Confidence)

	_, err = ParseVerdict("no json here", "m")
	assert.Error(t, err)
	_, err = ParseVerdict("{not json}", "m")
	assert.Error(t, err)
}
