package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func completionServer(t *testing.T, content string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-4o-mini", req["model"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) core.LLMClient {
	t.Helper()
	client, err := NewFactory(config.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		ModelName:   "gpt-4o-mini",
		MaxTokens:   200,
		Temperature: 0.1,
		TopP:        0.9,
		MaxBodySize: 4096,
	}, zap.NewNop(), nil).CreateLLMClient()
	require.NoError(t, err)
	return client
}

func TestOpenAIClient_ScoreSubmission(t *testing.T) {
	srv := completionServer(t, `{"is_spam": true, "score": 0.95, "confidence": 0.9, "explanation": "casino advert"}`, http.StatusOK)
	client := newTestClient(t, srv)

	verdict, err := client.ScoreSubmission(context.Background(), &core.Submission{
		ID:      "s1",
		FormKey: "contact",
		Fields:  map[string]string{"message": "best casino bonus"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.95, verdict.Score)
	assert.Equal(t, 0.9, verdict.Confidence)
	assert.Equal(t, "casino advert", verdict.Explanation)
	assert.Equal(t, "gpt-4o-mini", verdict.Model)
}

func TestOpenAIClient_Errors(t *testing.T) {
	client := newTestClient(t, completionServer(t, "", http.StatusTooManyRequests))
	_, err := client.ScoreSubmission(context.Background(), &core.Submission{Fields: map[string]string{"message": "hi"}})
	assert.Error(t, err)

	client = newTestClient(t, completionServer(t, "I cannot help with that", http.StatusOK))
	_, err = client.ScoreSubmission(context.Background(), &core.Submission{Fields: map[string]string{"message": "hi"}})
	assert.Error(t, err)
}
