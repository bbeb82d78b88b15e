package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/submission-guard/internal/adapters/quarantine"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/detector"
	"github.com/mikey/submission-guard/internal/metrics"
	"github.com/mikey/submission-guard/internal/ports"
	"github.com/mikey/submission-guard/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminToken = "s3cret"

type stubEvaluator struct {
	outcome core.Outcome
	signals []core.SignalResult
	last    *core.Submission
}

func (e *stubEvaluator) Evaluate(_ context.Context, sub *core.Submission) (*core.RiskDecision, error) {
	e.last = sub
	return &core.RiskDecision{ID: "d-1", SubmissionID: sub.ID, Outcome: e.outcome, Signals: e.signals}, nil
}

type fixedRetry time.Duration

func (f fixedRetry) RetryAfter(time.Time) time.Duration { return time.Duration(f) }

var _ ports.Intake = (*Server)(nil)

func serverConfig() config.ServerConfig {
	return config.ServerConfig{
		ListenAddress:    "127.0.0.1:0",
		AdminToken:       adminToken,
		MaxMessageLength: 5000,
		MaxBodyBytes:     1 << 20,
		MetricsEnabled:   true,
		MetricsPath:      "/metrics",
	}
}

func newTestServer(t *testing.T, engine ports.Evaluator, admin *core.AdminService) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	s, err := NewServer(serverConfig(), engine, admin, fixedRetry(90*time.Second), registry, zap.NewNop())
	require.NoError(t, err)
	return s
}

func submitBody(message string) map[string]interface{} {
	return map[string]interface{}{
		"form_key": "contact",
		"name":     "Ada",
		"email":    "ada@example.com",
		"message":  message,
	}
}

func do(t *testing.T, s *Server, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestSubmit_MessageLengthBoundary(t *testing.T) {
	engine := &stubEvaluator{outcome: core.OutcomeAccept}
	s := newTestServer(t, engine, nil)

	w := do(t, s, http.MethodPost, "/v1/submissions", submitBody(strings.Repeat("é", 5000)), "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodPost, "/v1/submissions", submitBody(strings.Repeat("é", 5001)), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "5001 characters")
}

func TestSubmit_Validation(t *testing.T) {
	s := newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, nil)

	body := submitBody("hello")
	body["email"] = "not-an-email"
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)

	body = submitBody("hello")
	body["phone"] = "call me maybe"
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)

	body = submitBody("hello")
	body["phone"] = "+44 (20) 7946-0958"
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)

	body = submitBody("hello")
	delete(body, "form_key")
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)
}

func TestSubmit_BuildsSubmission(t *testing.T) {
	engine := &stubEvaluator{outcome: core.OutcomeAccept}
	s := newTestServer(t, engine, nil)

	body := submitBody("hello there")
	body["fields"] = map[string]string{"company": "Acme"}
	body["honeypot"] = map[string]string{"_hp": ""}
	body["telemetry"] = map[string]interface{}{"keystrokes": 42}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)

	sub := engine.last
	require.NotNil(t, sub)
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, "contact", sub.FormKey)
	assert.Equal(t, "Acme", sub.Field("company"))
	assert.Equal(t, "ada@example.com", sub.Field("email"))
	assert.Equal(t, "hello there", sub.Field("message"))
	assert.Contains(t, sub.HoneypotValues, "_hp")
	require.NotNil(t, sub.Telemetry)
	assert.Equal(t, 42, sub.Telemetry.Keystrokes)
	assert.False(t, sub.ReceivedAt.IsZero())
}

func TestSubmit_OutcomeResponses(t *testing.T) {
	accept := do(t, newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, nil),
		http.MethodPost, "/v1/submissions", submitBody("hi"), "")
	quarantined := do(t, newTestServer(t, &stubEvaluator{outcome: core.OutcomeQuarantine}, nil),
		http.MethodPost, "/v1/submissions", submitBody("hi"), "")

	assert.Equal(t, http.StatusOK, accept.Code)
	assert.Equal(t, accept.Code, quarantined.Code)

	var a, q SubmitResponse
	require.NoError(t, json.Unmarshal(accept.Body.Bytes(), &a))
	require.NoError(t, json.Unmarshal(quarantined.Body.Bytes(), &q))
	assert.Equal(t, a.Message, q.Message)
	assert.True(t, q.Success)

	rejected := do(t, newTestServer(t, &stubEvaluator{
		outcome: core.OutcomeReject,
		signals: []core.SignalResult{{Detector: core.DetectorHoneypot, Score: 1, HardRule: true, Available: true}},
	}, nil), http.MethodPost, "/v1/submissions", submitBody("hi"), "")
	assert.Equal(t, http.StatusForbidden, rejected.Code)
	assert.NotContains(t, rejected.Body.String(), "honeypot")

	limited := do(t, newTestServer(t, &stubEvaluator{
		outcome: core.OutcomeReject,
		signals: []core.SignalResult{{Detector: core.DetectorRateLimit, Score: 1, HardRule: true, Available: true}},
	}, nil), http.MethodPost, "/v1/submissions", submitBody("hi"), "")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "90", limited.Header().Get("Retry-After"))

	ruleWait := do(t, newTestServer(t, &stubEvaluator{
		outcome: core.OutcomeReject,
		signals: []core.SignalResult{{
			Detector: core.DetectorRateLimit, Score: 1, HardRule: true, Available: true,
			RetryAfter: 29500 * time.Millisecond,
		}},
	}, nil), http.MethodPost, "/v1/submissions", submitBody("hi"), "")
	assert.Equal(t, http.StatusTooManyRequests, ruleWait.Code)
	assert.Equal(t, "30", ruleWait.Header().Get("Retry-After"))
}

func TestSubmit_RateLimitedEndToEnd(t *testing.T) {
	logger := zap.NewNop()
	limiter, err := ratelimit.NewLimiter(ratelimit.NewMemoryStore(logger, 0), ratelimit.Config{
		Rules: []ratelimit.Rule{
			{Scope: ratelimit.ScopeIPForm, Limit: 2, Window: time.Hour},
			{Scope: ratelimit.ScopeIP, Limit: 100, Window: 24 * time.Hour},
		},
	}, logger)
	require.NoError(t, err)

	engine, err := core.NewDecisionEngine(core.DefaultEngineConfig(),
		[]core.Detector{detector.NewHoneypot(nil), detector.NewRateLimitGate(limiter)},
		nil, logger)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	s, err := NewServer(serverConfig(), engine, nil, limiter, nil, logger)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/v1/submissions", submitBody("hi"), "").Code)
	}
	w := do(t, s, http.MethodPost, "/v1/submissions", submitBody("hi"), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	wait, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, wait, 0)
	assert.LessOrEqual(t, wait, 3600, "wait comes from the per-form rule that denied")

	body := submitBody("hi")
	body["form_key"] = "other"
	body["honeypot"] = map[string]string{"_honeypot": "x"}
	assert.Equal(t, http.StatusForbidden, do(t, s, http.MethodPost, "/v1/submissions", body, "").Code)
}

func TestAdmin_Auth(t *testing.T) {
	admin := core.NewAdminService(quarantine.NewMemoryRepository(zap.NewNop()), nil, nil, nil, nil, zap.NewNop())
	s := newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, admin)

	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/admin/stats", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/v1/admin/stats", nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/v1/admin/stats", nil, adminToken).Code)
}

func TestAdmin_Quarantine(t *testing.T) {
	repo := quarantine.NewMemoryRepository(zap.NewNop())
	require.NoError(t, repo.Save(context.Background(), &core.QuarantineRecord{
		ID:           "q-1",
		Submission:   core.Submission{ID: "s-1", FormKey: "contact", Fields: map[string]string{"message": "buy now"}},
		Decision:     core.RiskDecision{ID: "d-1", Outcome: core.OutcomeQuarantine},
		ReviewStatus: core.ReviewPending,
		CreatedAt:    time.Now(),
	}))
	admin := core.NewAdminService(repo, nil, nil, nil, nil, zap.NewNop())
	s := newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, admin)

	w := do(t, s, http.MethodGet, "/v1/admin/quarantine?status=pending", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/admin/quarantine/missing", nil, adminToken).Code)

	review := map[string]interface{}{"approve": false, "reviewer": "ops"}
	w = do(t, s, http.MethodPost, "/v1/admin/quarantine/q-1/review", review, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"review_status":"denied"`)

	w = do(t, s, http.MethodPost, "/v1/admin/quarantine/q-1/review", review, adminToken)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, s, http.MethodPost, "/v1/admin/quarantine/q-1/review", map[string]interface{}{"reviewer": "ops"}, adminToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdmin_UnsupportedAndInvalid(t *testing.T) {
	admin := core.NewAdminService(quarantine.NewMemoryRepository(zap.NewNop()), nil, nil, nil, nil, zap.NewNop())
	s := newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, admin)

	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodPost, "/v1/admin/model/retrain", nil, adminToken).Code)
	assert.Equal(t, http.StatusNotImplemented, do(t, s, http.MethodGet, "/v1/admin/reputation/192.0.2.1", nil, adminToken).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/v1/admin/reputation/not-an-ip", nil, adminToken).Code)
}

func TestAdmin_DisabledWithoutToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := serverConfig()
	cfg.AdminToken = ""
	admin := core.NewAdminService(quarantine.NewMemoryRepository(zap.NewNop()), nil, nil, nil, nil, zap.NewNop())
	s, err := NewServer(cfg, &stubEvaluator{}, admin, nil, nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/v1/admin/stats", nil, "").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &stubEvaluator{outcome: core.OutcomeAccept}, nil)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil, "").Code)

	metrics.Observer{}.ObserveDecision(&core.RiskDecision{Outcome: core.OutcomeAccept})
	w := do(t, s, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "guard_decisions_total")
}
