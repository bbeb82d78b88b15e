package api

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mikey/submission-guard/internal/core"
	"go.uber.org/zap"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,18}[0-9]$`)

// SubmitRequest is the JSON body of a form submission
type SubmitRequest struct {
	FormKey   string                    `json:"form_key" binding:"required"`
	AccessKey string                    `json:"access_key"`
	Name      string                    `json:"name" binding:"max=200"`
	Email     string                    `json:"email" binding:"required,email"`
	Phone     string                    `json:"phone"`
	Subject   string                    `json:"subject" binding:"max=500"`
	Message   string                    `json:"message" binding:"required"`
	Fields    map[string]string         `json:"fields"`
	Honeypot  map[string]string         `json:"honeypot"`
	Telemetry *core.BehavioralTelemetry `json:"telemetry"`
}

// SubmitResponse is returned for accepted and quarantined submissions alike
type SubmitResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submission_id"`
	Message      string `json:"message"`
}

// validate applies the checks the binding tags cannot express
func (r *SubmitRequest) validate(maxMessageLength int) error {
	if n := utf8.RuneCountInString(r.Message); n > maxMessageLength {
		return fmt.Errorf("message is %d characters, the maximum is %d", n, maxMessageLength)
	}
	if r.Phone != "" && !phonePattern.MatchString(strings.TrimSpace(r.Phone)) {
		return fmt.Errorf("phone number %q is not valid", r.Phone)
	}
	return nil
}

func (r *SubmitRequest) submission(c *gin.Context) *core.Submission {
	fields := make(map[string]string, len(r.Fields)+5)
	for k, v := range r.Fields {
		fields[k] = v
	}
	for k, v := range map[string]string{
		"name":    r.Name,
		"email":   r.Email,
		"phone":   r.Phone,
		"subject": r.Subject,
		"message": r.Message,
	} {
		if v != "" {
			fields[k] = v
		}
	}

	return &core.Submission{
		ID:             uuid.NewString(),
		FormKey:        r.FormKey,
		SourceIP:       c.ClientIP(),
		AccessKey:      r.AccessKey,
		Fields:         fields,
		HoneypotValues: r.Honeypot,
		Telemetry:      r.Telemetry,
		UserAgent:      c.Request.UserAgent(),
	}
}

func (s *Server) handleSubmit(c *gin.Context) {
	if s.cfg.MaxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes)
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission: " + err.Error()})
		return
	}
	if err := req.validate(s.cfg.MaxMessageLength); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid submission: " + err.Error()})
		return
	}

	sub := req.submission(c)
	sub.ReceivedAt = s.now()

	decision, err := s.engine.Evaluate(c.Request.Context(), sub)
	if err != nil {
		s.logger.Error("Failed to evaluate submission", zap.String("submission_id", sub.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process submission"})
		return
	}

	if decision.Outcome != core.OutcomeReject {
		c.JSON(http.StatusOK, SubmitResponse{
			Success:      true,
			SubmissionID: sub.ID,
			Message:      "Submission received",
		})
		return
	}

	if signal, ok := decision.Signal(core.DetectorRateLimit); ok && signal.HardRule {
		wait := signal.RetryAfter
		if wait <= 0 && s.retry != nil {
			wait = s.retry.RetryAfter(sub.ReceivedAt)
		}
		retryAfter := int(math.Ceil(wait.Seconds()))
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded",
			"retry_after": retryAfter,
		})
		return
	}

	c.JSON(http.StatusForbidden, gin.H{
		"error":       "Submission rejected",
		"decision_id": decision.ID,
	})
}
