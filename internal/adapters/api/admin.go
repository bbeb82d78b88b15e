package api

import (
	"errors"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/ml"
	"go.uber.org/zap"
)

type reviewRequest struct {
	Approve  *bool  `json:"approve" binding:"required"`
	Reviewer string `json:"reviewer" binding:"required"`
}

type reputationRequest struct {
	Blacklisted *bool `json:"blacklisted" binding:"required"`
}

// adminError maps service errors onto HTTP statuses
func (s *Server) adminError(c *gin.Context, action string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyReviewed):
		status = http.StatusConflict
	case errors.Is(err, ml.ErrInsufficientTrainingData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrUnsupported):
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Admin request failed", zap.String("action", action), zap.Error(err))
		c.JSON(status, gin.H{"error": "Failed to " + action})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.admin.Stats())
}

func (s *Server) handleListQuarantine(c *gin.Context) {
	filter := core.QuarantineFilter{
		Status:  core.ReviewStatus(c.Query("status")),
		FormKey: c.Query("form_key"),
		Outcome: core.Outcome(c.Query("outcome")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	records, err := s.admin.ListQuarantine(c.Request.Context(), filter)
	if err != nil {
		s.adminError(c, "list quarantine", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}

func (s *Server) handleGetQuarantine(c *gin.Context) {
	record, err := s.admin.GetQuarantine(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.adminError(c, "get quarantine record", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleReview(c *gin.Context) {
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := s.admin.Review(c.Request.Context(), c.Param("id"), *req.Approve, req.Reviewer)
	if err != nil {
		s.adminError(c, "review quarantine record", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) handleModelInfo(c *gin.Context) {
	info, err := s.admin.ModelInfo()
	if err != nil {
		s.adminError(c, "read model info", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleRetrain(c *gin.Context) {
	info, err := s.admin.Retrain(c.Request.Context())
	if err != nil {
		s.adminError(c, "retrain model", err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ipParam returns the canonical form of the :ip path parameter
func ipParam(c *gin.Context) (string, bool) {
	addr, err := netip.ParseAddr(c.Param("ip"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid IP address"})
		return "", false
	}
	return addr.Unmap().String(), true
}

func (s *Server) handleGetReputation(c *gin.Context) {
	ip, ok := ipParam(c)
	if !ok {
		return
	}
	entry, err := s.admin.Reputation(c.Request.Context(), ip)
	if err != nil {
		s.adminError(c, "read reputation", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleSetReputation(c *gin.Context) {
	ip, ok := ipParam(c)
	if !ok {
		return
	}
	var req reputationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := s.admin.SetBlacklisted(c.Request.Context(), ip, *req.Blacklisted)
	if err != nil {
		s.adminError(c, "update reputation", err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (s *Server) handleResetReputation(c *gin.Context) {
	ip, ok := ipParam(c)
	if !ok {
		return
	}
	if err := s.admin.ResetReputation(c.Request.Context(), ip); err != nil {
		s.adminError(c, "reset reputation", err)
		return
	}
	c.Status(http.StatusNoContent)
}
