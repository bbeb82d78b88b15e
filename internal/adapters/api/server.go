package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikey/submission-guard/internal/config"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/mikey/submission-guard/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RetryAdvisor tells rate limited clients how long to wait when the denying
// signal carries no wait of its own
type RetryAdvisor interface {
	RetryAfter(now time.Time) time.Duration
}

// Server is the HTTP intake and admin surface. It implements ports.Intake.
type Server struct {
	cfg      config.ServerConfig
	engine   ports.Evaluator
	admin    *core.AdminService
	retry    RetryAdvisor
	registry *prometheus.Registry
	logger   *zap.Logger
	router   *gin.Engine
	srv      *http.Server
	now      func() time.Time
}

// NewServer creates a new HTTP server. admin, retry and registry may be nil.
// Admin routes are only registered when an admin token is configured.
func NewServer(
	cfg config.ServerConfig,
	engine ports.Evaluator,
	admin *core.AdminService,
	retry RetryAdvisor,
	registry *prometheus.Registry,
	logger *zap.Logger,
) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, &core.ConfigError{Key: "server.trusted_proxies", Reason: err.Error()}
	}
	router.Use(gin.Recovery(), RequestLogger(logger))

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		admin:    admin,
		retry:    retry,
		registry: registry,
		logger:   logger,
		router:   router,
		now:      time.Now,
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.router.Group("/v1")
	v1.POST("/submissions", s.handleSubmit)

	if s.cfg.MetricsEnabled && s.registry != nil {
		s.router.GET(s.cfg.MetricsPath, gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	if s.admin == nil {
		return
	}
	if s.cfg.AdminToken == "" {
		s.logger.Warn("Admin token not configured, admin routes disabled")
		return
	}

	admin := v1.Group("/admin", AdminAuth(s.cfg.AdminToken))
	admin.GET("/stats", s.handleStats)
	admin.GET("/quarantine", s.handleListQuarantine)
	admin.GET("/quarantine/:id", s.handleGetQuarantine)
	admin.POST("/quarantine/:id/review", s.handleReview)
	admin.GET("/model", s.handleModelInfo)
	admin.POST("/model/retrain", s.handleRetrain)
	admin.GET("/reputation/:ip", s.handleGetReputation)
	admin.PUT("/reputation/:ip", s.handleSetReputation)
	admin.DELETE("/reputation/:ip", s.handleResetReputation)
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts listening and blocks until the server stops
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.ListenAddress,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("Starting submission intake", zap.String("address", s.cfg.ListenAddress))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("Submission intake stopped")
	return nil
}
