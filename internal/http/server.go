// Package http provides the HTTP API for actiond.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/pipeline"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultSource = "http"
	maxBodySize   = "2M"
)

// Runner runs the extraction pipeline over one transcript.
type Runner interface {
	Run(ctx context.Context, transcript, source string) (*pipeline.Result, error)
}

// Server provides HTTP endpoints for actiond.
type Server struct {
	echo   *echo.Echo
	runner Runner
	logger *logging.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Gatherer backs /metrics. Defaults to the global Prometheus registry.
	Gatherer prometheus.Gatherer
}

// NewServer creates a new HTTP server.
func NewServer(runner Runner, logger *logging.Logger, cfg *Config) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9191,
		}
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		runner: runner,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ExtractRequest is the request body for POST /api/v1/extract.
type ExtractRequest struct {
	Source     string `json:"source"`
	Transcript string `json:"transcript"`
}

// ExtractResponse is the response body for POST /api/v1/extract: the
// output document plus run statistics.
type ExtractResponse struct {
	pipeline.Document
	RunID string         `json:"run_id"`
	Stats pipeline.Stats `json:"stats"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleExtract runs the pipeline over the posted transcript.
func (s *Server) handleExtract(c echo.Context) error {
	ctx := c.Request().Context()

	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid extract request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Transcript) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "transcript field is required")
	}
	if req.Source == "" {
		req.Source = defaultSource
	}

	res, err := s.runner.Run(ctx, req.Transcript, req.Source)
	if err != nil {
		if errors.Is(err, pipeline.ErrCollaboratorUnreachable) {
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		s.logger.Error(ctx, "extract failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "extraction failed")
	}

	return c.JSON(http.StatusOK, ExtractResponse{
		Document: res.Document(),
		RunID:    res.RunID,
		Stats:    res.Stats,
	})
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns http.ErrServerClosed after
// Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
