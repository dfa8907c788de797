// Package server provides the HTTP API for the knowledge base.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentstackio/agentstack/internal/auth"
	"github.com/agentstackio/agentstack/internal/config"
	"github.com/agentstackio/agentstack/internal/contribute"
	"github.com/agentstackio/agentstack/internal/knowledge"
	"github.com/agentstackio/agentstack/internal/reputation"
	"github.com/agentstackio/agentstack/internal/search"
	"github.com/agentstackio/agentstack/internal/store"
	"github.com/agentstackio/agentstack/internal/verify"
)

// agentContextKey is the echo context key holding the authenticated agent.
const agentContextKey = "agentstack.agent"

// Deps are the services the HTTP layer fronts.
type Deps struct {
	Store      store.Store
	Search     *search.Service
	Contribute *contribute.Service
	Verify     *verify.Service
	Auth       *auth.Service
	Reputation *reputation.Engine
}

// Server is the echo HTTP server.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	logger  *zap.Logger
	config  config.ServerConfig
	metrics *HTTPMetrics
}

// NewServer creates the HTTP server with routes and middleware registered.
func NewServer(deps Deps, cfg config.ServerConfig, logger *zap.Logger) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	metrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:    e,
		deps:    deps,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/search", s.handleSearch)
	v1.POST("/contribute", s.requireAgent(s.handleContribute))
	v1.POST("/verify", s.requireAgent(s.handleVerify))
	v1.GET("/bugs/:id", s.handleGetBug)
	v1.POST("/agents/register", s.handleRegisterAgent)
	v1.GET("/agents/:id/stats", s.handleAgentStats)
	v1.GET("/stats", s.handleStats)
}

// requireAgent authenticates the X-API-Key header and stores the agent on
// the request context.
func (s *Server) requireAgent(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.deps.Auth == nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication not configured")
		}

		agent, err := s.deps.Auth.Authenticate(c.Request().Context(), c.Request().Header.Get("X-API-Key"))
		if err != nil {
			return s.httpError(err)
		}

		c.Set(agentContextKey, agent)
		return next(c)
	}
}

func currentAgent(c echo.Context) *knowledge.Agent {
	agent, _ := c.Get(agentContextKey).(*knowledge.Agent)
	return agent
}

// httpError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, knowledge.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, knowledge.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, knowledge.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, knowledge.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "backend unavailable")
	default:
		s.logger.Error("internal error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
