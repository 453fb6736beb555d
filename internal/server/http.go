package server

import (
	"context"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelgate/internal/ratelimit"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server assembly options beyond the handler's own wiring.
type Config struct {
	BodySizeLimit   string             // max request body size (echo format, e.g. "1M")
	RateLimiter     *ratelimit.Limiter // required
	MetricsEnabled  bool
	MetricsEndpoint string
}

// New assembles the HTTP server. Middleware order matters: recovery first,
// then request context so every later stage sees identity and correlation
// id, then the access log, then the rate limit check ahead of validation.
func New(handler *Handler, cfg *Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(RequestContext())

	bodyLimit := "1M"
	if cfg != nil && cfg.BodySizeLimit != "" {
		bodyLimit = cfg.BodySizeLimit
	}
	e.Use(middleware.BodyLimit(bodyLimit))
	e.Use(handler.AccessLog())

	// Public routes
	e.GET("/health", handler.Health)
	if cfg != nil && cfg.MetricsEnabled {
		metricsPath := "/metrics"
		if cfg.MetricsEndpoint != "" {
			// Normalize to prevent path traversal
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// API routes; model interactions are rate limited before anything else
	e.GET("/v1/models", handler.ListModels)
	var limited []echo.MiddlewareFunc
	if cfg != nil && cfg.RateLimiter != nil {
		limited = append(limited, handler.RateLimit(cfg.RateLimiter))
	}
	e.POST("/v1/chat/completions", handler.ChatCompletion, limited...)
	e.POST("/v1/embeddings", handler.Embeddings, limited...)

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server: new connections stop
// being accepted and in-flight requests get until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
