package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"modelgate/internal/core"
	"modelgate/internal/ratelimit"
)

// Inbound/outbound trace headers.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUserID        = "X-User-ID"
)

// RequestContext threads the caller identity and correlation id through the
// request's context and echoes the correlation id back on every response.
// A missing correlation id is generated at entry; a missing user id becomes
// the anonymous marker.
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			correlationID := c.Request().Header.Get(HeaderCorrelationID)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			userID := c.Request().Header.Get(HeaderUserID)
			if userID == "" {
				userID = core.AnonymousUser
			}

			ctx := core.WithCorrelationID(c.Request().Context(), correlationID)
			ctx = core.WithUserID(ctx, userID)
			c.SetRequest(c.Request().WithContext(ctx))

			c.Response().Header().Set(HeaderCorrelationID, correlationID)

			return next(c)
		}
	}
}

// AccessLog emits one structured entry per request and feeds the request
// metrics. Secrets never appear here; only identity and trace fields do.
func (h *Handler) AccessLog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			latency := time.Since(start)

			ctx := c.Request().Context()
			status := c.Response().Status
			h.logger.Info("request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", status,
				"user_id", core.GetUserID(ctx),
				"correlation_id", core.GetCorrelationID(ctx),
				"latency_ms", latency.Milliseconds(),
			)
			if h.metrics != nil {
				h.metrics.ObserveRequest(c.Request().URL.Path, statusLabel(status), latency.Seconds())
			}
			return err
		}
	}
}

// RateLimit rejects callers over their fixed-window budget. It runs before
// validation: the cheapest check happens first. Rejections carry a
// Retry-After hint and still produce a usage emission.
func (h *Handler) RateLimit(limiter *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := core.GetUserID(c.Request().Context())
			if key == core.AnonymousUser {
				key = c.RealIP()
			}

			res := limiter.Allow(key)
			if res.Allowed {
				return next(c)
			}

			if h.metrics != nil {
				h.metrics.ObserveRateLimited()
			}
			gwErr := core.NewRateLimitError(res.RetryAfter)
			h.recordFailure(c, endpointKind(c.Request().URL.Path), "", time.Now(), gwErr)
			return h.respondError(c, gwErr)
		}
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// endpointKind reduces a path to the usage endpoint label.
func endpointKind(path string) string {
	if path == "/v1/embeddings" {
		return "embeddings"
	}
	return "chat"
}
