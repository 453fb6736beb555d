// Package server provides the HTTP surface of the gateway.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"modelgate/internal/catalog"
	"modelgate/internal/core"
	"modelgate/internal/health"
	"modelgate/internal/observability"
	"modelgate/internal/stream"
	"modelgate/internal/usage"
	"modelgate/internal/validate"
)

// Upstream is the outbound side of the gateway as the handlers see it.
type Upstream interface {
	ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error)
	StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error)
	Embeddings(ctx context.Context, req *core.EmbeddingRequest) (*core.EmbeddingResponse, error)
}

// Prober reports dependency health on demand.
type Prober interface {
	Check(ctx context.Context) *health.Status
}

// Handler holds the HTTP handlers and their collaborators.
type Handler struct {
	upstream  Upstream
	validator *validate.Validator
	catalog   *catalog.Catalog
	recorder  usage.Recorder
	probe     Prober
	metrics   *observability.Metrics
	logger    *slog.Logger

	development       bool
	streamMaxDuration time.Duration
	streamIdleTimeout time.Duration
}

// HandlerConfig wires a Handler.
type HandlerConfig struct {
	Upstream          Upstream
	Validator         *validate.Validator
	Catalog           *catalog.Catalog
	Recorder          usage.Recorder
	Probe             Prober
	Metrics           *observability.Metrics
	Logger            *slog.Logger
	Development       bool
	StreamMaxDuration time.Duration
	StreamIdleTimeout time.Duration
}

// NewHandler creates the handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = usage.NopRecorder{}
	}
	return &Handler{
		upstream:          cfg.Upstream,
		validator:         cfg.Validator,
		catalog:           cfg.Catalog,
		recorder:          recorder,
		probe:             cfg.Probe,
		metrics:           cfg.Metrics,
		logger:            logger,
		development:       cfg.Development,
		streamMaxDuration: cfg.StreamMaxDuration,
		streamIdleTimeout: cfg.StreamIdleTimeout,
	}
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	start := time.Now()

	var req core.ChatRequest
	if err := c.Bind(&req); err != nil {
		gwErr := core.NewInvalidRequestError("", "invalid request body: "+err.Error(), err)
		h.recordFailure(c, "chat", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	if violations := h.validator.ChatRequest(&req); len(violations) > 0 {
		gwErr := core.NewValidationError(violations)
		h.recordFailure(c, "chat", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	if req.Stream {
		return h.streamChat(c, &req, start)
	}

	resp, err := h.upstream.ChatCompletion(c.Request().Context(), &req)
	if err != nil {
		gwErr := asGatewayError(err)
		h.recordFailure(c, "chat", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	h.record(c, "chat", req.Model, start, resp.Usage, 0, true, "")
	return c.JSON(http.StatusOK, resp)
}

// streamChat proxies the upstream SSE stream through the reframer. The
// stream's total duration and its time between forwarded reads are bounded
// independently of the buffered timeout.
func (h *Handler) streamChat(c echo.Context, req *core.ChatRequest, start time.Time) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.streamMaxDuration)
	defer cancel()
	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	body, err := h.upstream.StreamChatCompletion(ctx, req)
	if err != nil {
		gwErr := asGatewayError(err)
		h.recordFailure(c, "chat", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}
	defer func() {
		_ = body.Close()
	}()

	// Headers are set but not committed: until the first forwarded byte the
	// response can still become a structured error.
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")

	// The idle watchdog cancels the stream context when the upstream stalls;
	// cancellation aborts the blocked body read.
	var upstream io.Reader = body
	if h.streamIdleTimeout > 0 {
		watchdog := stream.NewIdleReader(body, h.streamIdleTimeout, func() {
			cancelCause(core.NewAPIError(http.StatusGatewayTimeout, core.CodeUpstreamTimeout,
				"upstream stream produced no data within the idle timeout", context.DeadlineExceeded))
		})
		defer watchdog.Stop()
		upstream = watchdog
	}

	reframer := stream.New(res, h.logger.With(
		"correlation_id", core.GetCorrelationID(ctx),
		"model", req.Model,
	))

	runErr := reframer.Run(ctx, upstream)
	if runErr != nil {
		// Run only returns an error before the first forwarded byte.
		if errors.Is(runErr, context.Canceled) {
			// Caller went away before the stream started; there is no one
			// left to respond to.
			h.record(c, "chat", req.Model, start, core.Usage{}, 0, false, string(core.ErrorTypeAPI))
			return nil
		}
		// Nothing was forwarded, so the SSE headers can come back off and
		// the response become an ordinary JSON error.
		res.Header().Del(echo.HeaderContentType)
		res.Header().Del("Cache-Control")
		res.Header().Del("Connection")
		gwErr := asGatewayError(runErr)
		h.recordFailure(c, "chat", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	errType := ""
	if reframer.Aborted() {
		errType = string(core.ErrorTypeAPI)
	}
	h.record(c, "chat", req.Model, start, reframer.Usage(), reframer.Chunks(), errType == "", errType)
	return nil
}

// Embeddings handles POST /v1/embeddings
func (h *Handler) Embeddings(c echo.Context) error {
	start := time.Now()

	var req core.EmbeddingRequest
	if err := c.Bind(&req); err != nil {
		gwErr := core.NewInvalidRequestError("", "invalid request body: "+err.Error(), err)
		h.recordFailure(c, "embeddings", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	if violations := h.validator.EmbeddingRequest(&req); len(violations) > 0 {
		gwErr := core.NewValidationError(violations)
		h.recordFailure(c, "embeddings", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	resp, err := h.upstream.Embeddings(c.Request().Context(), &req)
	if err != nil {
		gwErr := asGatewayError(err)
		h.recordFailure(c, "embeddings", req.Model, start, gwErr)
		return h.respondError(c, gwErr)
	}

	h.record(c, "embeddings", req.Model, start, resp.Usage, 0, true, "")
	return c.JSON(http.StatusOK, resp)
}

// ListModels handles GET /v1/models, serving the static startup catalog.
func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, h.catalog.List())
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	status := h.probe.Check(c.Request().Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// record emits the request's single usage event; fire-and-forget.
func (h *Handler) record(c echo.Context, endpoint, model string, start time.Time, u core.Usage, chunks int, success bool, errType string) {
	ctx := c.Request().Context()
	h.recorder.Record(&usage.Record{
		ID:            uuid.NewString(),
		CorrelationID: core.GetCorrelationID(ctx),
		UserID:        core.GetUserID(ctx),
		Model:         model,
		Endpoint:      endpoint,
		InputTokens:   u.PromptTokens,
		OutputTokens:  u.CompletionTokens,
		TotalTokens:   u.TotalTokens,
		Chunks:        chunks,
		Latency:       time.Since(start),
		Success:       success,
		ErrorType:     errType,
		Timestamp:     time.Now().UTC(),
	})
}

func (h *Handler) recordFailure(c echo.Context, endpoint, model string, start time.Time, gwErr *core.GatewayError) {
	h.record(c, endpoint, model, start, core.Usage{}, 0, false, string(gwErr.Type))
}

// respondError reduces any failure to the uniform envelope, attaches the
// correlation id, applies production sanitization and logs the outcome.
func (h *Handler) respondError(c echo.Context, err error) error {
	gwErr := asGatewayError(err)
	gwErr.CorrelationID = core.GetCorrelationID(c.Request().Context())

	out := gwErr.Sanitized(h.development)
	if out.RetryAfter > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(out.RetryAfter))
	}

	h.logger.Error("request failed",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"status", out.HTTPStatusCode(),
		"type", out.Type,
		"code", out.Code,
		"user_id", core.GetUserID(c.Request().Context()),
		"correlation_id", out.CorrelationID,
	)

	return c.JSON(out.HTTPStatusCode(), out.ToJSON())
}

// asGatewayError maps any error into the taxonomy; unexpected internal
// faults become api_error without losing the cause.
func asGatewayError(err error) *core.GatewayError {
	var gwErr *core.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &core.GatewayError{
		Type:       core.ErrorTypeAPI,
		Code:       "internal_error",
		Message:    "an unexpected error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
