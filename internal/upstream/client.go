// Package upstream issues the outbound calls to the upstream provider.
// Each inbound request maps to exactly one upstream call; there is no retry
// layer, so a failure here is mapped and reported rather than masked.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"

	"modelgate/config"
	"modelgate/internal/core"
)

// Client is the HTTP client for the upstream provider
type Client struct {
	httpClient *http.Client
	cfg        config.UpstreamConfig
}

// New creates a client from the validated upstream configuration.
func New(cfg config.UpstreamConfig) *Client {
	return &Client{
		httpClient: newHTTPClient(cfg.ConnectTimeout),
		cfg:        cfg,
	}
}

// NewWithHTTPClient creates a client with a custom HTTP client (used in tests).
func NewWithHTTPClient(cfg config.UpstreamConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// BaseURL returns the configured upstream base URL.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// ChatCompletion sends a buffered chat completion request upstream.
func (c *Client) ChatCompletion(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var resp core.ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// StreamChatCompletion issues a streaming chat completion and returns the
// live response body. The client does not read or buffer the stream; the
// caller owns the body and the context bounding the stream's duration.
func (c *Client) StreamChatCompletion(ctx context.Context, req *core.ChatRequest) (io.ReadCloser, error) {
	return c.doStream(ctx, "/chat/completions", req.WithStreaming())
}

// Embeddings sends a buffered embeddings request upstream.
func (c *Client) Embeddings(ctx context.Context, req *core.EmbeddingRequest) (*core.EmbeddingResponse, error) {
	var resp core.EmbeddingResponse
	if err := c.do(ctx, http.MethodPost, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return &resp, nil
}

// ListModels retrieves the upstream model catalog. Used by the health probe
// as a lightweight liveness request; the caller supplies the probe timeout
// through ctx.
func (c *Client) ListModels(ctx context.Context) (*core.ModelsResponse, error) {
	var resp core.ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do executes one buffered call under the configured request timeout and
// decodes the response into result.
func (c *Client) do(ctx context.Context, method, endpoint string, body, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	httpReq, err := c.buildRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ClassifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ClassifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		return statusError(resp, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return core.NewAPIError(http.StatusBadGateway, core.CodeUpstreamBadPayload,
				"failed to decode upstream response: "+err.Error(), err)
		}
	}
	return nil
}

// doStream executes one streaming call. The connect phase is bounded by the
// transport; the returned body stays open until the caller closes it or the
// caller's context is cancelled.
func (c *Client) doStream(ctx context.Context, endpoint string, body interface{}) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, ClassifyTransportError(err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			respBody = nil
		}
		_ = resp.Body.Close()
		return nil, statusError(resp, respBody)
	}

	return resp.Body, nil
}

// buildRequest creates the outbound HTTP request, carrying the API key and
// the request's correlation id.
func (c *Client) buildRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, core.NewInvalidRequestError("", "failed to marshal request", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+endpoint, bodyReader)
	if err != nil {
		return nil, core.NewInvalidRequestError("", "failed to create request", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if id := core.GetCorrelationID(ctx); id != "" {
		httpReq.Header.Set("X-Correlation-ID", id)
	}

	return httpReq, nil
}

// statusError maps a non-2xx upstream response into the taxonomy, carrying
// the upstream's Retry-After hint through when it sent one.
func statusError(resp *http.Response, body []byte) *core.GatewayError {
	gwErr := core.FromUpstreamStatus(resp.StatusCode, body)
	if secs := retryAfterSeconds(resp.Header); secs > 0 {
		gwErr.RetryAfter = secs
	}
	return gwErr
}

// retryAfterSeconds parses an upstream Retry-After header. Only the
// delta-seconds form is honored; the HTTP-date form is ignored.
func retryAfterSeconds(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

// ClassifyTransportError reduces a transport failure to the taxonomy,
// distinguishing cause: connection refused (503), timeout (504), DNS failure
// (502), anything else (502).
func ClassifyTransportError(err error) *core.GatewayError {
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return core.NewAPIError(http.StatusServiceUnavailable, core.CodeUpstreamRefused,
			"upstream connection refused", err)
	case errors.Is(err, context.DeadlineExceeded), isTimeout(err):
		return core.NewAPIError(http.StatusGatewayTimeout, core.CodeUpstreamTimeout,
			"upstream request timed out", err)
	case errors.As(err, &dnsErr):
		return core.NewAPIError(http.StatusBadGateway, core.CodeUpstreamNotFound,
			"upstream host could not be resolved", err)
	default:
		return core.NewAPIError(http.StatusBadGateway, core.CodeUpstreamNetwork,
			"upstream request failed: "+err.Error(), err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
