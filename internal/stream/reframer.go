// Package stream re-emits an upstream SSE byte stream to the caller while
// extracting usage bookkeeping in passing. Forwarding is pull-based: the
// loop decides when to read the next line, so cancellation and backpressure
// are ordinary control flow.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"modelgate/internal/core"
)

const dataPrefix = "data: "

// doneSentinel is the payload that terminates an OpenAI-compatible stream.
const doneSentinel = "[DONE]"

// Reframer forwards upstream-framed SSE events to a writer chunk-by-chunk.
// It never buffers more than the current line and never rewrites a payload;
// the only bytes it produces itself are the sentinel's event terminator.
type Reframer struct {
	w      io.Writer
	logger *slog.Logger

	usage   core.Usage
	chunks  int
	started bool
	aborted bool
}

// New creates a reframer writing to w. If w implements http.Flusher each
// forwarded line is flushed immediately to preserve low-latency delivery.
func New(w io.Writer, logger *slog.Logger) *Reframer {
	return &Reframer{w: w, logger: logger}
}

// Started reports whether any byte has been forwarded to the caller. Once
// true, a structured error response can no longer be emitted for this
// request; a later failure must be logged and the stream closed instead.
func (r *Reframer) Started() bool { return r.started }

// Usage returns the last cumulative usage total observed in the stream.
// Zero when no chunk ever carried usage, which is legal in the streaming
// variant of the protocol.
func (r *Reframer) Usage() core.Usage { return r.usage }

// Chunks returns the number of parseable data chunks forwarded.
func (r *Reframer) Chunks() int { return r.chunks }

// Aborted reports whether the stream ended without delivering completely:
// an upstream failure after the response had started, or a downstream write
// failure. Neither can become a structured error body, but neither is a
// success either.
func (r *Reframer) Aborted() bool { return r.aborted }

// Run consumes upstream until the [DONE] sentinel, end of stream, a read or
// write failure, or context cancellation. The error result is nil on clean
// termination. When Started() is true the caller must not attempt to write
// an error body; the response has already begun.
func (r *Reframer) Run(ctx context.Context, upstream io.Reader) error {
	br := bufio.NewReader(upstream)

	for {
		line, readErr := br.ReadString('\n')

		if len(line) > 0 {
			done, err := r.forward(line)
			if err != nil {
				// Downstream is gone; nothing left to deliver, but the
				// request did not complete either.
				r.aborted = true
				r.logger.Debug("stream write failed, client likely disconnected", "error", err)
				return nil
			}
			if done {
				return nil
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// Upstream closed without a sentinel; everything read so
				// far has been forwarded, so this is a clean end.
				return nil
			}
			if ctx.Err() != nil {
				return r.abort(context.Cause(ctx))
			}
			return r.abort(readErr)
		}
	}
}

// forward writes one line to the caller unchanged and performs bookkeeping
// for data lines. Returns done=true after the sentinel has been emitted.
func (r *Reframer) forward(line string) (done bool, err error) {
	if _, err := io.WriteString(r.w, line); err != nil {
		return false, err
	}
	r.started = true

	payload, isData := strings.CutPrefix(line, dataPrefix)
	if isData {
		payload = strings.TrimRight(payload, "\r\n")
		if payload == doneSentinel {
			// Terminate the sentinel event ourselves and stop; any bytes
			// the upstream sends afterwards are not our concern.
			if _, err := io.WriteString(r.w, "\n"); err != nil {
				return false, err
			}
			r.flush()
			return true, nil
		}
		r.record(payload)
	}

	r.flush()
	return false, nil
}

// record parses a data payload best-effort. A malformed chunk has already
// been forwarded by the time we get here; only its bookkeeping is skipped.
func (r *Reframer) record(payload string) {
	var chunk struct {
		Usage *core.Usage `json:"usage"`
	}
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return
	}
	r.chunks++
	if chunk.Usage != nil && chunk.Usage.TotalTokens > 0 {
		// Provider convention: usage, when present, is the cumulative
		// total for the stream, not a per-chunk delta.
		r.usage = *chunk.Usage
	}
}

func (r *Reframer) flush() {
	if f, ok := r.w.(http.Flusher); ok {
		f.Flush()
	}
}

// abort handles a mid-stream upstream failure. Before the first forwarded
// byte the error is returned for normal mapping; after it, the failure can
// only be logged and the connection torn down.
func (r *Reframer) abort(cause error) error {
	if !r.started {
		var gwErr *core.GatewayError
		if errors.As(cause, &gwErr) {
			// A cancellation cause that is already mapped passes through,
			// e.g. the idle watchdog's timeout.
			return gwErr
		}
		if errors.Is(cause, context.DeadlineExceeded) {
			return core.NewAPIError(http.StatusGatewayTimeout, core.CodeUpstreamTimeout,
				"upstream stream timed out", cause)
		}
		if errors.Is(cause, context.Canceled) {
			return cause
		}
		return core.NewAPIError(http.StatusBadGateway, core.CodeUpstreamNetwork,
			"upstream stream failed: "+cause.Error(), cause)
	}
	r.aborted = true
	r.logger.Error("stream aborted after response started",
		"error", cause,
		"chunks_forwarded", r.chunks,
	)
	return nil
}
