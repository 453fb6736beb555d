package usage

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureHandler collects emitted records for assertions.
type captureHandler struct {
	mu      sync.Mutex
	entries []map[string]any
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, rec slog.Record) error {
	attrs := map[string]any{"msg": rec.Message}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	h.entries = append(h.entries, attrs)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) snapshot() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]map[string]any, len(h.entries))
	copy(out, h.entries)
	return out
}

func testRecord() *Record {
	return &Record{
		ID:            "rec-1",
		CorrelationID: "corr-1",
		UserID:        "user-1",
		Model:         "chat-1",
		Endpoint:      "chat_completions",
		InputTokens:   10,
		OutputTokens:  5,
		TotalTokens:   15,
		Latency:       120 * time.Millisecond,
		Success:       true,
		Timestamp:     time.Now(),
	}
}

func TestRecordEmitsStructuredEvent(t *testing.T) {
	h := &captureHandler{}
	r := NewAsyncRecorder(slog.New(h), nil, 8)

	r.Record(testRecord())
	require.NoError(t, r.Close())

	entries := h.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "usage", entries[0]["msg"])
	assert.Equal(t, "corr-1", entries[0]["correlation_id"])
	assert.Equal(t, "user-1", entries[0]["user_id"])
	assert.EqualValues(t, 15, entries[0]["total_tokens"])
	assert.Equal(t, true, entries[0]["success"])
}

func TestCloseDrainsBufferedRecords(t *testing.T) {
	h := &captureHandler{}
	r := NewAsyncRecorder(slog.New(h), nil, 64)

	const n = 20
	for i := 0; i < n; i++ {
		r.Record(testRecord())
	}
	require.NoError(t, r.Close())

	usageCount := 0
	for _, e := range h.snapshot() {
		if e["msg"] == "usage" {
			usageCount++
		}
	}
	assert.Equal(t, n, usageCount)
}

func TestRecordNeverBlocksWhenFull(t *testing.T) {
	h := &captureHandler{}
	r := NewAsyncRecorder(slog.New(h), nil, 1)
	defer func() {
		_ = r.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			r.Record(testRecord())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}

func TestCloseIsIdempotentAndRecordAfterCloseIsSafe(t *testing.T) {
	h := &captureHandler{}
	r := NewAsyncRecorder(slog.New(h), nil, 8)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	r.Record(testRecord()) // must not panic or block
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	r.Record(testRecord())
	assert.NoError(t, r.Close())
}
