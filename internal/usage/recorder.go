package usage

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"modelgate/internal/observability"
)

// AsyncRecorder buffers records into a channel drained by one background
// goroutine, which emits each record as a structured log event and updates
// the token metrics. Record never blocks: when the buffer is full the record
// is dropped with a warning.
type AsyncRecorder struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	buffer  chan *Record
	done    chan struct{}
	wg      sync.WaitGroup
	writes  sync.WaitGroup // tracks in-flight Record calls
	closed  atomic.Bool
}

// NewAsyncRecorder starts the drain goroutine. metrics may be nil.
func NewAsyncRecorder(logger *slog.Logger, metrics *observability.Metrics, bufferSize int) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	r := &AsyncRecorder{
		logger:  logger,
		metrics: metrics,
		buffer:  make(chan *Record, bufferSize),
		done:    make(chan struct{}),
	}
	r.wg.Add(1)
	go r.drain()
	return r
}

// Record queues a usage record. Non-blocking; safe after Close.
func (r *AsyncRecorder) Record(rec *Record) {
	if rec == nil || r.closed.Load() {
		return
	}

	r.writes.Add(1)
	defer r.writes.Done()

	// Close may have won the race between the first check and Add.
	if r.closed.Load() {
		return
	}

	select {
	case r.buffer <- rec:
	default:
		r.logger.Warn("usage buffer full, dropping record",
			"correlation_id", rec.CorrelationID,
			"model", rec.Model,
		)
	}
}

// Close stops the recorder and drains buffered records. Idempotent.
func (r *AsyncRecorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.writes.Wait()
	close(r.done)
	r.wg.Wait()
	return nil
}

func (r *AsyncRecorder) drain() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.buffer:
			r.emit(rec)
		case <-r.done:
			close(r.buffer)
			for rec := range r.buffer {
				r.emit(rec)
			}
			return
		}
	}
}

func (r *AsyncRecorder) emit(rec *Record) {
	r.logger.Info("usage",
		"usage_id", rec.ID,
		"correlation_id", rec.CorrelationID,
		"user_id", rec.UserID,
		"model", rec.Model,
		"endpoint", rec.Endpoint,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
		"total_tokens", rec.TotalTokens,
		"chunks", rec.Chunks,
		"latency_ms", rec.Latency.Milliseconds(),
		"success", rec.Success,
		"error_type", rec.ErrorType,
		"timestamp", rec.Timestamp.Format(time.RFC3339Nano),
	)
	if r.metrics != nil {
		r.metrics.ObserveTokens(rec.Endpoint, rec.InputTokens, rec.OutputTokens)
	}
}
