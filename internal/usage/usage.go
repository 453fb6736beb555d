// Package usage emits one structured usage event per request. The core does
// not persist these events; persistence belongs to an external collaborator
// consuming the structured log stream.
package usage

import "time"

// Record is the usage event emitted once per request, success or failure.
type Record struct {
	// ID is a unique identifier for this record (UUID)
	ID string `json:"id"`

	// CorrelationID links the record to the request's trace
	CorrelationID string `json:"correlation_id"`

	// UserID is the opaque caller identity from X-User-ID
	UserID string `json:"user_id"`

	Model    string `json:"model"`
	Endpoint string `json:"endpoint"`

	// Token counts; zero when unknown (e.g. a stream that never carried usage)
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	// Chunks is the number of stream chunks forwarded (0 for buffered calls)
	Chunks int `json:"chunks,omitempty"`

	Latency time.Duration `json:"latency"`
	Success bool          `json:"success"`

	// ErrorType carries the taxonomy kind when Success is false
	ErrorType string `json:"error_type,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Recorder accepts usage records without ever blocking the response path.
type Recorder interface {
	Record(rec *Record)
	Close() error
}

// NopRecorder is used when usage tracking is disabled.
type NopRecorder struct{}

// Record does nothing
func (NopRecorder) Record(_ *Record) {}

// Close does nothing
func (NopRecorder) Close() error { return nil }
