package stream

import (
	"io"
	"time"
)

// IdleReader wraps an upstream stream with an inactivity watchdog: onIdle
// fires when no read completes within the idle interval. The timer starts at
// construction and resets after every read. onIdle typically cancels the
// stream context, which aborts the blocked upstream read.
type IdleReader struct {
	r     io.Reader
	idle  time.Duration
	timer *time.Timer
}

// NewIdleReader arms the watchdog and returns the wrapped reader.
func NewIdleReader(r io.Reader, idle time.Duration, onIdle func()) *IdleReader {
	return &IdleReader{
		r:     r,
		idle:  idle,
		timer: time.AfterFunc(idle, onIdle),
	}
}

// Read implements io.Reader, rearming the watchdog on every completed read.
func (ir *IdleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	ir.timer.Reset(ir.idle)
	return n, err
}

// Stop disarms the watchdog.
func (ir *IdleReader) Stop() {
	ir.timer.Stop()
}
