package stream

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleReaderFiresWhenStalled(t *testing.T) {
	fired := make(chan struct{})
	pr, pw := io.Pipe()
	defer func() {
		_ = pw.Close()
	}()

	ir := NewIdleReader(pr, 50*time.Millisecond, func() { close(fired) })
	defer ir.Stop()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire on a stalled stream")
	}
}

// pacedReader yields one byte per read at a fixed interval.
type pacedReader struct {
	interval time.Duration
	left     int
}

func (r *pacedReader) Read(p []byte) (int, error) {
	if r.left == 0 {
		return 0, io.EOF
	}
	r.left--
	time.Sleep(r.interval)
	return copy(p, "x"), nil
}

func TestIdleReaderResetsOnActivity(t *testing.T) {
	var fired atomic.Bool
	// 10 reads of 25ms each: 250ms total, but never 250ms between reads
	ir := NewIdleReader(&pacedReader{interval: 25 * time.Millisecond, left: 10}, 250*time.Millisecond, func() {
		fired.Store(true)
	})
	defer ir.Stop()

	data, err := io.ReadAll(ir)
	require.NoError(t, err)
	assert.Len(t, data, 10)
	assert.False(t, fired.Load(), "watchdog fired despite steady activity")
}
