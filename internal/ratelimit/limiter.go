// Package ratelimit implements a per-caller fixed-window request limiter.
// The counter is the only mutable state shared across requests; it is
// updated with a compare-and-swap discipline so concurrent requests never
// lose updates.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed bool
	// RetryAfter is the whole seconds until the current window resets,
	// carried into the Retry-After header on rejection.
	RetryAfter int
}

// Limiter counts requests per caller key in fixed windows aligned on the
// epoch. An idle key's state is pruned after two windows.
type Limiter struct {
	limit  int64
	window time.Duration
	keys   sync.Map // string -> *counter

	now func() time.Time // overridable in tests

	stop     chan struct{}
	stopOnce sync.Once
}

// counter packs the window index in the upper 32 bits and the request count
// in the lower 32, so one CAS covers both the reset and the increment.
type counter struct {
	state atomic.Int64
}

// New creates a limiter allowing limit requests per window per key and
// starts a background pruner for idle keys.
func New(limit int, window time.Duration) *Limiter {
	l := &Limiter{
		limit:  int64(limit),
		window: window,
		now:    time.Now,
		stop:   make(chan struct{}),
	}
	go l.pruneLoop()
	return l
}

// Allow checks and counts one request for key.
func (l *Limiter) Allow(key string) Result {
	now := l.now()
	winIdx := l.windowIndex(now)

	v, _ := l.keys.LoadOrStore(key, &counter{})
	c := v.(*counter)

	for {
		old := c.state.Load()
		oldWin := old >> 32
		oldCount := old & countMask

		if oldWin == winIdx && oldCount >= l.limit {
			elapsed := now.UnixNano() % int64(l.window)
			retry := int(time.Duration(int64(l.window)-elapsed).Seconds()) + 1
			return Result{Allowed: false, RetryAfter: retry}
		}

		var newCount int64 = 1
		if oldWin == winIdx {
			newCount = oldCount + 1
		}
		if c.state.CompareAndSwap(old, winIdx<<32|newCount) {
			return Result{Allowed: true}
		}
	}
}

// Close stops the background pruner.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// windowIndex is the epoch-aligned window number, masked to 31 bits so it
// packs next to the count without overflow.
func (l *Limiter) windowIndex(t time.Time) int64 {
	return (t.UnixNano() / int64(l.window)) & windowMask
}

// prune drops keys whose last counted window is stale.
func (l *Limiter) prune() {
	current := l.windowIndex(l.now())
	l.keys.Range(func(key, value interface{}) bool {
		c := value.(*counter)
		if c.state.Load()>>32 < current-1 {
			l.keys.Delete(key)
		}
		return true
	})
}

func (l *Limiter) pruneLoop() {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.prune()
		case <-l.stop:
			return
		}
	}
}

const (
	countMask  = (1 << 32) - 1
	windowMask = (1 << 31) - 1
)
