package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLimiter(limit int, window time.Duration) (*Limiter, *time.Time) {
	l := New(limit, window)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestAllowWithinLimit(t *testing.T) {
	l, _ := testLimiter(3, time.Minute)
	defer l.Close()

	for i := 0; i < 3; i++ {
		res := l.Allow("user-1")
		assert.True(t, res.Allowed, "request %d", i)
	}

	res := l.Allow("user-1")
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, 0)
	assert.LessOrEqual(t, res.RetryAfter, 61)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := testLimiter(1, time.Minute)
	defer l.Close()

	assert.True(t, l.Allow("user-1").Allowed)
	assert.False(t, l.Allow("user-1").Allowed)

	// A different caller has its own budget
	assert.True(t, l.Allow("user-2").Allowed)
}

func TestWindowReset(t *testing.T) {
	l, now := testLimiter(1, time.Minute)
	defer l.Close()

	require.True(t, l.Allow("user-1").Allowed)
	require.False(t, l.Allow("user-1").Allowed)

	*now = now.Add(time.Minute)
	assert.True(t, l.Allow("user-1").Allowed)
}

func TestRejectedRequestsDoNotConsumeBudget(t *testing.T) {
	l, now := testLimiter(2, time.Minute)
	defer l.Close()

	l.Allow("user-1")
	l.Allow("user-1")
	for i := 0; i < 10; i++ {
		require.False(t, l.Allow("user-1").Allowed)
	}

	// The next window grants the full budget again
	*now = now.Add(time.Minute)
	assert.True(t, l.Allow("user-1").Allowed)
	assert.True(t, l.Allow("user-1").Allowed)
	assert.False(t, l.Allow("user-1").Allowed)
}

func TestConcurrentCountingIsLossless(t *testing.T) {
	const limit = 100
	l, _ := testLimiter(limit, time.Minute)
	defer l.Close()

	var wg sync.WaitGroup
	var allowed atomic.Int64

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("shared").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// Exactly limit requests pass; none are lost or double-counted
	assert.EqualValues(t, limit, allowed.Load())
}

func TestPruneDropsIdleKeys(t *testing.T) {
	l, now := testLimiter(5, time.Minute)
	defer l.Close()

	l.Allow("idle")
	*now = now.Add(3 * time.Minute)
	l.prune()

	_, ok := l.keys.Load("idle")
	assert.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(1, time.Minute)
	l.Close()
	l.Close()
}
