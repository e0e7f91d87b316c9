package llm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock for the limiter.
type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(rpm int) (*rateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	rl := newRateLimiter(rpm)
	rl.now = clock.Now
	rl.lastRefill = clock.Now()
	return rl, clock
}

func TestRateLimiter(t *testing.T) {
	t.Run("burst up to capacity", func(t *testing.T) {
		rl, _ := newTestLimiter(5)

		for i := 0; i < 5; i++ {
			assert.True(t, rl.tryAcquire(), "attempt %d", i+1)
		}
		assert.False(t, rl.tryAcquire(), "expected tryAcquire to fail after tokens exhausted")
	})

	t.Run("refills with elapsed time", func(t *testing.T) {
		rl, clock := newTestLimiter(60)
		for i := 0; i < 60; i++ {
			require.True(t, rl.tryAcquire())
		}
		require.False(t, rl.tryAcquire())

		clock.Advance(500 * time.Millisecond)
		assert.False(t, rl.tryAcquire())

		clock.Advance(2500 * time.Millisecond)
		for i := 0; i < 3; i++ {
			assert.True(t, rl.tryAcquire(), "token %d after 3s", i+1)
		}
		assert.False(t, rl.tryAcquire())
	})

	t.Run("refill never exceeds capacity", func(t *testing.T) {
		rl, clock := newTestLimiter(2)
		clock.Advance(time.Hour)

		assert.True(t, rl.tryAcquire())
		assert.True(t, rl.tryAcquire())
		assert.False(t, rl.tryAcquire())
	})

	t.Run("default rate limit", func(t *testing.T) {
		rl, _ := newTestLimiter(0)
		for i := 0; i < 60; i++ {
			require.True(t, rl.tryAcquire())
		}
		assert.False(t, rl.tryAcquire())
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := newRateLimiter(1)
		require.NoError(t, rl.wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() {
			done <- rl.wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		require.ErrorIs(t, err, context.Canceled)
		assert.Contains(t, err.Error(), "rate limiter canceled")
	})

	t.Run("concurrent access", func(t *testing.T) {
		rl, _ := newTestLimiter(100)

		var acquired atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					if rl.tryAcquire() {
						acquired.Add(1)
					}
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(100), acquired.Load())
	})
}
