package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThrottleGrantsOncePerInterval(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	th := newThrottleAt(100*time.Millisecond, clk.now)

	assert.False(t, th.TryAcquire(), "window starts at construction")

	clk.advance(50 * time.Millisecond)
	assert.False(t, th.TryAcquire())
	assert.False(t, th.TryAcquire(), "refusals must not consume budget")

	clk.advance(50 * time.Millisecond)
	assert.True(t, th.TryAcquire())
	assert.False(t, th.TryAcquire())

	clk.advance(100 * time.Millisecond)
	assert.True(t, th.TryAcquire())
}

func TestThrottleDoesNotAccumulate(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	th := newThrottleAt(10*time.Millisecond, clk.now)

	clk.advance(time.Second)
	assert.True(t, th.TryAcquire())
	assert.False(t, th.TryAcquire(), "a long idle period yields a single grant")
}

func TestThrottleNonPositiveIntervalIsUnlimited(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 5; i++ {
		assert.True(t, th.TryAcquire())
	}
}

func TestThrottleSetInterval(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	th := newThrottleAt(time.Second, clk.now)

	th.SetInterval(10 * time.Millisecond)
	assert.Equal(t, 10*time.Millisecond, th.Interval())

	clk.advance(10 * time.Millisecond)
	assert.True(t, th.TryAcquire())
}
