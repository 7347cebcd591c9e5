// internal/frameloop/tickclock.go

package frameloop

import (
	"sync/atomic"
	"time"
)

// TickClock emits frame ticks and counts them atomically.
type TickClock struct {
	Ch    chan time.Time
	count atomic.Int64
	stop  chan struct{}
	done  chan struct{}
}

// NewTickClock creates a clock but does not start it.
func NewTickClock(buffer int) *TickClock {
	return &TickClock{
		Ch:   make(chan time.Time, buffer),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins emitting ticks at the given interval. A slow consumer drops
// frames instead of blocking the clock.
func (c *TickClock) Start(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer close(c.done)
		defer ticker.Stop()
		for {
			select {
			case now := <-ticker.C:
				c.count.Add(1)
				select {
				case c.Ch <- now:
				default:
				}
			case <-c.stop:
				close(c.Ch)
				return
			}
		}
	}()
}

// Stop signals the clock to stop emitting ticks and waits for it.
func (c *TickClock) Stop() {
	close(c.stop)
	<-c.done
}

// Count returns the current tick count atomically.
func (c *TickClock) Count() int64 {
	return c.count.Load()
}
