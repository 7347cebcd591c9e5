package sched

import (
	"time"

	"golang.org/x/time/rate"
)

// Throttle answers "has at least Interval elapsed since I last said yes".
// The window starts at construction. A refusal has no side effects.
//
// Not safe for concurrent use; it lives on the owner goroutine.
type Throttle struct {
	lim      *rate.Limiter
	interval time.Duration
	now      func() time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	return newThrottleAt(interval, time.Now)
}

func newThrottleAt(interval time.Duration, now func() time.Time) *Throttle {
	t := &Throttle{now: now}
	t.lim = rate.NewLimiter(every(interval), 1)
	t.interval = interval
	// burn the initial token so the first grant comes one interval from now
	t.lim.AllowN(now(), 1)
	return t
}

// every maps a non-positive interval to an unlimited rate.
func every(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// TryAcquire reports true at most once per Interval.
func (t *Throttle) TryAcquire() bool {
	return t.lim.AllowN(t.now(), 1)
}

func (t *Throttle) Interval() time.Duration { return t.interval }

// SetInterval changes the interval; the current window keeps its start.
func (t *Throttle) SetInterval(interval time.Duration) {
	t.interval = interval
	t.lim.SetLimitAt(t.now(), every(interval))
}
