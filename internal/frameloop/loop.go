// Package frameloop is the host side of the scheduler: it turns wall-clock
// frames into Tick calls, in the order Update, FixedUpdate (zero or more
// times, fixed-step accumulator), LateUpdate.
package frameloop

import (
	"context"
	"time"

	"ticksched/internal/logx"
	"ticksched/internal/sched"
)

// maxFixedPerFrame caps catch-up FixedUpdate ticks after a long stall.
const maxFixedPerFrame = 5

// Ticker is the scheduler surface the loop drives.
type Ticker interface {
	Tick(clock sched.Clock)
}

// Loop drives a Ticker. Run must be called from the scheduler's owner goroutine.
type Loop struct {
	target    Ticker
	frame     time.Duration
	fixedStep time.Duration
	maxFrames int64
	log       logx.Logger

	frames int64
	acc    time.Duration
	last   time.Time
}

func New(target Ticker, cfg sched.Config, log logx.Logger) *Loop {
	return &Loop{
		target:    target,
		frame:     cfg.Frame(),
		fixedStep: cfg.FixedStep(),
		log:       log.With(logx.String("comp", "frameloop")),
	}
}

// SetMaxFrames stops Run after n frames; 0 means run until cancelled.
func (l *Loop) SetMaxFrames(n int64) { l.maxFrames = n }

// SetFixedStep changes the FixedUpdate period. Owner goroutine only.
func (l *Loop) SetFixedStep(d time.Duration) {
	if d > 0 {
		l.fixedStep = d
	}
}

// Frames returns the number of frames run so far.
func (l *Loop) Frames() int64 { return l.frames }

// Frame runs one frame at time now.
func (l *Loop) Frame(now time.Time) {
	if l.last.IsZero() {
		l.last = now
	}
	l.acc += now.Sub(l.last)
	l.last = now

	l.target.Tick(sched.Update)
	for n := 0; l.acc >= l.fixedStep; n++ {
		if n == maxFixedPerFrame {
			l.log.Debug("fixed step backlog dropped", logx.Duration("backlog", l.acc))
			l.acc = 0
			break
		}
		l.target.Tick(sched.FixedUpdate)
		l.acc -= l.fixedStep
	}
	l.target.Tick(sched.LateUpdate)
	l.frames++
}

// Run drives frames from a TickClock until ctx is done or the frame limit is hit.
func (l *Loop) Run(ctx context.Context) error {
	clock := NewTickClock(1)
	clock.Start(l.frame)
	defer clock.Stop()

	l.log.Info("frame loop started",
		logx.Duration("frame", l.frame),
		logx.Duration("fixed_step", l.fixedStep),
		logx.Int64("max_frames", l.maxFrames),
	)
	for {
		select {
		case <-ctx.Done():
			l.log.Info("frame loop stopped",
				logx.Int64("frames", l.frames),
				logx.Int64("clock_ticks", clock.Count()),
			)
			return ctx.Err()
		case now, ok := <-clock.Ch:
			if !ok {
				return nil
			}
			l.Frame(now)
			if l.maxFrames > 0 && l.frames >= l.maxFrames {
				l.log.Info("frame limit reached",
					logx.Int64("frames", l.frames),
					logx.Int64("clock_ticks", clock.Count()),
				)
				return nil
			}
		}
	}
}
