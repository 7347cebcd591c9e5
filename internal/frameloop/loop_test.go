package frameloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticksched/internal/logx"
	"ticksched/internal/sched"
)

type recorder struct {
	clocks []sched.Clock
}

func (r *recorder) Tick(c sched.Clock) { r.clocks = append(r.clocks, c) }

func testConfig() sched.Config {
	cfg := sched.DefaultConfig()
	cfg.FrameMS = 1
	cfg.FixedStepMS = 20
	return cfg
}

func TestFrameOrderAndFixedAccumulator(t *testing.T) {
	rec := &recorder{}
	l := New(rec, testConfig(), logx.Nop())
	start := time.Unix(0, 0)

	l.Frame(start)
	assert.Equal(t, []sched.Clock{sched.Update, sched.LateUpdate}, rec.clocks)

	rec.clocks = nil
	l.Frame(start.Add(45 * time.Millisecond))
	assert.Equal(t, []sched.Clock{
		sched.Update, sched.FixedUpdate, sched.FixedUpdate, sched.LateUpdate,
	}, rec.clocks)

	rec.clocks = nil
	l.Frame(start.Add(60 * time.Millisecond))
	assert.Equal(t, []sched.Clock{sched.Update, sched.FixedUpdate, sched.LateUpdate}, rec.clocks)
	assert.EqualValues(t, 3, l.Frames())
}

func TestFrameCapsFixedBacklog(t *testing.T) {
	rec := &recorder{}
	l := New(rec, testConfig(), logx.Nop())
	start := time.Unix(0, 0)
	l.Frame(start)

	rec.clocks = nil
	l.Frame(start.Add(10 * time.Second))
	fixed := 0
	for _, c := range rec.clocks {
		if c == sched.FixedUpdate {
			fixed++
		}
	}
	assert.Equal(t, maxFixedPerFrame, fixed)
}

func TestRunStopsAtFrameLimit(t *testing.T) {
	s := sched.New(testConfig(), logx.Nop())
	ran := 0
	_, err := s.Run(sched.TaskFunc(func() (sched.Yield, error) {
		ran++
		return sched.Suspend(), nil
	}), sched.WithOptions(sched.OptRun), sched.WithClock(sched.LateUpdate))
	require.NoError(t, err)

	l := New(s, testConfig(), logx.Nop())
	l.SetMaxFrames(3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, l.Run(ctx))
	assert.EqualValues(t, 3, l.Frames())
	assert.Equal(t, 3, ran)
	assert.EqualValues(t, 3, s.Ticks(sched.LateUpdate))
}

func TestTickClockCountsAndCloses(t *testing.T) {
	c := NewTickClock(1)
	c.Start(time.Millisecond)

	deadline := time.Now().Add(5 * time.Second)
	for c.Count() < 3 {
		require.True(t, time.Now().Before(deadline), "clock never ticked")
		time.Sleep(time.Millisecond)
	}
	c.Stop()

	n := c.Count()
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, n, c.Count(), "a stopped clock does not tick")
	for range c.Ch {
	}
}
