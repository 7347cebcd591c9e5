package sched

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnOwnerFromOwnerIsSynchronous(t *testing.T) {
	s := newTestScheduler(t)
	ran := false
	require.True(t, s.IsOwner())
	require.NoError(t, s.RunOnOwner(context.Background(), func() error {
		ran = true
		return nil
	}, false))
	assert.True(t, ran)
	assert.Zero(t, s.Pending())
}

func TestRunOnOwnerFromForeignGoroutineWaits(t *testing.T) {
	s := newTestScheduler(t)
	ownerGID := goroutineID()

	var (
		sideEffect atomic.Bool
		ranOnOwner atomic.Bool
		returned   atomic.Bool
		callErr    error
		wg         sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		callErr = s.RunOnOwner(context.Background(), func() error {
			ranOnOwner.Store(s.IsOwner() && goroutineID() == ownerGID)
			sideEffect.Store(true)
			return nil
		}, true)
		// the side effect must be visible once the call returns
		returned.Store(sideEffect.Load())
	}()

	deadline := time.Now().Add(5 * time.Second)
	for s.Pending() == 0 {
		require.True(t, time.Now().Before(deadline), "action never queued")
		time.Sleep(time.Millisecond)
	}
	assert.False(t, sideEffect.Load(), "queued actions wait for the owner")

	s.Tick(Update)
	wg.Wait()

	require.NoError(t, callErr)
	assert.True(t, returned.Load())
	assert.True(t, ranOnOwner.Load())
}

func TestRunOnOwnerContainsActionFailures(t *testing.T) {
	s := newTestScheduler(t)

	errc := make(chan error, 2)
	go func() {
		errc <- s.RunOnOwner(context.Background(), func() error { panic("action blew up") }, true)
	}()
	go func() {
		errc <- s.RunOnOwner(context.Background(), func() error { return errors.New("action failed") }, true)
	}()

	for got := 0; got < 2; {
		s.Tick(Update)
		select {
		case err := <-errc:
			assert.NoError(t, err)
			got++
		case <-time.After(time.Millisecond):
		}
	}
	assert.Zero(t, s.pool.inUse())
}

func TestRunOnOwnerWaitHonoursContext(t *testing.T) {
	s := newTestScheduler(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- s.RunOnOwner(ctx, func() error { return nil }, true)
	}()
	assert.ErrorIs(t, <-errc, context.DeadlineExceeded)
}

func TestRunOnOwnerNilAction(t *testing.T) {
	s := newTestScheduler(t)
	assert.ErrorIs(t, s.RunOnOwner(context.Background(), nil, false), ErrNilAction)
}

func TestSequentialRunsInOrder(t *testing.T) {
	s := newTestScheduler(t)
	var log []string
	h, err := s.Run(Sequential(
		tagged(&log, "a", 2),
		nil,
		tagged(&log, "b", 1),
		tagged(&log, "c", 2),
	), WithOptions(OptRun))
	require.NoError(t, err)

	for i := 0; i < 20 && !h.Done(); i++ {
		s.Tick(Update)
	}
	assert.True(t, h.Done())
	assert.Equal(t, []string{"a", "a", "b", "c", "c"}, log)
}

func TestSequentialEmptyFinishesImmediately(t *testing.T) {
	s := newTestScheduler(t)
	h, err := s.Run(Sequential())
	require.NoError(t, err)
	assert.True(t, h.Done())
}

func TestParallelStepsEveryBranchOncePerStep(t *testing.T) {
	s := newTestScheduler(t)
	var log []string
	h, err := s.Run(s.Parallel(
		tagged(&log, "a", 2),
		tagged(&log, "b", 3),
		nil,
	), WithOptions(OptRun))
	require.NoError(t, err)

	s.Tick(Update)
	assert.Equal(t, []string{"a", "b"}, log)
	s.Tick(Update)
	assert.Equal(t, []string{"a", "b", "a", "b"}, log)
	assert.False(t, h.Done())
	s.Tick(Update)
	assert.Equal(t, []string{"a", "b", "a", "b", "b"}, log)
	assert.True(t, h.Done())
	assert.Zero(t, s.pool.inUse())
}

func TestParallelBranchesMayDelegate(t *testing.T) {
	s := newTestScheduler(t)
	var log []string
	h, err := s.Run(s.Parallel(
		Sequential(tagged(&log, "x1", 1), tagged(&log, "x2", 1)),
		tagged(&log, "y", 1),
	), WithOptions(OptRun|OptComplete|OptImmediate))
	require.NoError(t, err)
	assert.True(t, h.Done())
	assert.ElementsMatch(t, []string{"x1", "x2", "y"}, log)
}

func TestParallelBranchFaultReportsOwningClock(t *testing.T) {
	s := newTestScheduler(t)
	var faults []StatusEvent
	s.Observe(func(ev StatusEvent) {
		if ev.Kind == StatusFault {
			faults = append(faults, ev)
		}
	})
	_, err := s.Run(s.Parallel(
		Once(func() error { return errors.New("branch failed") }),
	), WithOptions(OptRun), WithClock(FixedUpdate))
	require.NoError(t, err)

	s.Tick(FixedUpdate)
	require.Len(t, faults, 1)
	assert.Equal(t, FixedUpdate, faults[0].Clock)
}

func TestStoppedParallelReleasesBranches(t *testing.T) {
	s := newTestScheduler(t)
	var log []string
	par := s.Parallel(tagged(&log, "a", 100), tagged(&log, "b", 100))
	h, err := s.Run(par, WithOptions(OptRun))
	require.NoError(t, err)
	s.Tick(Update)
	require.Equal(t, 3, s.pool.inUse())

	s.Cancel(h)
	assert.Zero(t, s.pool.inUse())
}

func TestGoroutineIDDiffersAcrossGoroutines(t *testing.T) {
	mine := goroutineID()
	require.NotZero(t, mine)
	other := make(chan uint64)
	go func() { other <- goroutineID() }()
	assert.NotEqual(t, mine, <-other)
}
