// Package job holds reusable tasks and wait primitives for the scheduler.
package job

import (
	"sync"
	"time"

	"ticksched/internal/sched"
)

// Deadline is a Pollable that becomes ready once a wall-clock instant passes.
type Deadline struct {
	at  time.Time
	now func() time.Time
}

// Sleep returns a Pollable that is ready after d.
func Sleep(d time.Duration) *Deadline {
	return &Deadline{at: time.Now().Add(d), now: time.Now}
}

func (d *Deadline) Ready() bool { return !d.now().Before(d.at) }

// Wait returns a task that suspends for at least d, polling once per step.
func Wait(d time.Duration) sched.Task {
	started := false
	return sched.TaskFunc(func() (sched.Yield, error) {
		if started {
			return sched.Done(), nil
		}
		started = true
		return sched.WaitFor(Sleep(d)), nil
	})
}

// Steps returns a task that calls fn on each of n steps, then finishes.
// An error from fn terminates the task.
func Steps(n int, fn func(i int) error) sched.Task {
	i := 0
	return sched.TaskFunc(func() (sched.Yield, error) {
		if i >= n {
			return sched.Done(), nil
		}
		if fn != nil {
			if err := fn(i); err != nil {
				return sched.Done(), err
			}
		}
		i++
		if i >= n {
			return sched.Done(), nil
		}
		return sched.Suspend(), nil
	})
}

// Future is a Pollable completed by work running on its own goroutine, the
// stand-in for an asynchronous engine operation.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

// Go starts fn on a new goroutine and returns a Future for it.
func Go(fn func() error) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		f.resolve(fn())
	}()
	return f
}

func (f *Future) resolve(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Err returns fn's error once the future is ready.
func (f *Future) Err() error {
	if !f.Ready() {
		return nil
	}
	return f.err
}

// Await returns a task that waits on f and fails with its error.
func Await(f *Future) sched.Task {
	waiting := false
	return sched.TaskFunc(func() (sched.Yield, error) {
		if !waiting {
			waiting = true
			return sched.WaitFor(f), nil
		}
		return sched.Done(), f.Err()
	})
}
