package sched

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"ticksched/internal/logx"
)

// singleCallQueue is the deferred-action FIFO. It is the only scheduler state
// shared with other goroutines, so every access goes through mu.
type singleCallQueue struct {
	mu *sync.Mutex
	q  *linkedlistqueue.Queue
}

func newSingleCallQueue() singleCallQueue {
	return singleCallQueue{mu: &sync.Mutex{}, q: linkedlistqueue.New()}
}

func (c singleCallQueue) push(fn func()) {
	c.mu.Lock()
	c.q.Enqueue(fn)
	c.mu.Unlock()
}

func (c singleCallQueue) pop() (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.q.Dequeue()
	if !ok {
		return nil, false
	}
	return v.(func()), true
}

func (c singleCallQueue) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.q.Size()
}

// drainCalls runs the actions queued so far. Actions pushed while draining
// (by other goroutines) wait for the next drain.
func (s *Scheduler) drainCalls() {
	for n := s.calls.len(); n > 0; n-- {
		fn, ok := s.calls.pop()
		if !ok {
			return
		}
		s.invokeCall(fn)
	}
}

func (s *Scheduler) invokeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("deferred action failed",
				logx.Err(&PanicError{Value: r}),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()
	fn()
}

// RunOnOwner executes action on the goroutine that owns the scheduler.
//
// On the owner goroutine the action runs synchronously. From any other
// goroutine it is queued for the next drain and, when wait is set, the call
// blocks until the action finished or ctx is done. Errors and panics raised
// by action are logged, not returned.
func (s *Scheduler) RunOnOwner(ctx context.Context, action func() error, wait bool) error {
	if action == nil {
		return ErrNilAction
	}
	if s.owner.isCurrent() {
		s.runAction(action, nil)
		return nil
	}

	done := make(chan struct{})
	s.calls.push(func() { s.runAction(action, done) })
	if !wait {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runAction drives action through a Complete wrapper; done is closed by the
// wrapper's completion hook.
func (s *Scheduler) runAction(action func() error, done chan struct{}) {
	w := s.pool.emit(Once(action), OptRun|OptComplete, Update)
	if done != nil {
		w.onDone = func() { close(done) }
	}
	w.step()
	s.pool.destroy(w)
}

// IsOwner reports whether the caller runs on the scheduler's owner goroutine.
func (s *Scheduler) IsOwner() bool { return s.owner.isCurrent() }

// parallel advances every unfinished branch once per step.
type parallel struct {
	pool     *pool
	clock    Clock
	tasks    []Task
	branches []*wrapper
	started  bool
}

// Parallel returns a task that steps every input once per step of its own
// and finishes when all inputs finished.
func (s *Scheduler) Parallel(tasks ...Task) Task {
	return &parallel{pool: s.pool, tasks: tasks}
}

func (p *parallel) Step() (Yield, error) {
	if !p.started {
		p.started = true
		p.branches = make([]*wrapper, 0, len(p.tasks))
		for _, t := range p.tasks {
			if t != nil {
				p.branches = append(p.branches, p.pool.emit(t, OptRun, p.clock))
			}
		}
		p.tasks = nil
	}

	pending := 0
	for i, w := range p.branches {
		if w == nil {
			continue
		}
		w.advance()
		if w.complete {
			p.pool.destroy(w)
			p.branches[i] = nil
			continue
		}
		pending++
	}
	if pending == 0 {
		return Done(), nil
	}
	return Suspend(), nil
}

func (p *parallel) bindClock(c Clock) {
	if !p.started {
		p.clock = c
	}
}

func (p *parallel) release() {
	for i, w := range p.branches {
		if w != nil {
			p.pool.destroy(w)
			p.branches[i] = nil
		}
	}
}

// ownerID tracks the goroutine that owns the scheduler.
type ownerID struct {
	id atomic.Uint64
}

func (o *ownerID) claim()          { o.id.Store(goroutineID()) }
func (o *ownerID) isCurrent() bool { return o.id.Load() == goroutineID() }

// goroutineID parses the current goroutine id from the runtime stack header
// ("goroutine 123 [running]: ...").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
