package sched

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/emirpasic/gods/stacks/arraystack"

	"ticksched/internal/logx"
)

// wrapper is the scheduling unit: one task, its options, clock, order and at
// most one nested wrapper it currently delegates to.
type wrapper struct {
	pool *pool
	slot int
	gen  uint32

	origin Task // as submitted, used by Stop
	task   Task // what is actually stepped (origin or a drain adapter)
	opts   Options
	clock  Clock
	order  int
	seq    uint64

	complete   bool
	pooled     bool
	registered bool
	nested     *wrapper

	onDone func()
}

// releaser is implemented by composite tasks that hold pooled wrappers.
type releaser interface {
	release()
}

// clockBinder is implemented by composite tasks that emit wrappers of their
// own; they learn the clock of the wrapper driving them.
type clockBinder interface {
	bindClock(c Clock)
}

// pool is an arena of wrapper slots with a free-list of slot indices.
// A slot's generation is bumped on every release so stale handles are detectable.
type pool struct {
	slots    []*wrapper
	free     *arraystack.Stack
	log      logx.Logger
	throttle *Throttle
	notify   func(StatusEvent)
}

func newPool(prealloc int, throttle *Throttle, log logx.Logger) *pool {
	p := &pool{
		slots:    make([]*wrapper, 0, prealloc),
		free:     arraystack.New(),
		log:      log,
		throttle: throttle,
	}
	for i := 0; i < prealloc; i++ {
		w := &wrapper{pool: p, slot: i, pooled: true, complete: true}
		p.slots = append(p.slots, w)
	}
	// push in reverse so slot 0 is handed out first
	for i := prealloc - 1; i >= 0; i-- {
		p.free.Push(i)
	}
	return p
}

func (p *pool) get() *wrapper {
	if v, ok := p.free.Pop(); ok {
		return p.slots[v.(int)]
	}
	w := &wrapper{pool: p, slot: len(p.slots)}
	p.slots = append(p.slots, w)
	return w
}

// emit resets a recycled (or new) wrapper for t and performs the immediate
// first step when requested.
func (p *pool) emit(t Task, opts Options, clock Clock) *wrapper {
	if b, ok := t.(clockBinder); ok {
		b.bindClock(clock)
	}
	w := p.get()
	w.origin = t
	w.task = t
	if opts.Has(OptComplete) {
		w.task = &drain{pool: p, inner: t, clock: clock}
	}
	w.opts = opts
	w.clock = clock
	w.order = 0
	w.seq = 0
	w.complete = false
	w.pooled = false
	w.registered = false
	w.nested = nil
	w.onDone = nil

	if opts.Has(OptImmediate) {
		w.step()
	}
	return w
}

// destroy recycles w and every wrapper nested under it.
func (p *pool) destroy(w *wrapper) {
	for w != nil && !w.pooled {
		next := w.nested
		p.release(w)
		w = next
	}
}

func (p *pool) release(w *wrapper) {
	if r, ok := w.task.(releaser); ok {
		r.release()
	}
	w.origin = nil
	w.task = nil
	w.nested = nil
	w.onDone = nil
	w.complete = true
	w.registered = false
	w.pooled = true
	w.gen++
	p.free.Push(w.slot)
}

func (p *pool) lookup(h Handle) *wrapper {
	if h.p != p || h.slot < 0 || h.slot >= len(p.slots) {
		return nil
	}
	w := p.slots[h.slot]
	if w.pooled || w.gen != h.gen {
		return nil
	}
	return w
}

// inUse reports how many wrappers are out of the free-list.
func (p *pool) inUse() int { return len(p.slots) - p.free.Size() }

func (w *wrapper) handle() Handle { return Handle{p: w.pool, slot: w.slot, gen: w.gen} }

// step advances the wrapper by one level of its active chain and, with
// OptSkipFrames, keeps going until the task finishes or the throttle grants.
func (w *wrapper) step() {
	if w.pooled {
		panic(ErrStaleWrapper)
	}
	if w.complete {
		return
	}
	w.advance()
	if w.opts.Has(OptSkipFrames) {
		for !w.complete && !w.pool.throttle.TryAcquire() {
			w.advance()
		}
	}
}

// advance walks to the deepest nested wrapper and steps only that one. A leaf
// that finishes is detached and recycled; its parent resumes on the next call.
func (w *wrapper) advance() {
	var parent *wrapper
	leaf := w
	for leaf.nested != nil {
		parent, leaf = leaf, leaf.nested
	}
	leaf.stepTask()
	if parent != nil && leaf.complete {
		parent.nested = nil
		w.pool.destroy(leaf)
	}
}

func (w *wrapper) stepTask() {
	y, err := w.invoke()
	if err != nil {
		w.fault(err)
		return
	}
	switch y.Kind {
	case YieldSuspend:
	case YieldDone:
		w.finish()
	case YieldDelegate:
		if y.Task == nil {
			w.fault(fmt.Errorf("%w: delegate to nil task", ErrBadYield))
			return
		}
		w.nested = w.pool.emit(y.Task, OptRun, w.clock)
	case YieldWait:
		if y.Wait == nil {
			w.fault(fmt.Errorf("%w: wait on nil pollable", ErrBadYield))
			return
		}
		w.nested = w.pool.emit(&waitTask{p: y.Wait}, OptRun, w.clock)
	default:
		w.fault(fmt.Errorf("%w: kind %d", ErrBadYield, y.Kind))
	}
}

func (w *wrapper) invoke() (y Yield, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return w.task.Step()
}

func (w *wrapper) fault(err error) {
	fields := []logx.Field{
		logx.Err(err),
		logx.String("clock", w.clock.String()),
		logx.Int("order", w.order),
		logx.Uint64("id", w.handle().ID()),
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		fields = append(fields, logx.Stack(pe.Stack))
	}
	w.pool.log.Error("task failed", fields...)
	if w.pool.notify != nil {
		w.pool.notify(StatusEvent{Kind: StatusFault, Clock: w.clock, Order: w.order, ID: w.handle().ID()})
	}
	w.finish()
}

func (w *wrapper) finish() {
	w.complete = true
	if fn := w.onDone; fn != nil {
		w.onDone = nil
		fn()
	}
}

// drain steps an inner chain until it finishes, all inside a single step.
type drain struct {
	pool  *pool
	inner Task
	clock Clock
}

func (d *drain) Step() (Yield, error) {
	w := d.pool.emit(d.inner, OptRun, d.clock)
	for !w.complete {
		w.advance()
	}
	d.pool.destroy(w)
	return Done(), nil
}

// Handle refers to one emission of a wrapper. Once the wrapper is recycled the
// handle goes stale and never aliases the slot's next task.
type Handle struct {
	p    *pool
	slot int
	gen  uint32
}

// Valid reports whether the wrapper is still live (not yet recycled).
func (h Handle) Valid() bool { return h.p != nil && h.p.lookup(h) != nil }

// Done reports whether the task finished, was stopped, or the handle is stale.
func (h Handle) Done() bool {
	if h.p == nil {
		return true
	}
	w := h.p.lookup(h)
	return w == nil || w.complete
}

// ID packs slot and generation; unique among live wrappers of one scheduler.
func (h Handle) ID() uint64 { return uint64(h.slot)<<32 | uint64(h.gen) }
