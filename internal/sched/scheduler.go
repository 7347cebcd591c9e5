// internal/sched/scheduler.go

package sched

import (
	"reflect"
	"time"

	"github.com/emirpasic/gods/lists/arraylist"
	"github.com/emirpasic/gods/trees/redblacktree"

	"ticksched/internal/logx"
)

// Scheduler is a single-owner cooperative task runtime. The host calls Tick
// once per clock per frame from the owner goroutine; everything except
// RunOnOwner must be called from that goroutine.
type Scheduler struct {
	log      logx.Logger
	pool     *pool
	throttle *Throttle

	unordered *arraylist.List    // wrappers with order == 0
	ordered   *redblacktree.Tree // wrappers with order != 0, keyed by orderKey
	seq       uint64

	inUpdate bool
	ticks    [clockCount]uint64
	calls    singleCallQueue
	owner    ownerID

	observer func(StatusEvent)
	csv      *csvSink
}

// New creates a scheduler owned by the calling goroutine. A zero logger is
// replaced by one built from cfg.
func New(cfg Config, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.New(logx.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	}
	throttle := NewThrottle(cfg.SkipFramesBudget())
	s := &Scheduler{
		log:       log.With(logx.String("comp", "sched")),
		throttle:  throttle,
		unordered: arraylist.New(),
		ordered:   redblacktree.NewWith(cmp),
		calls:     newSingleCallQueue(),
	}
	s.pool = newPool(cfg.PoolPrealloc, throttle, s.log)
	s.pool.notify = s.publish
	s.owner.claim()
	return s
}

// Observe installs a synchronous observer for lifecycle events (nil removes it).
func (s *Scheduler) Observe(fn func(StatusEvent)) { s.observer = fn }

// EnableCSVLogging streams every status event to a CSV file at path.
func (s *Scheduler) EnableCSVLogging(path string) error {
	sink, err := openCSVSink(path)
	if err != nil {
		return err
	}
	if s.csv != nil {
		_ = s.csv.close()
	}
	s.csv = sink
	return nil
}

// Close flushes the CSV sink, if any.
func (s *Scheduler) Close() error {
	if s.csv == nil {
		return nil
	}
	err := s.csv.close()
	s.csv = nil
	return err
}

// SetSkipFramesBudget changes how long a SkipFrames task may keep stepping
// before yielding the frame.
func (s *Scheduler) SetSkipFramesBudget(d time.Duration) {
	s.throttle.SetInterval(d)
	s.log.Debug("skip frames budget updated", logx.Duration("budget", d))
}

// Run emits a wrapper for t and registers it. During a tick the registration
// is deferred until the current enumeration finishes.
func (s *Scheduler) Run(t Task, opts ...RunOption) (Handle, error) {
	if t == nil {
		return Handle{}, ErrNilTask
	}
	spec := runSpec{opts: DefaultOptions, clock: Update}
	for _, o := range opts {
		if o != nil {
			o(&spec)
		}
	}

	w := s.pool.emit(t, spec.opts, spec.clock)
	w.order = spec.order
	h := w.handle()

	if s.inUpdate {
		s.publish(StatusEvent{Kind: StatusDefer, Clock: w.clock, Order: w.order, ID: h.ID()})
		s.calls.push(func() { s.register(h) })
		return h, nil
	}
	s.register(h)
	return h, nil
}

// RunToCompletion runs t synchronously until it finishes, before returning.
func (s *Scheduler) RunToCompletion(t Task, opts ...RunOption) (Handle, error) {
	opts = append(opts, WithOptions(OptRun|OptComplete|OptImmediate))
	return s.Run(t, opts...)
}

func (s *Scheduler) register(h Handle) {
	w := s.pool.lookup(h)
	if w == nil || w.registered {
		return
	}
	if w.complete {
		// finished during its immediate step, or cancelled before registration
		s.publish(StatusEvent{Kind: StatusComplete, Clock: w.clock, Order: w.order, ID: h.ID()})
		s.pool.destroy(w)
		return
	}
	w.registered = true
	if w.order == 0 {
		s.unordered.Add(w)
	} else {
		s.seq++
		w.seq = s.seq
		s.ordered.Put(orderKey{order: w.order, seq: w.seq}, w)
	}
	s.publish(StatusEvent{Kind: StatusRegister, Clock: w.clock, Order: w.order, ID: h.ID()})
}

// Stop removes every active wrapper driving t. Identity is compared with ==,
// so t must be a comparable value (usually a pointer); use Cancel for func tasks.
func (s *Scheduler) Stop(t Task) {
	if t == nil {
		return
	}
	if s.inUpdate {
		s.calls.push(func() { s.stopTask(t) })
		return
	}
	s.stopTask(t)
}

// Cancel removes the wrapper behind h. Stale handles are ignored.
func (s *Scheduler) Cancel(h Handle) {
	if s.inUpdate {
		s.calls.push(func() { s.cancel(h) })
		return
	}
	s.cancel(h)
}

func (s *Scheduler) stopTask(t Task) {
	var victims []*wrapper
	s.each(func(w *wrapper) {
		if sameTask(w.origin, t) || sameTask(w.task, t) {
			victims = append(victims, w)
		}
	})
	for _, w := range victims {
		s.remove(w)
	}
}

func (s *Scheduler) cancel(h Handle) {
	if w := s.pool.lookup(h); w != nil {
		s.remove(w)
	}
}

func (s *Scheduler) remove(w *wrapper) {
	s.publish(StatusEvent{Kind: StatusStop, Clock: w.clock, Order: w.order, ID: w.handle().ID()})
	if !w.registered {
		// emitted during a tick, registration still pending
		w.complete = true
		return
	}
	if w.order == 0 {
		if i := s.unordered.IndexOf(w); i >= 0 {
			s.unordered.Remove(i)
		}
	} else {
		s.ordered.Remove(orderKey{order: w.order, seq: w.seq})
	}
	s.pool.destroy(w)
}

// Tick runs one pass of the given clock: apply deferred calls, step every
// matching wrapper in order, vacuum completed ones, apply calls deferred
// during the pass.
func (s *Scheduler) Tick(clock Clock) {
	if clock >= clockCount {
		s.log.Warn("tick on unknown clock ignored", logx.Int("clock", int(clock)))
		return
	}
	if s.inUpdate {
		s.log.Warn("reentrant tick ignored", logx.String("clock", clock.String()))
		return
	}
	s.owner.claim()
	s.drainCalls()

	s.inUpdate = true
	stepped, completed := 0, false
	s.each(func(w *wrapper) {
		if w.complete {
			completed = true
			return
		}
		if w.clock != clock {
			return
		}
		w.step()
		stepped++
		if w.complete {
			completed = true
			s.publish(StatusEvent{Kind: StatusComplete, Clock: w.clock, Order: w.order, ID: w.handle().ID()})
		}
	})
	if completed {
		s.vacuum(clock)
	}
	s.inUpdate = false
	s.ticks[clock]++
	if s.log.Enabled(logx.LevelTrace) {
		s.log.Trace("tick",
			logx.String("clock", clock.String()),
			logx.Uint64("tick", s.ticks[clock]),
			logx.Int("stepped", stepped),
			logx.Int("active", s.Len()),
		)
	}
	s.publish(StatusEvent{Kind: StatusTick, Clock: clock, Count: stepped})

	s.drainCalls()
}

// Ticks returns how many ticks of clock have completed.
func (s *Scheduler) Ticks(clock Clock) uint64 {
	if clock >= clockCount {
		return 0
	}
	return s.ticks[clock]
}

// Len returns the number of registered wrappers.
func (s *Scheduler) Len() int { return s.unordered.Size() + s.ordered.Size() }

// Pending returns the number of queued single-call actions.
func (s *Scheduler) Pending() int { return s.calls.len() }

// each visits wrappers in execution order: negative orders ascending, the zero
// group, then positive orders ascending.
func (s *Scheduler) each(fn func(w *wrapper)) {
	zeroDone := false
	it := s.ordered.Iterator()
	for it.Next() {
		if !zeroDone && it.Key().(orderKey).order > 0 {
			s.eachUnordered(fn)
			zeroDone = true
		}
		fn(it.Value().(*wrapper))
	}
	if !zeroDone {
		s.eachUnordered(fn)
	}
}

func (s *Scheduler) eachUnordered(fn func(w *wrapper)) {
	s.unordered.Each(func(_ int, v interface{}) {
		fn(v.(*wrapper))
	})
}

// vacuum removes every completed wrapper in one sweep after stepping.
func (s *Scheduler) vacuum(clock Clock) {
	var dead []*wrapper
	s.unordered = s.unordered.Select(func(_ int, v interface{}) bool {
		w := v.(*wrapper)
		if w.complete {
			dead = append(dead, w)
			return false
		}
		return true
	})

	var keys []orderKey
	it := s.ordered.Iterator()
	for it.Next() {
		if w := it.Value().(*wrapper); w.complete {
			keys = append(keys, it.Key().(orderKey))
			dead = append(dead, w)
		}
	}
	for _, k := range keys {
		s.ordered.Remove(k)
	}

	for _, w := range dead {
		s.pool.destroy(w)
	}
	s.publish(StatusEvent{Kind: StatusVacuum, Clock: clock, Count: len(dead)})
}

func (s *Scheduler) publish(ev StatusEvent) {
	if s.observer == nil && s.csv == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if ev.Tick == 0 && ev.Clock < clockCount {
		ev.Tick = s.ticks[ev.Clock]
	}
	if s.observer != nil {
		s.observer(ev)
	}
	if s.csv != nil {
		if err := s.csv.write(ev); err != nil {
			s.log.Warn("status csv write failed", logx.Err(err))
			_ = s.csv.close()
			s.csv = nil
		}
	}
}

// orderKey is used as a key in the red-black tree.
type orderKey struct {
	order int
	seq   uint64
}

// cmp orders by order, then by registration sequence.
func cmp(a, b any) int {
	ka, kb := a.(orderKey), b.(orderKey)
	switch {
	case ka.order < kb.order:
		return -1
	case ka.order > kb.order:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	default:
		return 0
	}
}

// sameTask compares tasks by identity without panicking on func values.
func sameTask(a, b Task) bool {
	if a == nil || b == nil {
		return false
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
