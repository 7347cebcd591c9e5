package sched

import "strings"

// Clock is the logical per-frame phase a task is stepped in.
type Clock uint8

const (
	Update Clock = iota
	FixedUpdate
	LateUpdate

	clockCount
)

func (c Clock) String() string {
	switch c {
	case Update:
		return "Update"
	case FixedUpdate:
		return "FixedUpdate"
	case LateUpdate:
		return "LateUpdate"
	default:
		return "Unknown"
	}
}

// Options controls how a wrapper drives its task.
type Options uint8

const (
	OptRun        Options = 1 << iota // plain stepping, once per tick
	OptComplete                       // drain the task to completion in a single step
	OptSkipFrames                     // keep stepping within one tick until the throttle grants
	OptImmediate                      // step once synchronously at submission
)

const DefaultOptions = OptRun | OptImmediate

func (o Options) Has(flag Options) bool { return o&flag != 0 }

func (o Options) String() string {
	if o == 0 {
		return "None"
	}
	names := make([]string, 0, 4)
	for _, f := range []struct {
		flag Options
		name string
	}{
		{OptRun, "Run"},
		{OptComplete, "Complete"},
		{OptSkipFrames, "SkipFrames"},
		{OptImmediate, "Immediate"},
	} {
		if o.Has(f.flag) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

type runSpec struct {
	opts  Options
	clock Clock
	order int
}

// RunOption customizes a Scheduler.Run call.
type RunOption func(*runSpec)

// WithOptions replaces DefaultOptions.
func WithOptions(o Options) RunOption { return func(r *runSpec) { r.opts = o } }

// WithClock selects the clock the task is stepped in (default Update).
func WithClock(c Clock) RunOption { return func(r *runSpec) { r.clock = c } }

// WithOrder sets the ordering key. Negative orders run before the zero group,
// positive ones after it.
func WithOrder(order int) RunOption { return func(r *runSpec) { r.order = order } }
