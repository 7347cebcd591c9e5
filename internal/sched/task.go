package sched

// YieldKind tags what a task asks the scheduler to do after one step.
type YieldKind uint8

const (
	YieldSuspend  YieldKind = iota // still running, step again next time
	YieldDelegate                  // still running, drive Yield.Task until it finishes
	YieldWait                      // still running, poll Yield.Wait until it is ready
	YieldDone                      // finished
)

func (k YieldKind) String() string {
	switch k {
	case YieldSuspend:
		return "Suspend"
	case YieldDelegate:
		return "Delegate"
	case YieldWait:
		return "Wait"
	case YieldDone:
		return "Done"
	default:
		return "Unknown"
	}
}

// Yield is the result of one task step.
type Yield struct {
	Kind YieldKind
	Task Task
	Wait Pollable
}

func Suspend() Yield           { return Yield{Kind: YieldSuspend} }
func Done() Yield              { return Yield{Kind: YieldDone} }
func DelegateTo(t Task) Yield  { return Yield{Kind: YieldDelegate, Task: t} }
func WaitFor(p Pollable) Yield { return Yield{Kind: YieldWait, Wait: p} }
func (y Yield) String() string { return y.Kind.String() }

// Task is one unit of cooperative work. The scheduler calls Step repeatedly
// until it reports Done. A step must not block.
//
// A non-nil error (or a panic) terminates the task; it is logged and never
// reaches the caller of Tick.
type Task interface {
	Step() (Yield, error)
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() (Yield, error)

func (f TaskFunc) Step() (Yield, error) { return f() }

// Pollable is an external wait primitive (an engine load, a goroutine result).
// The scheduler only asks it whether it has finished.
type Pollable interface {
	Ready() bool
}

// PollFunc adapts a plain predicate to Pollable.
type PollFunc func() bool

func (f PollFunc) Ready() bool { return f() }

// waitTask polls a Pollable once per step.
type waitTask struct {
	p Pollable
}

func (w *waitTask) Step() (Yield, error) {
	if w.p.Ready() {
		return Done(), nil
	}
	return Suspend(), nil
}

// Once returns a task that runs fn on its first step and finishes.
func Once(fn func() error) Task {
	return TaskFunc(func() (Yield, error) {
		if err := fn(); err != nil {
			return Done(), err
		}
		return Done(), nil
	})
}

// sequence drives each task to completion in order by delegating to it.
type sequence struct {
	tasks []Task
	next  int
}

// Sequential returns a task that runs every input to completion, strictly in
// the given order, and finishes after the last one. Nil inputs are skipped.
func Sequential(tasks ...Task) Task {
	return &sequence{tasks: tasks}
}

func (s *sequence) Step() (Yield, error) {
	for s.next < len(s.tasks) {
		t := s.tasks[s.next]
		s.tasks[s.next] = nil
		s.next++
		if t != nil {
			return DelegateTo(t), nil
		}
	}
	return Done(), nil
}
