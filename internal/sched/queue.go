package sched

import (
	"github.com/emirpasic/gods/queues/linkedlistqueue"
)

// Queue runs tasks one at a time in enqueue order. It is itself a Task: run
// it with Scheduler.Run and it keeps stepping its current item. It never
// finishes on its own; when empty it pauses until the next Enqueue.
type Queue struct {
	pool    *pool
	clock   Clock
	items   *linkedlistqueue.Queue
	current *wrapper
	paused  bool

	// stepping is set while current runs; an item clearing its own queue
	// leaves its wrapper in orphan until the step returns.
	stepping bool
	orphan   *wrapper
}

// NewQueue creates an empty, paused queue whose items run in clock.
func (s *Scheduler) NewQueue(clock Clock) *Queue {
	return &Queue{
		pool:   s.pool,
		clock:  clock,
		items:  linkedlistqueue.New(),
		paused: true,
	}
}

// Enqueue appends t and resumes a paused queue.
func (q *Queue) Enqueue(t Task) {
	if t == nil {
		return
	}
	q.items.Enqueue(t)
	q.paused = false
}

// Step advances the current item. A finished item is cleared, and the next
// one is only started on the following step.
func (q *Queue) Step() (Yield, error) {
	if q.current == nil {
		v, ok := q.items.Dequeue()
		if !ok {
			q.paused = true
			return Suspend(), nil
		}
		q.current = q.pool.emit(v.(Task), OptRun, q.clock)
	}

	cur := q.current
	q.stepping = true
	cur.step()
	q.stepping = false

	if q.orphan != nil {
		q.pool.destroy(q.orphan)
		q.orphan = nil
		return Suspend(), nil
	}
	if q.current == cur && cur.complete {
		q.drop()
	}
	return Suspend(), nil
}

// Clear drops every queued item and aborts the current one. Nothing fires for
// dropped items. Items may clear their own queue.
func (q *Queue) Clear() {
	q.items.Clear()
	q.abort()
	q.paused = true
}

// Len returns the number of items not yet started.
func (q *Queue) Len() int { return q.items.Size() }

// Busy reports whether an item is in flight.
func (q *Queue) Busy() bool { return q.current != nil }

// Paused reports whether the queue has nothing to run.
func (q *Queue) Paused() bool { return q.paused }

func (q *Queue) drop() {
	q.pool.destroy(q.current)
	q.current = nil
	if q.items.Empty() {
		q.paused = true
	}
}

func (q *Queue) release() { q.abort() }

// abort gives up the current item. Its wrapper is recycled right away unless
// it is the one being stepped.
func (q *Queue) abort() {
	if q.current == nil {
		return
	}
	if q.stepping {
		q.orphan = q.current
	} else {
		q.pool.destroy(q.current)
	}
	q.current = nil
}
