package sched

import (
	"errors"
	"fmt"
)

var (
	ErrNilTask      = errors.New("sched: nil task")
	ErrNilAction    = errors.New("sched: nil action")
	ErrStaleWrapper = errors.New("sched: step on a recycled wrapper")
	ErrBadYield     = errors.New("sched: invalid yield")
)

// PanicError carries a panic recovered from a task step or a deferred action.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Unwrap exposes the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
