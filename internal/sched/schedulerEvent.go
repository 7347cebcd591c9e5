// internal/sched/schedulerEvent.go

package sched

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"
)

// StatusKind represents the type of scheduler event
type StatusKind int

const (
	StatusRegister StatusKind = iota
	StatusDefer
	StatusComplete
	StatusFault
	StatusStop
	StatusVacuum
	StatusTick
)

// StatusEvent is emitted on key lifecycle actions and once per tick.
type StatusEvent struct {
	Time  time.Time
	Kind  StatusKind
	Clock Clock
	Tick  uint64 // per-clock tick counter at emission
	ID    uint64 // Handle.ID of the wrapper, 0 for tick-level events
	Order int
	Count int // wrappers removed by a vacuum, wrappers stepped by a tick
}

func (sk StatusKind) String() string {
	switch sk {
	case StatusRegister:
		return "Register"
	case StatusDefer:
		return "Defer"
	case StatusComplete:
		return "Complete"
	case StatusFault:
		return "Fault"
	case StatusStop:
		return "Stop"
	case StatusVacuum:
		return "Vacuum"
	case StatusTick:
		return "Tick"
	default:
		return "Unknown"
	}
}

// csvSink appends one record per event.
type csvSink struct {
	file   *os.File
	writer *csv.Writer
}

func openCSVSink(path string) (*csvSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("status csv: %w", err)
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "clock", "tick", "event", "id", "order", "count"}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("status csv: %w", err)
	}
	w.Flush()
	return &csvSink{file: f, writer: w}, nil
}

func (c *csvSink) write(ev StatusEvent) error {
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		ev.Clock.String(),
		strconv.FormatUint(ev.Tick, 10),
		ev.Kind.String(),
		strconv.FormatUint(ev.ID, 10),
		strconv.Itoa(ev.Order),
		strconv.Itoa(ev.Count),
	}
	if err := c.writer.Write(rec); err != nil {
		return err
	}
	c.writer.Flush()
	return c.writer.Error()
}

func (c *csvSink) close() error {
	c.writer.Flush()
	err := c.writer.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	return err
}
