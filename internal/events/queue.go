// Package events carries console output from background goroutines to the
// render loop.
package events

import (
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Kind classifies an event for rendering.
type Kind string

const (
	// KindConsole is a line of printer console output.
	KindConsole Kind = "console"
	// KindError is console output the printer flagged as an error.
	KindError Kind = "error"
	// KindEcho is a submitted command echoed back to the operator.
	KindEcho Kind = "echo"
	// KindNotice is a local, non-fatal message such as a timeout or reconnect.
	KindNotice Kind = "notice"
	// KindOutput is the result of a local command.
	KindOutput Kind = "output"
)

// Event is one line for the console pane.
type Event struct {
	Kind Kind
	Text string
	Time time.Time
}

const defaultDepth = 1024

// Queue is a bounded, non-blocking FIFO. Publishers never wait; when the queue
// is full the event is dropped and counted.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
	log     *zap.Logger
	now     func() time.Time
}

// NewQueue builds a queue holding up to depth events.
func NewQueue(depth int, logger *zap.Logger) *Queue {
	if depth <= 0 {
		depth = defaultDepth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		ch:  make(chan Event, depth),
		log: logger,
		now: time.Now,
	}
}

// Publish enqueues an event stamped with the current time.
func (q *Queue) Publish(kind Kind, text string) {
	if q == nil {
		return
	}
	ev := Event{Kind: kind, Text: text, Time: q.now()}
	select {
	case q.ch <- ev:
	default:
		n := q.dropped.Add(1)
		q.log.Debug("event queue full", zap.String("kind", string(kind)), zap.Uint64("dropped", n))
	}
}

// Console publishes a printer line, classifying error lines.
func (q *Queue) Console(line string) {
	if IsErrorLine(line) {
		q.Publish(KindError, line)
		return
	}
	q.Publish(KindConsole, line)
}

// Notice publishes a local notice.
func (q *Queue) Notice(text string) {
	q.Publish(KindNotice, text)
}

// Output publishes local command output, one event per line.
func (q *Queue) Output(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		q.Publish(KindOutput, line)
	}
}

// Drain removes up to max queued events without blocking. A max of zero or less
// drains everything currently queued.
func (q *Queue) Drain(max int) []Event {
	if q == nil {
		return nil
	}
	var out []Event
	for max <= 0 || len(out) < max {
		select {
		case ev := <-q.ch:
			out = append(out, ev)
		default:
			return out
		}
	}
	return out
}

// Dropped returns how many events were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}

// IsErrorLine reports whether a console line is an error from the printer.
func IsErrorLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "!!") {
		return true
	}
	return strings.HasPrefix(strings.ToLower(trimmed), "error")
}
