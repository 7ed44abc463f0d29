package gateway

import (
	"encoding/json"
	"sync"
	"time"
)

// Outcome is the result state of a submitted command.
type Outcome int

const (
	Pending Outcome = iota
	Acknowledged
	TimedOut
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Acknowledged:
		return "acknowledged"
	case TimedOut:
		return "timed out"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Kind distinguishes raw G-code from structured calls.
type Kind int

const (
	KindScript Kind = iota
	KindQuery
	KindTask
)

// Record tracks one submission. Its outcome moves out of Pending exactly once.
type Record struct {
	Seq       uint64
	Text      string
	Token     string
	Kind      Kind
	Submitted time.Time
	Timeout   time.Duration

	mu      sync.Mutex
	outcome Outcome
	reason  string
	result  json.RawMessage
	done    chan struct{}
}

func newRecord(seq uint64, text string, kind Kind, token string, timeout time.Duration, now time.Time) *Record {
	return &Record{
		Seq:       seq,
		Text:      text,
		Token:     token,
		Kind:      kind,
		Submitted: now,
		Timeout:   timeout,
		done:      make(chan struct{}),
	}
}

// State returns the current outcome.
func (r *Record) State() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

// Reason returns the failure or timeout text, if any.
func (r *Record) Reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

// Result returns the structured reply of an acknowledged call.
func (r *Record) Result() json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Done is closed once the record leaves Pending.
func (r *Record) Done() <-chan struct{} {
	return r.done
}

// resolve sets the outcome if the record is still pending and reports whether
// this call won.
func (r *Record) resolve(outcome Outcome, reason string, result json.RawMessage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcome != Pending {
		return false
	}
	r.outcome = outcome
	r.reason = reason
	r.result = result
	close(r.done)
	return true
}
