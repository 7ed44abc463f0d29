// Package session implements the operator's input line: editing, history
// navigation, completion and submission.
package session

import (
	"context"
	"strings"

	"github.com/five82/moonterm/internal/completion"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/history"
)

// Mode is the history-navigation state.
type Mode int

const (
	// Editing means the buffer holds the operator's own line.
	Editing Mode = iota
	// NavigatingHistory means the buffer shows a history entry and the
	// in-progress line is parked until navigation ends.
	NavigatingHistory
)

func (m Mode) String() string {
	if m == NavigatingHistory {
		return "navigating"
	}
	return "editing"
}

// Forwarder receives submitted lines. It may return nil when the line produced
// no command record.
type Forwarder interface {
	Forward(ctx context.Context, line string) *gateway.Record
}

// Session owns the input buffer and cursor. It is used from the UI goroutine
// only and is not safe for concurrent use.
type Session struct {
	buf    []rune
	cursor int

	mode     Mode
	navIndex int
	parked   []rune

	history *history.Store
	engine  *completion.Engine
	fwd     Forwarder

	candidates []completion.Candidate
}

// New builds a session. engine and fwd may be nil in tests.
func New(h *history.Store, engine *completion.Engine, fwd Forwarder) *Session {
	if h == nil {
		h = history.New(1)
	}
	return &Session{history: h, engine: engine, fwd: fwd}
}

// Text returns the buffer contents.
func (s *Session) Text() string { return string(s.buf) }

// Cursor returns the cursor as a rune offset in [0, len].
func (s *Session) Cursor() int { return s.cursor }

// Mode returns the navigation state.
func (s *Session) Mode() Mode { return s.mode }

// Candidates returns the candidates from the last completion.
func (s *Session) Candidates() []completion.Candidate {
	return s.candidates
}

// Empty reports whether the buffer is empty.
func (s *Session) Empty() bool { return len(s.buf) == 0 }

// Insert types text at the cursor.
func (s *Session) Insert(text string) {
	r := []rune(text)
	if len(r) == 0 {
		return
	}
	s.edit()
	buf := make([]rune, 0, len(s.buf)+len(r))
	buf = append(buf, s.buf[:s.cursor]...)
	buf = append(buf, r...)
	buf = append(buf, s.buf[s.cursor:]...)
	s.buf = buf
	s.cursor += len(r)
}

// Backspace removes the rune before the cursor.
func (s *Session) Backspace() {
	if s.cursor == 0 {
		return
	}
	s.edit()
	s.buf = append(s.buf[:s.cursor-1], s.buf[s.cursor:]...)
	s.cursor--
}

// Delete removes the rune under the cursor.
func (s *Session) Delete() {
	if s.cursor >= len(s.buf) {
		return
	}
	s.edit()
	s.buf = append(s.buf[:s.cursor], s.buf[s.cursor+1:]...)
}

// Left moves the cursor one rune left.
func (s *Session) Left() {
	if s.cursor > 0 {
		s.cursor--
	}
}

// Right moves the cursor one rune right.
func (s *Session) Right() {
	if s.cursor < len(s.buf) {
		s.cursor++
	}
}

// Home moves the cursor to the start of the line.
func (s *Session) Home() { s.cursor = 0 }

// End moves the cursor to the end of the line.
func (s *Session) End() { s.cursor = len(s.buf) }

// Clear empties the buffer and ends navigation.
func (s *Session) Clear() {
	s.buf = nil
	s.cursor = 0
	s.resetNav()
}

// Previous shows the next older history entry. The first call parks the
// in-progress line.
func (s *Session) Previous() {
	n := s.history.Len()
	if n == 0 {
		return
	}
	if s.mode == Editing {
		s.parked = append([]rune(nil), s.buf...)
		s.navIndex = n
		s.mode = NavigatingHistory
	}
	if s.navIndex == 0 {
		return
	}
	s.navIndex--
	s.show(s.navIndex)
}

// Next shows the next newer entry, restoring the parked line after the newest.
func (s *Session) Next() {
	if s.mode != NavigatingHistory {
		return
	}
	s.navIndex++
	if s.navIndex >= s.history.Len() {
		s.set(s.parked)
		s.resetNav()
		return
	}
	s.show(s.navIndex)
}

// Complete runs completion at the cursor and applies the rewrite.
func (s *Session) Complete() completion.Result {
	if s.engine == nil {
		return completion.Result{Line: s.Text(), Cursor: s.cursor}
	}
	res := s.engine.Complete(s.Text(), s.cursor)
	s.candidates = res.Candidates
	if res.Line != s.Text() || res.Cursor != s.cursor {
		s.edit()
		s.buf = []rune(res.Line)
		s.cursor = res.Cursor
	}
	return res
}

// Submit records the line in history, forwards it and clears the buffer. It
// returns the trimmed line and the forwarder's record, both empty when the
// line was blank.
func (s *Session) Submit(ctx context.Context) (string, *gateway.Record) {
	line := strings.TrimSpace(s.Text())
	s.Clear()
	s.candidates = nil
	if line == "" {
		return "", nil
	}
	s.history.Append(line)
	if s.fwd == nil {
		return line, nil
	}
	return line, s.fwd.Forward(ctx, line)
}

// edit leaves navigation, adopting the shown entry as the operator's line.
func (s *Session) edit() {
	if s.mode == NavigatingHistory {
		s.resetNav()
	}
}

func (s *Session) resetNav() {
	s.mode = Editing
	s.navIndex = 0
	s.parked = nil
}

func (s *Session) show(i int) {
	entry, ok := s.history.At(i)
	if !ok {
		return
	}
	s.set([]rune(entry))
}

func (s *Session) set(r []rune) {
	s.buf = append([]rune(nil), r...)
	s.cursor = len(s.buf)
}
