package history

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"
)

// Store is the bounded command history. Adjacent entries are never equal and
// the oldest entry is evicted once Max is exceeded.
type Store struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []string
	// unsaved holds lines appended since the last Save, in order.
	unsaved []string
	corrupt bool
}

const maxLineBytes = 1024 * 1024

// New returns an empty in-memory store.
func New(max int) *Store {
	if max <= 0 {
		max = 1
	}
	return &Store{max: max}
}

// Load reads the most recent max entries from path. A missing file yields an
// empty store. A file that is not valid UTF-8 is treated as empty and flagged
// through Corrupt; any other read failure is returned.
func Load(path string, max int) (*Store, error) {
	s := New(max)
	s.path = path
	if strings.TrimSpace(path) == "" {
		return s, nil
	}

	lines, err := readTail(path, s.max)
	if err != nil {
		if errors.Is(err, errCorrupt) {
			s.corrupt = true
			return s, nil
		}
		return nil, err
	}
	for _, line := range lines {
		s.add(line)
	}
	return s, nil
}

// Corrupt reports whether Load discarded an unreadable file.
func (s *Store) Corrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corrupt
}

// Path returns the backing file, if any.
func (s *Store) Path() string {
	return s.path
}

// Append adds line, trimmed. Empty lines and repeats of the latest entry are
// ignored. It reports whether an entry was added.
func (s *Store) Append(line string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.add(line) {
		return false
	}
	s.unsaved = append(s.unsaved, s.entries[len(s.entries)-1])
	return true
}

func (s *Store) add(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || strings.ContainsAny(line, "\r\n") {
		return false
	}
	if n := len(s.entries); n > 0 && s.entries[n-1] == line {
		return false
	}
	s.entries = append(s.entries, line)
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// At returns entry i, oldest first.
func (s *Store) At(i int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.entries) {
		return "", false
	}
	return s.entries[i], true
}

// Entries returns a copy of the history, oldest first.
func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

// Recent returns up to n entries, newest last.
func (s *Store) Recent(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	return append([]string(nil), s.entries[len(s.entries)-n:]...)
}

// Save appends the entries added since the last save to the history file. A
// file that was found corrupt is replaced instead.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.path) == "" {
		return nil
	}
	if len(s.unsaved) == 0 && !s.corrupt {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if s.corrupt {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	file, err := os.OpenFile(s.path, flags, 0o600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}

	w := bufio.NewWriter(file)
	for _, line := range s.unsaved {
		_, _ = w.WriteString(line)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	s.unsaved = nil
	s.corrupt = false
	return nil
}

var errCorrupt = errors.New("history file is not valid UTF-8")

// readTail returns at most maxLines from the end of the file at path.
func readTail(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	count := 0
	idx := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if !utf8.Valid(line) {
			return nil, errCorrupt
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		ring[idx] = string(line)
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, errCorrupt
		}
		return nil, fmt.Errorf("read history: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}
