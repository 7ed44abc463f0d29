package files

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// Entry pairs a file with its ID. ID 0 is the most recently modified file.
type Entry struct {
	ID   int
	File File
}

// Index maps small IDs to files. It is immutable once built.
type Index struct {
	entries []Entry
	pattern string
}

// Build filters files by pattern (case-insensitive; empty matches all), sorts
// the survivors newest first and numbers them from 0. Ties on modification
// time are broken by path so IDs are deterministic.
func Build(files []File, pattern string) *Index {
	matcher, err := NewMatcher(pattern)
	if err != nil {
		return &Index{pattern: pattern}
	}
	kept := make([]File, 0, len(files))
	for _, f := range files {
		if matcher.Match(f.Path) {
			kept = append(kept, f)
		}
	}
	sortNewestFirst(kept)

	entries := make([]Entry, len(kept))
	for i, f := range kept {
		entries[i] = Entry{ID: i, File: f}
	}
	return &Index{entries: entries, pattern: pattern}
}

// Entries returns the index, ID 0 first.
func (ix *Index) Entries() []Entry {
	if ix == nil {
		return nil
	}
	return append([]Entry(nil), ix.entries...)
}

// Len returns the number of indexed files.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// Pattern returns the glob the index was built with.
func (ix *Index) Pattern() string {
	if ix == nil {
		return ""
	}
	return ix.pattern
}

// Lookup returns the file with the given ID.
func (ix *Index) Lookup(id int) (File, bool) {
	if ix == nil || id < 0 || id >= len(ix.entries) {
		return File{}, false
	}
	return ix.entries[id].File, true
}

// UnknownIDError reports a #N reference outside the current index.
type UnknownIDError struct {
	Ref string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown file ID: %s. Use 'ls' to see available files.", e.Ref)
}

// Resolve turns a "#N" reference into a path. Anything else is returned
// unchanged.
func (ix *Index) Resolve(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	id, ok := ParseRef(ref)
	if !ok {
		return ref, nil
	}
	f, found := ix.Lookup(id)
	if !found {
		return "", &UnknownIDError{Ref: ref}
	}
	return f.Path, nil
}

// ParseRef parses "#N".
func ParseRef(ref string) (int, bool) {
	digits, ok := strings.CutPrefix(ref, "#")
	if !ok || digits == "" {
		return 0, false
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Matcher applies a case-insensitive shell glob to file paths. As in the
// shell's fnmatch, "*" also matches "/".
type Matcher struct {
	g glob.Glob
}

// NewMatcher compiles pattern. An empty pattern matches everything.
func NewMatcher(pattern string) (*Matcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return &Matcher{}, nil
	}
	g, err := glob.Compile(strings.ToLower(pattern))
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return &Matcher{g: g}, nil
}

// Match reports whether the full path or its base name matches.
func (m *Matcher) Match(p string) bool {
	if m == nil || m.g == nil {
		return true
	}
	lower := strings.ToLower(p)
	return m.g.Match(lower) || m.g.Match(path.Base(lower))
}

func sortNewestFirst(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].Modified.Equal(files[j].Modified) {
			return files[i].Modified.After(files[j].Modified)
		}
		return files[i].Path < files[j].Path
	})
}
