package events

import "strings"

// Filter hides noisy console lines. Error lines are never hidden.
type Filter struct {
	Patterns []string
	DropOK   bool
}

// Allow reports whether line should be shown.
func (f Filter) Allow(line string) bool {
	if IsErrorLine(line) {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if f.DropOK && trimmed == "ok" {
		return false
	}
	for _, p := range f.Patterns {
		if p != "" && strings.Contains(line, p) {
			return false
		}
	}
	return true
}
