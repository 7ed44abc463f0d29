// Package completion computes Tab completions for the input line.
package completion

import (
	"strings"
	"unicode"

	"github.com/five82/moonterm/internal/files"
)

// Source tags where a candidate came from.
type Source int

const (
	BuiltinCommand Source = iota
	Macro
	RemoteFile
)

func (s Source) String() string {
	switch s {
	case Macro:
		return "macro"
	case RemoteFile:
		return "file"
	default:
		return "builtin"
	}
}

// Candidate is one possible completion.
type Candidate struct {
	Text      string
	Source    Source
	TakesArgs bool
}

// Command is a statically known command.
type Command struct {
	Name      string
	TakesArgs bool
	// Files marks commands whose argument is a remote file.
	Files bool
}

// Catalog supplies the dynamic completion sets. *files.Catalog implements it.
type Catalog interface {
	Macros() []string
	Paths() []string
	Index() *files.Index
}

// Result is the outcome of one completion request. When nothing matched, Line
// and Cursor equal the input.
type Result struct {
	Line       string
	Cursor     int
	Candidates []Candidate
}

// Engine holds no state across calls beyond its inputs.
type Engine struct {
	commands []Command
	catalog  Catalog
	// OnFileLookup runs before file candidates are read, so a stale listing can
	// be refreshed in the background.
	OnFileLookup func()
}

// New builds an engine over the given static commands and catalog. A nil
// catalog offers no macros or files.
func New(commands []Command, catalog Catalog) *Engine {
	return &Engine{commands: append([]Command(nil), commands...), catalog: catalog}
}

// Complete completes the token that ends at cursor (a rune offset into line).
// Text after the cursor is preserved.
func (e *Engine) Complete(line string, cursor int) Result {
	runes := []rune(line)
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(runes) {
		cursor = len(runes)
	}
	unchanged := Result{Line: line, Cursor: cursor}

	head := string(runes[:cursor])
	tail := string(runes[cursor:])

	firstEnd := strings.IndexFunc(head, unicode.IsSpace)
	if firstEnd < 0 {
		if head == "" {
			return unchanged
		}
		return e.rewrite(unchanged, "", head, tail, e.commandCandidates(head), false)
	}

	cmd, ok := e.lookup(head[:firstEnd])
	if !ok || !cmd.Files {
		return unchanged
	}
	rest := strings.TrimLeftFunc(head[firstEnd:], unicode.IsSpace)
	prefix := head[:len(head)-len(rest)]
	return e.rewrite(unchanged, prefix, rest, tail, e.fileCandidates(rest), true)
}

func (e *Engine) lookup(name string) (Command, bool) {
	for _, c := range e.commands {
		if c.Files && c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

func (e *Engine) commandCandidates(token string) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)
	for _, c := range e.commands {
		if strings.HasPrefix(c.Name, token) && !seen[c.Name] {
			seen[c.Name] = true
			out = append(out, Candidate{Text: c.Name, Source: BuiltinCommand, TakesArgs: c.TakesArgs})
		}
	}
	if e.catalog != nil {
		for _, m := range e.catalog.Macros() {
			if strings.HasPrefix(m, token) && !seen[m] {
				seen[m] = true
				out = append(out, Candidate{Text: m, Source: Macro})
			}
		}
	}
	return out
}

func (e *Engine) fileCandidates(token string) []Candidate {
	if e.catalog == nil {
		return nil
	}
	if e.OnFileLookup != nil {
		e.OnFileLookup()
	}
	if id, ok := files.ParseRef(token); ok {
		f, found := e.catalog.Index().Lookup(id)
		if !found {
			return nil
		}
		return []Candidate{{Text: f.Path, Source: RemoteFile}}
	}

	paths := e.catalog.Paths()
	lower := strings.ToLower(token)
	var prefixed, contained []Candidate
	for _, p := range paths {
		lp := strings.ToLower(p)
		switch {
		case strings.HasPrefix(lp, lower):
			prefixed = append(prefixed, Candidate{Text: p, Source: RemoteFile})
		case strings.Contains(lp, lower):
			contained = append(contained, Candidate{Text: p, Source: RemoteFile})
		}
	}
	if len(prefixed) > 0 {
		return prefixed
	}
	return contained
}

// rewrite applies candidates to the token that sits between prefix and tail.
func (e *Engine) rewrite(unchanged Result, prefix, token, tail string, cands []Candidate, foldCase bool) Result {
	switch len(cands) {
	case 0:
		return unchanged
	case 1:
		text := cands[0].Text
		if cands[0].TakesArgs && !strings.HasPrefix(tail, " ") {
			text += " "
		}
		return build(prefix+text, tail, cands)
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Text
	}
	lcp := LongestCommonPrefix(texts)
	if !extends(lcp, token, foldCase) {
		unchanged.Candidates = cands
		return unchanged
	}
	return build(prefix+lcp, tail, cands)
}

func build(head, tail string, cands []Candidate) Result {
	return Result{
		Line:       head + tail,
		Cursor:     len([]rune(head)),
		Candidates: cands,
	}
}

// extends reports whether lcp is a strictly longer form of token.
func extends(lcp, token string, foldCase bool) bool {
	if len([]rune(lcp)) <= len([]rune(token)) {
		return false
	}
	if foldCase {
		return strings.HasPrefix(strings.ToLower(lcp), strings.ToLower(token))
	}
	return strings.HasPrefix(lcp, token)
}

// LongestCommonPrefix returns the longest rune prefix shared by all values.
func LongestCommonPrefix(values []string) string {
	if len(values) == 0 {
		return ""
	}
	prefix := []rune(values[0])
	for _, v := range values[1:] {
		r := []rune(v)
		n := 0
		for n < len(prefix) && n < len(r) && prefix[n] == r[n] {
			n++
		}
		prefix = prefix[:n]
		if n == 0 {
			break
		}
	}
	return string(prefix)
}
