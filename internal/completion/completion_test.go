package completion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/five82/moonterm/internal/files"
)

type fakeCatalog struct {
	macros []string
	files  []files.File
	index  *files.Index
}

func (f *fakeCatalog) Macros() []string { return f.macros }

func (f *fakeCatalog) Paths() []string {
	var out []string
	for _, e := range files.Build(f.files, "").Entries() {
		out = append(out, e.File.Path)
	}
	return out
}

func (f *fakeCatalog) Index() *files.Index {
	if f.index == nil {
		return files.Build(f.files, "")
	}
	return f.index
}

func texts(cands []Candidate) []string {
	var out []string
	for _, c := range cands {
		out = append(out, c.Text)
	}
	return out
}

func TestComplete_MultipleMatchesExtendToCommonPrefix(t *testing.T) {
	e := New([]Command{{Name: "M104", TakesArgs: true}, {Name: "M105"}, {Name: "M109", TakesArgs: true}}, nil)

	res := e.Complete("M1", 2)
	require.Equal(t, "M10", res.Line)
	require.Equal(t, 3, res.Cursor)
	require.Equal(t, []string{"M104", "M105", "M109"}, texts(res.Candidates))
}

func TestComplete_SingleMatchAddsSpaceForArgs(t *testing.T) {
	e := New(DefaultCommands(), nil)

	res := e.Complete("M10", 3)
	require.Equal(t, "M10", res.Line, "several M10x commands, prefix cannot grow")
	require.Len(t, res.Candidates, 5)

	res = e.Complete("M19", 3)
	require.Equal(t, "M190 ", res.Line)
	require.Equal(t, 5, res.Cursor)

	res = e.Complete("M11", 3)
	require.Equal(t, "M11", res.Line)
	require.Equal(t, []string{"M112", "M114", "M115"}, texts(res.Candidates))

	res = e.Complete("hist", 4)
	require.Equal(t, "history", res.Line, "no trailing space for a command without arguments")
}

func TestComplete_ZeroMatchesLeavesBufferUnchanged(t *testing.T) {
	e := New(DefaultCommands(), &fakeCatalog{})

	for _, input := range []string{"XYZ", "g28", "", "G1 X"} {
		res := e.Complete(input, len(input))
		require.Equal(t, input, res.Line, input)
		require.Equal(t, len(input), res.Cursor, input)
		require.Empty(t, res.Candidates, input)
	}
}

func TestComplete_FirstTokenIsCaseSensitiveAndIncludesMacros(t *testing.T) {
	e := New(DefaultCommands(), &fakeCatalog{macros: []string{"PRINT_START", "PARK"}})

	res := e.Complete("PR", 2)
	require.Equal(t, "PRINT_START", res.Line)
	require.Equal(t, Macro, res.Candidates[0].Source)

	res = e.Complete("pr", 2)
	require.Equal(t, "print ", res.Line)
	require.Equal(t, BuiltinCommand, res.Candidates[0].Source)
}

func TestComplete_PreservesTextAfterCursor(t *testing.T) {
	e := New(DefaultCommands(), nil)
	res := e.Complete("G2 X10", 2)
	require.Equal(t, "G28 X10", res.Line)
	require.Equal(t, 3, res.Cursor)
}

func TestComplete_FileArguments(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cat := &fakeCatalog{files: []files.File{
		{Path: "a_calib.gcode", Modified: now},
		{Path: "b_calib.gcode", Modified: now.Add(time.Hour)},
		{Path: "Benchy.gcode", Modified: now.Add(-time.Hour)},
	}}
	lookups := 0
	e := New(DefaultCommands(), cat)
	e.OnFileLookup = func() { lookups++ }

	res := e.Complete("print ben", 9)
	require.Equal(t, "print Benchy.gcode", res.Line, "case-insensitive prefix")
	require.Equal(t, RemoteFile, res.Candidates[0].Source)

	res = e.Complete("info test", 9)
	require.Equal(t, "info test", res.Line)
	require.Empty(t, res.Candidates)

	res = e.Complete("print calib", 11)
	require.Equal(t, "print calib", res.Line, "substring matches do not extend a prefix they do not share")
	require.Equal(t, []string{"b_calib.gcode", "a_calib.gcode"}, texts(res.Candidates))

	res = e.Complete("PRINT b_", 8)
	require.Equal(t, "PRINT b_", res.Line, "file commands match case-sensitively")
	require.Empty(t, res.Candidates)

	res = e.Complete("print ", 6)
	require.Len(t, res.Candidates, 3)

	require.Equal(t, 4, lookups)
}

func TestComplete_FileIDResolvesThroughIndex(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []files.File{
		{Path: "a_calib.gcode", Modified: now},
		{Path: "b_calib.gcode", Modified: now.Add(time.Hour)},
		{Path: "c_test.gcode", Modified: now.Add(2 * time.Hour)},
	}
	cat := &fakeCatalog{files: list, index: files.Build(list, "*calib*")}
	e := New(DefaultCommands(), cat)

	res := e.Complete("print #0", 8)
	require.Equal(t, "print b_calib.gcode", res.Line)

	res = e.Complete("print #5", 8)
	require.Equal(t, "print #5", res.Line)
}

func TestComplete_NonFileCommandArgumentsAreLeftAlone(t *testing.T) {
	e := New(DefaultCommands(), &fakeCatalog{files: []files.File{{Path: "x.gcode"}}})
	res := e.Complete("ls x", 4)
	require.Equal(t, "ls x", res.Line)
}

func TestLongestCommonPrefix(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{"M104"}, "M104"},
		{[]string{"M104", "M105", "M109"}, "M10"},
		{[]string{"abc", "xyz"}, ""},
		{[]string{"über_a", "über_b"}, "über_"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, LongestCommonPrefix(tt.in))
	}
}
