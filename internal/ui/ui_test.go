package ui

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/history"
	"github.com/five82/moonterm/internal/moonraker"
	"github.com/five82/moonterm/internal/prefs"
	"github.com/five82/moonterm/internal/session"
	"github.com/five82/moonterm/internal/state"
)

type fixedStore struct{ snap state.Snapshot }

func (f fixedStore) Snapshot() state.Snapshot { return f.snap }

type recordingForwarder struct{ lines []string }

func (r *recordingForwarder) Forward(_ context.Context, line string) *gateway.Record {
	r.lines = append(r.lines, line)
	return nil
}

func newTestModel(t *testing.T, opts Options) Model {
	t.Helper()
	if opts.PrefsPath == "" {
		opts.PrefsPath = filepath.Join(t.TempDir(), "prefs.toml")
	}
	m := New(opts)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model)
}

func press(m Model, msgs ...tea.KeyMsg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestTick_DrainsQueueAndCopiesSnapshot(t *testing.T) {
	q := events.NewQueue(8, nil)
	q.Console("ok")
	q.Console("!! Move out of range")
	store := fixedStore{state.Snapshot{State: state.Printing, Filename: "cube.gcode"}}

	m := newTestModel(t, Options{Queue: q, Store: store})
	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	if cmd == nil {
		t.Fatalf("tick should schedule the next tick")
	}
	if m.console.len() != 2 {
		t.Fatalf("console lines = %d, want 2", m.console.len())
	}
	if m.snapshot.Filename != "cube.gcode" {
		t.Fatalf("snapshot filename = %q, want cube.gcode", m.snapshot.Filename)
	}
	if view := m.View(); !strings.Contains(view, "Move out of range") || !strings.Contains(view, "Printing") {
		t.Fatalf("view missing console or state:\n%s", view)
	}
}

func TestTick_ReportsDroppedLines(t *testing.T) {
	q := events.NewQueue(1, nil)
	q.Console("a")
	q.Console("b")
	q.Console("c")

	m := newTestModel(t, Options{Queue: q})
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	last := m.console.lines[m.console.len()-1]
	if last.Kind != events.KindNotice || last.Text != "2 console lines dropped" {
		t.Fatalf("last line = %+v, want dropped notice", last)
	}
}

func TestTick_QuitsWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestModel(t, Options{Context: ctx})
	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("cmd returned %T, want tea.QuitMsg", cmd())
	}
}

func TestKeys_TypeAndSubmit(t *testing.T) {
	fwd := &recordingForwarder{}
	sess := session.New(history.New(10), nil, fwd)
	m := newTestModel(t, Options{Session: sess})

	m, _ = press(m, runes("G2"), runes("8"), tea.KeyMsg{Type: tea.KeySpace}, runes("X"))
	if got := sess.Text(); got != "G28 X" {
		t.Fatalf("buffer = %q, want %q", got, "G28 X")
	}
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyLeft}, tea.KeyMsg{Type: tea.KeyBackspace})
	if got := sess.Text(); got != "G28X" {
		t.Fatalf("buffer = %q, want %q", got, "G28X")
	}
	press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(fwd.lines) != 1 || fwd.lines[0] != "G28X" {
		t.Fatalf("forwarded = %q, want [G28X]", fwd.lines)
	}
	if !sess.Empty() {
		t.Fatalf("buffer should be cleared after submit")
	}
}

func TestKeys_HistoryNavigation(t *testing.T) {
	h := history.New(10)
	h.Append("G28")
	h.Append("M114")
	sess := session.New(h, nil, nil)
	m := newTestModel(t, Options{Session: sess})

	press(m, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyUp})
	if got := sess.Text(); got != "G28" {
		t.Fatalf("buffer = %q, want G28", got)
	}
	press(m, tea.KeyMsg{Type: tea.KeyDown})
	if got := sess.Text(); got != "M114" {
		t.Fatalf("buffer = %q, want M114", got)
	}
}

func TestKeys_QuestionMarkOnEmptyLineShowsHelp(t *testing.T) {
	called := 0
	sess := session.New(nil, nil, nil)
	m := newTestModel(t, Options{Session: sess, Help: func() { called++ }})

	m, _ = press(m, runes("?"))
	if called != 1 || !sess.Empty() {
		t.Fatalf("help called %d times, buffer %q; want help and empty buffer", called, sess.Text())
	}
	press(m, runes("M"), runes("?"))
	if called != 1 || sess.Text() != "M?" {
		t.Fatalf("help called %d times, buffer %q; want ? inserted", called, sess.Text())
	}
}

func TestKeys_QuitBindings(t *testing.T) {
	for _, k := range []tea.KeyType{tea.KeyEsc, tea.KeyCtrlD, tea.KeyCtrlC} {
		m := newTestModel(t, Options{})
		_, cmd := press(m, tea.KeyMsg{Type: k})
		if cmd == nil {
			t.Fatalf("%v: expected quit", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%v: cmd returned %T, want tea.QuitMsg", k, cmd())
		}
	}
}

func TestKeys_CycleThemeAndTimestampsSavePrefs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.toml")
	m := newTestModel(t, Options{PrefsPath: path, Prefs: prefs.Prefs{Theme: "Dracula"}})

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.theme.Name != "Nord" {
		t.Fatalf("theme = %q, want Nord", m.theme.Name)
	}
	press(m, tea.KeyMsg{Type: tea.KeyCtrlS})

	p := prefs.Load(path)
	if p.Theme != "Nord" || !p.Timestamps {
		t.Fatalf("saved prefs = %+v, want Nord with timestamps", p)
	}
}

func TestKeys_TabListsCandidates(t *testing.T) {
	q := events.NewQueue(8, nil)
	sess := session.New(nil, nil, nil)
	m := newTestModel(t, Options{Session: sess, Queue: q})
	m, _ = press(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.console.len() != 0 {
		t.Fatalf("console lines = %d, want none without an engine", m.console.len())
	}
}

type okCaller struct{}

func (okCaller) Call(context.Context, moonraker.Call) (json.RawMessage, error) {
	return json.RawMessage(`"ok"`), nil
}

func TestRecordDone_ReportsFailures(t *testing.T) {
	gw := gateway.New(okCaller{}, gateway.Options{})
	ok := gw.Submit("M114")
	gw.Await(context.Background(), ok, 2*time.Second)
	gw.Close()
	closed := gw.Submit("G28")

	m := newTestModel(t, Options{Gateway: gw})
	next, _ := m.Update(recordDoneMsg{rec: ok})
	m = next.(Model)
	if m.console.len() != 0 {
		t.Fatalf("acknowledged record should print nothing")
	}
	next, _ = m.Update(recordDoneMsg{rec: closed})
	m = next.(Model)
	if m.console.len() != 1 {
		t.Fatalf("console lines = %d, want 1", m.console.len())
	}
	got := m.console.lines[0]
	if got.Kind != events.KindError || got.Text != "G28: session closed" {
		t.Fatalf("line = %+v, want error %q", got, "G28: session closed")
	}
}

func TestAwaitCmd_ReturnsRecord(t *testing.T) {
	gw := gateway.New(okCaller{}, gateway.Options{})
	defer gw.Close()
	rec := gw.Submit("M105")

	m := newTestModel(t, Options{Gateway: gw})
	msg := m.awaitCmd(rec)()
	done, ok := msg.(recordDoneMsg)
	if !ok || done.rec != rec {
		t.Fatalf("msg = %#v, want recordDoneMsg for the record", msg)
	}
	if rec.State() != gateway.Acknowledged {
		t.Fatalf("state = %v, want acknowledged", rec.State())
	}
}

func TestConsole_KeepsNewestLines(t *testing.T) {
	c := newConsole(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		c.add(events.Event{Kind: events.KindConsole, Text: s})
	}
	if c.len() != 3 || c.lines[0].Text != "c" || c.lines[2].Text != "e" {
		t.Fatalf("lines = %+v, want c..e", c.lines)
	}
}

func TestConsole_RenderTimestampsAndEcho(t *testing.T) {
	c := newConsole(10)
	at := time.Date(2026, 1, 2, 13, 4, 5, 0, time.Local)
	c.add(events.Event{Kind: events.KindEcho, Text: "G28", Time: at})
	styles := GetTheme("Dracula").Styles()

	if got := c.render(styles, false); !strings.Contains(got, "> G28") {
		t.Fatalf("render = %q, want echo prefix", got)
	}
	if got := c.render(styles, true); !strings.Contains(got, "13:04:05") {
		t.Fatalf("render = %q, want timestamp", got)
	}
}

func TestStatusFormatting(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"unknown heater", formatHeater(state.Heater{}), "--"},
		{"heater off", formatHeater(state.Heater{Current: state.Known(24.56), Target: state.Known(0)}), "24.6°C"},
		{"heater on", formatHeater(state.Heater{Current: state.Known(199.94), Target: state.Known(215)}), "199.9/215°C"},
		{"no position", formatPosition(state.Position{}, ""), "--"},
		{"position", formatPosition(state.Position{X: 1, Y: 2.5, Z: 0.2, Valid: true}, "xyz"), "X1.00 Y2.50 Z0.20"},
		{"unhomed", formatPosition(state.Position{Valid: true}, ""), "X0.00 Y0.00 Z0.00 (unhomed)"},
		{"factor", formatFactor(state.Known(1.1)), "110%"},
		{"no factor", formatFactor(state.Reading{}), "--"},
		{"short", truncateMiddle("cube.gcode", 20), "cube.gcode"},
		{"long", truncateMiddle("abcdefghijkl", 7), "abc…jkl"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestRenderStatus_ConnectionStates(t *testing.T) {
	tests := []struct {
		snap state.Snapshot
		want string
	}{
		{state.Snapshot{Conn: state.ConnSubscribed}, "live"},
		{state.Snapshot{Conn: state.ConnReconnecting, ConsecutiveFailures: 3}, "offline, reconnecting..."},
		{state.Snapshot{Conn: state.ConnRejected, ConnErr: "Unauthorized"}, "rejected: Unauthorized"},
		{state.Snapshot{Conn: state.ConnSubscribed, Filename: "benchy.gcode", Progress: 0.5, PrintDuration: time.Hour}, "1h 00m left"},
	}
	for _, tt := range tests {
		m := newTestModel(t, Options{})
		m.snapshot = tt.snap
		if got := m.renderStatus(); !strings.Contains(got, tt.want) {
			t.Fatalf("renderStatus() missing %q:\n%s", tt.want, got)
		}
	}
}

func TestNextTheme(t *testing.T) {
	if got := NextTheme("Dracula"); got != "Nord" {
		t.Fatalf("NextTheme(Dracula) = %q, want Nord", got)
	}
	if got := NextTheme("Slate"); got != "Dracula" {
		t.Fatalf("NextTheme(Slate) = %q, want Dracula", got)
	}
	if got := NextTheme("missing"); got != "Dracula" {
		t.Fatalf("NextTheme(missing) = %q, want Dracula", got)
	}
	if GetTheme("missing").Name != "Dracula" {
		t.Fatalf("GetTheme should fall back to Dracula")
	}
	if len(ThemeNames()) != 3 {
		t.Fatalf("ThemeNames = %v, want 3 themes", ThemeNames())
	}
}
