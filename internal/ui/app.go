package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/prefs"
	"github.com/five82/moonterm/internal/session"
	"github.com/five82/moonterm/internal/state"
)

// Snapshotter exposes the current printer state.
type Snapshotter interface {
	Snapshot() state.Snapshot
}

// Awaiter waits on command records.
type Awaiter interface {
	Await(ctx context.Context, rec *gateway.Record, timeout time.Duration) gateway.Outcome
}

// Options configures the UI.
type Options struct {
	Context    context.Context
	Store      Snapshotter
	Queue      *events.Queue
	Session    *session.Session
	Gateway    Awaiter
	Help       func()
	Address    string
	Tick       time.Duration
	Scrollback int
	Prefs      prefs.Prefs
	PrefsPath  string
	Logger     *zap.Logger
}

const (
	defaultTick  = 100 * time.Millisecond
	drainPerTick = 512
	// chromeHeight covers the input line and the footer.
	chromeHeight = 2
)

// Model is the root Bubble Tea model. It only ever reads shared state: the
// snapshot is copied out of the store and console lines are drained from the
// queue on each tick.
type Model struct {
	ctx       context.Context
	store     Snapshotter
	queue     *events.Queue
	session   *session.Session
	awaiter   Awaiter
	help      func()
	address   string
	tick      time.Duration
	prefsPath string
	log       *zap.Logger

	keys       keyMap
	theme      Theme
	timestamps bool

	width  int
	height int
	ready  bool

	snapshot state.Snapshot
	console  *console
	dropped  uint64

	viewport viewport.Model
	progress progress.Model
	spinner  spinner.Model
}

// New creates the model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tick := opts.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sess := opts.Session
	if sess == nil {
		sess = session.New(nil, nil, nil)
	}
	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	theme := GetTheme(opts.Prefs.Theme)
	return Model{
		ctx:        ctx,
		store:      opts.Store,
		queue:      opts.Queue,
		session:    sess,
		awaiter:    opts.Gateway,
		help:       opts.Help,
		address:    opts.Address,
		tick:       tick,
		prefsPath:  prefsPath,
		log:        logger.Named("ui"),
		keys:       defaultKeyMap(),
		theme:      theme,
		timestamps: opts.Prefs.Timestamps,
		console:    newConsole(opts.Scrollback),
		progress:   newProgress(theme),
		spinner:    spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func newProgress(t Theme) progress.Model {
	return progress.New(progress.WithSolidFill(t.Success), progress.WithWidth(20))
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tickCmd(m.tick), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := max(m.height-statusHeight-chromeHeight, 1)
		if !m.ready {
			m.viewport = viewport.New(m.width, h)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = h
		}
		m.refreshConsole(true)
		return m, nil

	case tickMsg:
		m.handleTick()
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		return m, tickCmd(m.tick)

	case recordDoneMsg:
		if text, kind, ok := describeOutcome(msg.rec); ok {
			m.appendLines(events.Event{Kind: kind, Text: text, Time: time.Now()})
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}
	var b strings.Builder
	b.WriteString(m.renderStatus())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m *Model) handleTick() {
	if m.store != nil {
		m.snapshot = m.store.Snapshot()
	}
	if evs := m.queue.Drain(drainPerTick); len(evs) > 0 {
		m.appendLines(evs...)
	}
	if d := m.queue.Dropped(); d > m.dropped {
		m.appendLines(events.Event{
			Kind: events.KindNotice,
			Text: fmt.Sprintf("%d console lines dropped", d-m.dropped),
			Time: time.Now(),
		})
		m.dropped = d
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Submit):
		_, rec := m.session.Submit(m.ctx)
		m.viewport.GotoBottom()
		if rec != nil {
			return m, m.awaitCmd(rec)
		}
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		res := m.session.Complete()
		if len(res.Candidates) > 1 {
			names := make([]string, len(res.Candidates))
			for i, c := range res.Candidates {
				names[i] = c.Text
			}
			m.appendLines(events.Event{Kind: events.KindOutput, Text: "Completions: " + strings.Join(names, ", "), Time: time.Now()})
		}
		return m, nil

	case key.Matches(msg, m.keys.Help) && m.session.Empty():
		if m.help != nil {
			m.help()
		}
		return m, nil

	case key.Matches(msg, m.keys.Backspace):
		m.session.Backspace()
	case key.Matches(msg, m.keys.Delete):
		m.session.Delete()
	case key.Matches(msg, m.keys.Left):
		m.session.Left()
	case key.Matches(msg, m.keys.Right):
		m.session.Right()
	case key.Matches(msg, m.keys.Home):
		m.session.Home()
	case key.Matches(msg, m.keys.End):
		m.session.End()
	case key.Matches(msg, m.keys.ClearLine):
		m.session.Clear()
	case key.Matches(msg, m.keys.Previous):
		m.session.Previous()
	case key.Matches(msg, m.keys.Next):
		m.session.Next()
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.progress = newProgress(m.theme)
		m.refreshConsole(false)
		m.savePrefs()
	case key.Matches(msg, m.keys.Timestamps):
		m.timestamps = !m.timestamps
		m.refreshConsole(false)
		m.savePrefs()

	case msg.Type == tea.KeyRunes:
		m.session.Insert(string(msg.Runes))
	case msg.Type == tea.KeySpace:
		m.session.Insert(" ")
	}
	return m, nil
}

func (m *Model) savePrefs() {
	if m.prefsPath == "" {
		return
	}
	p := prefs.Prefs{Theme: m.theme.Name, Timestamps: m.timestamps}
	if err := prefs.Save(m.prefsPath, p); err != nil {
		m.log.Warn("save prefs failed", zap.Error(err))
	}
}

func (m *Model) appendLines(evs ...events.Event) {
	m.console.add(evs...)
	m.refreshConsole(false)
}

// refreshConsole re-renders the scrollback, following new output only when
// the operator has not scrolled up.
func (m *Model) refreshConsole(force bool) {
	if !m.ready {
		return
	}
	follow := force || m.viewport.AtBottom()
	m.viewport.SetContent(m.console.render(m.theme.Styles(), m.timestamps))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderInput() string {
	styles := m.theme.Styles()
	text := []rune(m.session.Text())
	cur := min(m.session.Cursor(), len(text))

	under := " "
	if cur < len(text) {
		under = string(text[cur])
	}
	rest := ""
	if cur < len(text) {
		rest = string(text[cur+1:])
	}
	prompt := styles.Input.Foreground(lipgloss.Color(m.theme.Accent)).Render("> ")
	if m.session.Mode() == session.NavigatingHistory {
		prompt = styles.Input.Foreground(lipgloss.Color(m.theme.Muted)).Render("↑ ")
	}
	line := prompt +
		styles.Input.Render(string(text[:cur])) +
		styles.Cursor.Render(under) +
		styles.Input.Render(rest)
	return styles.Input.Width(m.width).Render(line)
}

func (m Model) renderFooter() string {
	styles := m.theme.Styles()
	parts := make([]string, 0, len(m.keys.footer()))
	for _, b := range m.keys.footer() {
		h := b.Help()
		parts = append(parts, styles.AccentText.Render(h.Key)+" "+styles.MutedText.Render(h.Desc))
	}
	return strings.Join(parts, styles.FaintText.Render("  •  "))
}

// describeOutcome turns a finished record into a console line. Acknowledged
// commands print nothing; their output arrives from the printer.
func describeOutcome(rec *gateway.Record) (string, events.Kind, bool) {
	switch rec.State() {
	case gateway.TimedOut:
		return fmt.Sprintf("%s: %s", rec.Text, rec.Reason()), events.KindNotice, true
	case gateway.Failed:
		return fmt.Sprintf("%s: %s", rec.Text, rec.Reason()), events.KindError, true
	case gateway.Pending:
		return fmt.Sprintf("%s: still waiting for a reply", rec.Text), events.KindNotice, true
	default:
		return "", "", false
	}
}

// Messages

type tickMsg time.Time

type recordDoneMsg struct {
	rec *gateway.Record
}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// awaitCmd waits off the update loop for rec, bounded by its own timeout.
func (m Model) awaitCmd(rec *gateway.Record) tea.Cmd {
	aw, ctx := m.awaiter, m.ctx
	return func() tea.Msg {
		if aw != nil {
			aw.Await(ctx, rec, rec.Timeout+time.Second)
		}
		return recordDoneMsg{rec: rec}
	}
}

// Run starts the Bubble Tea program and blocks until the operator quits or ctx
// is cancelled.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
