package ui

import (
	"strings"

	"github.com/five82/moonterm/internal/events"
)

// console is the scrollback buffer. It keeps at most limit lines.
type console struct {
	lines []events.Event
	limit int
}

func newConsole(limit int) *console {
	if limit <= 0 {
		limit = 1000
	}
	return &console{limit: limit}
}

func (c *console) add(evs ...events.Event) {
	c.lines = append(c.lines, evs...)
	if over := len(c.lines) - c.limit; over > 0 {
		c.lines = append(c.lines[:0], c.lines[over:]...)
	}
}

func (c *console) len() int {
	return len(c.lines)
}

// render formats every line for the viewport.
func (c *console) render(styles Styles, timestamps bool) string {
	var b strings.Builder
	for i, ev := range c.lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if timestamps {
			b.WriteString(styles.FaintText.Render(ev.Time.Format("15:04:05")))
			b.WriteByte(' ')
		}
		b.WriteString(formatEvent(styles, ev))
	}
	return b.String()
}

func formatEvent(styles Styles, ev events.Event) string {
	switch ev.Kind {
	case events.KindEcho:
		return styles.AccentText.Render("> " + ev.Text)
	case events.KindError:
		return styles.DangerText.Render(ev.Text)
	case events.KindNotice:
		return styles.WarningText.Render(ev.Text)
	case events.KindOutput:
		return styles.Text.Render(ev.Text)
	default:
		return styles.MutedText.Render(ev.Text)
	}
}
