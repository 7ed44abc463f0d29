package ui

import (
	"fmt"
	"strings"

	"github.com/five82/moonterm/internal/commands"
	"github.com/five82/moonterm/internal/state"
)

// statusHeight is the number of rows renderStatus produces.
const statusHeight = 3

// renderStatus renders the printer status panel. Values not refreshed since
// the last reconnect are drawn faint.
func (m Model) renderStatus() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)
	sep := bg.Spaces(2)
	snap := m.snapshot

	// field picks the faint style for stale groups.
	field := func(f state.Field, text string) string {
		if snap.IsStale(f) {
			return bg.Render(text, styles.FaintText)
		}
		return bg.Render(text, styles.Text)
	}
	label := func(text string) string {
		return bg.Render(text, styles.MutedText)
	}

	// Row 1: identity, device state and connection.
	head := []string{
		bg.Render("moonterm", styles.Logo),
		bg.Render(m.address, styles.MutedText),
		styles.StateStyle(snap.State.String()).Render(snap.State.String()),
		m.renderConn(styles, bg),
	}
	if snap.KlippyState != "" && snap.KlippyState != "ready" {
		head = append(head, bg.Render("klippy "+snap.KlippyState, styles.WarningText))
	}

	// Row 2: job.
	var job []string
	if snap.Filename != "" {
		job = append(job, label("File")+bg.Spaces(1)+field(state.FieldJob, truncateMiddle(snap.Filename, 40)))
		m.progress.Width = clamp(m.width/4, 10, 40)
		bar := m.progress.ViewAs(snap.Progress)
		if snap.IsStale(state.FieldProgress) {
			bar = bg.Render(fmt.Sprintf("%3.0f%%", snap.Progress*100), styles.FaintText)
		}
		job = append(job, bar)
		elapsed := commands.FormatDuration(snap.PrintDuration)
		if rem, ok := snap.Remaining(); ok {
			elapsed += " / " + commands.FormatDuration(rem) + " left"
		}
		job = append(job, label("Time")+bg.Spaces(1)+field(state.FieldProgress, elapsed))
	} else {
		job = append(job, label("No active job"))
	}
	if snap.Message != "" {
		job = append(job, bg.Render(truncateMiddle(snap.Message, 40), styles.InfoText))
	}

	// Row 3: machine.
	machine := []string{
		label("Nozzle") + bg.Spaces(1) + field(state.FieldNozzle, formatHeater(snap.Nozzle)),
		label("Bed") + bg.Spaces(1) + field(state.FieldBed, formatHeater(snap.Bed)),
		label("Pos") + bg.Spaces(1) + field(state.FieldPosition, formatPosition(snap.Position, snap.HomedAxes)),
		label("Speed") + bg.Spaces(1) + field(state.FieldMotion, formatFactor(snap.Speed)),
		label("Flow") + bg.Spaces(1) + field(state.FieldMotion, formatFactor(snap.Flow)),
	}
	if snap.FilamentUsed.Valid && snap.FilamentUsed.Value > 0 {
		machine = append(machine, label("Filament")+bg.Spaces(1)+
			field(state.FieldJob, fmt.Sprintf("%.2f m", snap.FilamentUsed.Value/1000)))
	}

	rows := []string{
		bg.FillLine(bg.Join(head, sep), m.width),
		bg.FillLine(bg.Join(job, sep), m.width),
		bg.FillLine(bg.Join(machine, sep), m.width),
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderConn(styles Styles, bg BgStyle) string {
	snap := m.snapshot
	switch snap.Conn {
	case state.ConnSubscribed:
		return bg.Render("● live", styles.SuccessText)
	case state.ConnConnecting, state.ConnReconnecting:
		text := snap.Conn.String() + "..."
		if snap.IsOffline() {
			text = "offline, " + strings.ToLower(text)
		}
		return bg.Render(m.spinner.View()+" "+text, styles.WarningText)
	case state.ConnRejected:
		return bg.Render("rejected: "+truncateMiddle(snap.ConnErr, 50), styles.DangerText)
	case state.ConnDegraded:
		return bg.Render("degraded: "+truncateMiddle(snap.ConnErr, 50), styles.WarningText)
	default:
		return bg.Render("● disconnected", styles.DangerText)
	}
}

func formatHeater(h state.Heater) string {
	if !h.Current.Valid {
		return "--"
	}
	if h.Target.Valid && h.Target.Value > 0 {
		return fmt.Sprintf("%.1f/%.0f°C", h.Current.Value, h.Target.Value)
	}
	return fmt.Sprintf("%.1f°C", h.Current.Value)
}

func formatPosition(p state.Position, homed string) string {
	if !p.Valid {
		return "--"
	}
	s := fmt.Sprintf("X%.2f Y%.2f Z%.2f", p.X, p.Y, p.Z)
	if homed == "" {
		s += " (unhomed)"
	}
	return s
}

func formatFactor(r state.Reading) string {
	if !r.Valid {
		return "--"
	}
	return fmt.Sprintf("%.0f%%", r.Value*100)
}

func truncateMiddle(s string, max int) string {
	r := []rune(s)
	if max < 5 || len(r) <= max {
		return s
	}
	half := (max - 1) / 2
	return string(r[:half]) + "…" + string(r[len(r)-(max-1-half):])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
