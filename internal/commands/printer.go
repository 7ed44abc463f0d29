package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/moonraker"
	"github.com/five82/moonterm/internal/printlog"
)

const (
	methodPause  = moonraker.MethodPrintPause
	methodResume = moonraker.MethodPrintResume
	methodCancel = moonraker.MethodPrintCancel
)

// zOffset handles "z +0.05", "z -0.02" and "z save".
func (r *Router) zOffset(args []string) *gateway.Record {
	if len(args) != 1 {
		r.fail("Usage: z <+N|-N|save>")
		return nil
	}
	if strings.EqualFold(args[0], "save") {
		return r.gw.Submit("Z_OFFSET_APPLY_PROBE")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil || v == 0 {
		r.fail("Invalid Z adjustment: %s", args[0])
		return nil
	}
	return r.gw.Submit(fmt.Sprintf("SET_GCODE_OFFSET Z_ADJUST=%s MOVE=1", strconv.FormatFloat(v, 'f', -1, 64)))
}

// history lists recorded prints, newest first.
func (r *Router) history(ctx context.Context) {
	if r.prints == nil {
		r.fail("Print history is unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, localTimeout)
	defer cancel()
	entries, err := r.prints.Recent(ctx, historyLimit)
	if err != nil {
		r.fail("Print history: %v", err)
		return
	}
	r.out.Output(formatHistory(entries))
}

func formatHistory(entries []printlog.Entry) string {
	if len(entries) == 0 {
		return "No prints recorded"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		mark := "✓"
		if e.Status != printlog.Completed {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s  %s  %s", mark, e.RecordedAt.Local().Format("2006-01-02 15:04"), e.Filename, FormatDuration(e.Duration))
		if e.FilamentUsed > 0 {
			fmt.Fprintf(&b, "  %.2f m", e.FilamentUsed/1000)
		}
	}
	return b.String()
}

type helpLine struct{ key, desc string }

var (
	helpLocal = []helpLine{
		{"ls [-l] [glob]", "List files, newest first, as #N"},
		{"print <file|#N>", "Start a print"},
		{"reprint", "Print the last file again"},
		{"info <file|#N>", "Show file metadata"},
		{"history", "Recent prints"},
		{"z +N|-N|save", "Nudge or save the Z offset"},
		{"pause/resume", "Pause or resume the print"},
		{"cancel", "Cancel the print"},
	}
	helpGCode = []helpLine{
		{"G28", "Home all axes"},
		{"G28 X Y", "Home X and Y"},
		{"M104 S200", "Set hotend to 200°C"},
		{"M109 S200", "Set hotend and wait"},
		{"M140 S60", "Set bed to 60°C"},
		{"M190 S60", "Set bed and wait"},
		{"M106 S255", "Fan on (full)"},
		{"M107", "Fan off"},
		{"M114", "Current position"},
		{"M115", "Firmware info"},
	}
	helpKeys = []helpLine{
		{"?", "Help (on an empty line)"},
		{"Tab", "Complete"},
		{"Up/Down", "Command history"},
		{"PgUp/PgDn", "Scroll console"},
		{"ctrl+t", "Cycle theme"},
		{"ctrl+s", "Toggle timestamps"},
		{"Esc/ctrl+d", "Quit"},
	}
)

// Help publishes the command reference and the known macros.
func (r *Router) Help() {
	var b strings.Builder
	section := func(title string, lines []helpLine) {
		b.WriteString(title + "\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "  %-16s %s\n", l.key, l.desc)
		}
		b.WriteByte('\n')
	}
	section("Commands:", helpLocal)
	section("Common G-code:", helpGCode)
	if macros := r.catalog.Macros(); len(macros) > 0 {
		b.WriteString("Macros:\n")
		for _, m := range macros {
			b.WriteString("  " + m + "\n")
		}
	} else {
		b.WriteString("(No macros found or unable to query)\n")
	}
	b.WriteByte('\n')
	section("Keys:", helpKeys)
	r.out.Output(strings.TrimRight(b.String(), "\n"))
}

// FormatDuration renders d as "1h 05m", "12m 30s" or "45s".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatBytes renders a file size for display.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func unixTime(v float64) time.Time {
	sec := int64(v)
	return time.Unix(sec, int64((v-float64(sec))*1e9))
}
