package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the terminal's key bindings. Printable keys that are not
// bound here are inserted into the input line.
type keyMap struct {
	Quit       key.Binding
	Submit     key.Binding
	Complete   key.Binding
	Backspace  key.Binding
	Delete     key.Binding
	Left       key.Binding
	Right      key.Binding
	Home       key.Binding
	End        key.Binding
	ClearLine  key.Binding
	Previous   key.Binding
	Next       key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Help       key.Binding
	CycleTheme key.Binding
	Timestamps key.Binding
}

// defaultKeyMap returns the default key bindings.
func defaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+d", "ctrl+c"),
			key.WithHelp("esc/ctrl+d", "quit"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Complete: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "complete"),
		),
		Backspace: key.NewBinding(key.WithKeys("backspace", "ctrl+h")),
		Delete:    key.NewBinding(key.WithKeys("delete")),
		Left:      key.NewBinding(key.WithKeys("left", "ctrl+b")),
		Right:     key.NewBinding(key.WithKeys("right", "ctrl+f")),
		Home:      key.NewBinding(key.WithKeys("home", "ctrl+a")),
		End:       key.NewBinding(key.WithKeys("end", "ctrl+e")),
		ClearLine: key.NewBinding(key.WithKeys("ctrl+u")),
		Previous: key.NewBinding(
			key.WithKeys("up", "ctrl+p"),
			key.WithHelp("↑/↓", "history"),
		),
		Next: key.NewBinding(key.WithKeys("down", "ctrl+n")),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("pgup/pgdn", "scroll"),
		),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		CycleTheme: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("ctrl+t", "theme"),
		),
		Timestamps: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "timestamps"),
		),
	}
}

// footer lists the bindings shown under the input line.
func (k keyMap) footer() []key.Binding {
	return []key.Binding{k.Submit, k.Complete, k.Previous, k.PageUp, k.Help, k.CycleTheme, k.Quit}
}
