// Package ui provides the Bubble Tea terminal: a status panel, the console
// scrollback and the input line.
//
// The model never blocks. A fixed tick copies the latest snapshot out of the
// state store and drains the event queue; command records are awaited inside
// tea.Cmd goroutines and reported back as messages. Key presses edit the
// session's input buffer, and Enter hands the line to the session, which
// forwards it to the command router.
//
// Preferences (theme and timestamps) are saved whenever the operator changes
// them; a failed save is logged and otherwise ignored.
package ui
