// Package app is the composition root for moonterm.
//
// # Overview
//
// Run loads configuration, builds every component once and hands them to the
// UI. Nothing here holds global state; the config value is passed down
// explicitly.
//
// # Startup
//
//  1. Load ~/.config/moonterm/config.toml, apply command-line overrides and
//     validate. Invalid settings fail here, before any network attempt.
//  2. Build the file logger (an empty log_file disables logging).
//  3. Load command history. An unreadable file is fatal; a corrupt one is
//     replaced by an empty history and reported in the console.
//  4. Open the print-history database. Failure only disables the history
//     command.
//  5. Wire the HTTP client, state store, event queue, command gateway,
//     catalog, router, completion engine and session.
//  6. Start the connection supervisor and, concurrently, load macros and the
//     file listing.
//  7. Run the UI until the operator quits or the context is cancelled.
//
// # Data Flow
//
//	supervisor goroutine              UI goroutine
//	────────────────────              ────────────
//	websocket ─> state.Store  ──────> Snapshot() on each tick
//	console   ─> gateway.ObserveConsole
//	          ─> events.Queue ──────> Drain() on each tick
//	status    ─> printlog.Tracker
//	                                  keys ─> session ─> commands.Router
//	                                                   ─> gateway ─> HTTP
//
// # Shutdown
//
// The supervisor is stopped and waited for, outstanding command records are
// abandoned, and history is saved. A failed history save is reported on
// stderr but does not change the exit status.
package app
