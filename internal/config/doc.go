// Package config loads moonterm's TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/moonterm/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing or empty, keep the defaults
//
// # TOML Format
//
//	host = "127.0.0.1"
//	port = 7125
//	api_key = ""
//	history_file = "~/.local/state/moonterm/history"
//	history_size = 1000
//	print_history_db = "~/.local/state/moonterm/prints.db"
//	log_file = "~/.local/state/moonterm/moonterm.log"   # "" disables logging
//	log_level = "info"
//	update_interval = "100ms"
//	long_commands = ["G28", "M109", "M190"]
//	ack_on_send = ["FIRMWARE_RESTART", "RESTART", "SAVE_CONFIG"]
//
//	[timeouts]
//	command = "30s"
//	long_command = "2m"
//	query = "5s"
//
//	[reconnect]
//	initial = "1s"
//	max = "30s"
//
//	[console]
//	filter_patterns = ["// pressure_advance:", "// SYNC TIME"]
//	filter_ok = false
//	scrollback = 1000
//
// Durations are Go duration strings. Paths accept a leading tilde.
//
// # Errors
//
// Invalid values are reported as *Error, which callers treat as fatal at startup
// only. Validate must be called after command-line overrides are applied and
// before any connection attempt.
//
// The returned Config is a plain value. No global state or singleton patterns are
// used; the composition root hands copies to each component.
package config
