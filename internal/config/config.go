package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the fully resolved runtime configuration. It is built once at startup
// and passed down by value; nothing in the program mutates it afterwards.
type Config struct {
	Host   string
	Port   int
	APIKey string

	HistoryFile    string
	HistorySize    int
	PrintHistoryDB string

	LogFile  string
	LogLevel string

	UpdateInterval time.Duration

	CommandTimeout     time.Duration
	LongCommandTimeout time.Duration
	QueryTimeout       time.Duration

	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	FilterPatterns []string
	FilterOK       bool
	Scrollback     int

	LongCommands []string
	AckOnSend    []string
}

const (
	defaultConfigPath     = "~/.config/moonterm/config.toml"
	defaultHost           = "127.0.0.1"
	defaultPort           = 7125
	defaultHistoryFile    = "~/.local/state/moonterm/history"
	defaultHistorySize    = 1000
	defaultPrintHistoryDB = "~/.local/state/moonterm/prints.db"
	defaultLogFile        = "~/.local/state/moonterm/moonterm.log"
	defaultLogLevel       = "info"
	defaultScrollback     = 1000

	defaultUpdateInterval     = 100 * time.Millisecond
	defaultCommandTimeout     = 30 * time.Second
	defaultLongCommandTimeout = 2 * time.Minute
	defaultQueryTimeout       = 5 * time.Second
	defaultReconnectInitial   = time.Second
	defaultReconnectMax       = 30 * time.Second
)

var (
	defaultFilterPatterns = []string{"// pressure_advance:", "// SYNC TIME"}
	defaultLongCommands   = []string{
		"G28", "G29", "M109", "M190", "BED_MESH_CALIBRATE", "PROBE_CALIBRATE",
		"QUAD_GANTRY_LEVEL", "Z_TILT_ADJUST", "SCREWS_TILT_CALCULATE", "PID_CALIBRATE",
	}
	defaultAckOnSend = []string{"FIRMWARE_RESTART", "RESTART", "SAVE_CONFIG"}
)

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Host:               defaultHost,
		Port:               defaultPort,
		HistoryFile:        mustExpand(defaultHistoryFile),
		HistorySize:        defaultHistorySize,
		PrintHistoryDB:     mustExpand(defaultPrintHistoryDB),
		LogFile:            mustExpand(defaultLogFile),
		LogLevel:           defaultLogLevel,
		UpdateInterval:     defaultUpdateInterval,
		CommandTimeout:     defaultCommandTimeout,
		LongCommandTimeout: defaultLongCommandTimeout,
		QueryTimeout:       defaultQueryTimeout,
		ReconnectInitial:   defaultReconnectInitial,
		ReconnectMax:       defaultReconnectMax,
		FilterPatterns:     append([]string(nil), defaultFilterPatterns...),
		Scrollback:         defaultScrollback,
		LongCommands:       append([]string(nil), defaultLongCommands...),
		AckOnSend:          append([]string(nil), defaultAckOnSend...),
	}
}

type rawConfig struct {
	Host           string  `toml:"host"`
	Port           int     `toml:"port"`
	APIKey         string  `toml:"api_key"`
	HistoryFile    string  `toml:"history_file"`
	HistorySize    int     `toml:"history_size"`
	PrintHistoryDB string  `toml:"print_history_db"`
	LogFile        *string `toml:"log_file"`
	LogLevel       string  `toml:"log_level"`
	UpdateInterval string  `toml:"update_interval"`

	Timeouts struct {
		Command     string `toml:"command"`
		LongCommand string `toml:"long_command"`
		Query       string `toml:"query"`
	} `toml:"timeouts"`

	Reconnect struct {
		Initial string `toml:"initial"`
		Max     string `toml:"max"`
	} `toml:"reconnect"`

	Console struct {
		FilterPatterns []string `toml:"filter_patterns"`
		FilterOK       bool     `toml:"filter_ok"`
		Scrollback     int      `toml:"scrollback"`
	} `toml:"console"`

	LongCommands []string `toml:"long_commands"`
	AckOnSend    []string `toml:"ack_on_send"`
}

// Load locates and parses the config file, falling back to defaults when missing.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if host := strings.TrimSpace(raw.Host); host != "" {
		cfg.Host = host
	}
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	cfg.APIKey = strings.TrimSpace(raw.APIKey)
	if p := strings.TrimSpace(raw.HistoryFile); p != "" {
		cfg.HistoryFile = mustExpand(p)
	}
	if raw.HistorySize > 0 {
		cfg.HistorySize = raw.HistorySize
	}
	if p := strings.TrimSpace(raw.PrintHistoryDB); p != "" {
		cfg.PrintHistoryDB = mustExpand(p)
	}
	// An explicitly empty log_file disables logging.
	if raw.LogFile != nil {
		if p := strings.TrimSpace(*raw.LogFile); p != "" {
			cfg.LogFile = mustExpand(p)
		} else {
			cfg.LogFile = ""
		}
	}
	if lvl := strings.TrimSpace(raw.LogLevel); lvl != "" {
		cfg.LogLevel = strings.ToLower(lvl)
	}

	durations := []struct {
		field string
		value string
		dest  *time.Duration
	}{
		{"update_interval", raw.UpdateInterval, &cfg.UpdateInterval},
		{"timeouts.command", raw.Timeouts.Command, &cfg.CommandTimeout},
		{"timeouts.long_command", raw.Timeouts.LongCommand, &cfg.LongCommandTimeout},
		{"timeouts.query", raw.Timeouts.Query, &cfg.QueryTimeout},
		{"reconnect.initial", raw.Reconnect.Initial, &cfg.ReconnectInitial},
		{"reconnect.max", raw.Reconnect.Max, &cfg.ReconnectMax},
	}
	for _, d := range durations {
		if err := parseDuration(d.field, d.value, d.dest); err != nil {
			return Config{}, err
		}
	}

	if raw.Console.FilterPatterns != nil {
		cfg.FilterPatterns = trimAll(raw.Console.FilterPatterns)
	}
	cfg.FilterOK = raw.Console.FilterOK
	if raw.Console.Scrollback > 0 {
		cfg.Scrollback = raw.Console.Scrollback
	}
	if raw.LongCommands != nil {
		cfg.LongCommands = trimAll(raw.LongCommands)
	}
	if raw.AckOnSend != nil {
		cfg.AckOnSend = trimAll(raw.AckOnSend)
	}

	return cfg, nil
}

// Validate reports the first invalid setting. It runs before any network attempt.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &Error{Field: "host", Reason: "must not be empty"}
	}
	if c.Port < 1 || c.Port > 65535 {
		return &Error{Field: "port", Reason: fmt.Sprintf("%d is outside 1-65535", c.Port)}
	}
	if c.HistorySize <= 0 {
		return &Error{Field: "history_size", Reason: "must be positive"}
	}
	if c.UpdateInterval <= 0 {
		return &Error{Field: "update_interval", Reason: "must be positive"}
	}
	if c.ReconnectInitial <= 0 || c.ReconnectMax < c.ReconnectInitial {
		return &Error{Field: "reconnect", Reason: "initial must be positive and not exceed max"}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &Error{Field: "log_level", Reason: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	return nil
}

// Address returns host:port.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Error is a configuration error. It is only ever fatal at startup.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func parseDuration(field, value string, dest *time.Duration) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return &Error{Field: field, Reason: err.Error()}
	}
	*dest = d
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

// ExpandPath resolves a leading tilde and returns an absolute path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
