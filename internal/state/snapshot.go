package state

import (
	"math"
	"time"
)

// DeviceState is the coarse printer state shown in the status panel.
type DeviceState int

const (
	Disconnected DeviceState = iota
	Idle
	Printing
	Paused
	Error
)

func (s DeviceState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Printing:
		return "Printing"
	case Paused:
		return "Paused"
	case Error:
		return "Error"
	default:
		return "Disconnected"
	}
}

// DeviceStateFromJob maps a print_stats.state value onto DeviceState.
func DeviceStateFromJob(job string) DeviceState {
	switch job {
	case "printing":
		return Printing
	case "paused":
		return Paused
	case "error":
		return Error
	default:
		return Idle
	}
}

// ConnState tracks the notification channel.
type ConnState int

const (
	ConnDisconnected ConnState = iota
	ConnConnecting
	ConnSubscribed
	ConnDegraded
	ConnReconnecting
	ConnRejected
)

func (c ConnState) String() string {
	switch c {
	case ConnConnecting:
		return "Connecting"
	case ConnSubscribed:
		return "Subscribed"
	case ConnDegraded:
		return "Degraded"
	case ConnReconnecting:
		return "Reconnecting"
	case ConnRejected:
		return "Rejected"
	default:
		return "Disconnected"
	}
}

// Reading is a measurement that may not have been reported yet. An unknown
// reading is distinct from a zero reading.
type Reading struct {
	Value float64
	Valid bool
}

// Known wraps a reported value.
func Known(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Heater holds one heater's temperatures in Celsius and its PWM duty in [0,1].
type Heater struct {
	Current Reading
	Target  Reading
	Power   Reading
}

// Position is the toolhead position in millimetres.
type Position struct {
	X, Y, Z float64
	Valid   bool
}

// Field groups snapshot values by the printer object that reports them. Stale
// flags are tracked per group.
type Field uint16

const (
	FieldJob Field = 1 << iota
	FieldProgress
	FieldNozzle
	FieldBed
	FieldPosition
	FieldMotion

	AllFields = FieldJob | FieldProgress | FieldNozzle | FieldBed | FieldPosition | FieldMotion
)

// Snapshot is an immutable view of the printer. The Store replaces it wholesale
// on every change.
type Snapshot struct {
	State    DeviceState
	JobState string
	Filename string
	Message  string

	// Progress is always within [0,1].
	Progress      float64
	Elapsed       time.Duration
	PrintDuration time.Duration
	FilamentUsed  Reading

	Nozzle Heater
	Bed    Heater

	Position  Position
	HomedAxes string
	Speed     Reading
	Flow      Reading

	KlippyState string

	Conn                ConnState
	ConnErr             string
	ConsecutiveFailures int

	Stale       Field
	LastUpdated time.Time
}

// IsStale reports whether any field in f has not been refreshed since the last
// reconnect.
func (s Snapshot) IsStale(f Field) bool {
	return s.Stale&f != 0
}

// IsOffline is true once the channel has failed more than once in a row.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Remaining estimates the time left in the current job from progress and print
// duration. It returns false when no estimate is possible.
func (s Snapshot) Remaining() (time.Duration, bool) {
	if s.Progress <= 0 || s.PrintDuration <= 0 {
		return 0, false
	}
	if s.Progress >= 1 {
		return 0, true
	}
	total := float64(s.PrintDuration) / s.Progress
	return time.Duration(total) - s.PrintDuration, true
}

func clampProgress(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

func seconds(v float64) time.Duration {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
