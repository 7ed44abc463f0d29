package printlog

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/state"
)

// Appender is the write side of Log.
type Appender interface {
	Append(ctx context.Context, e Entry) error
}

// Tracker watches snapshot transitions and records a print when a running job
// ends as complete or cancelled.
type Tracker struct {
	log     Appender
	logger  *zap.Logger
	timeout time.Duration
	// OnRecord, when set, runs after a successful append.
	OnRecord func(Entry)
}

// NewTracker builds a tracker writing to log.
func NewTracker(log Appender, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{log: log, logger: logger.Named("printlog"), timeout: 2 * time.Second}
}

// Observe is a state change hook. It records at most one entry per transition.
func (t *Tracker) Observe(prev, next state.Snapshot) {
	if t == nil || t.log == nil || prev.JobState == next.JobState {
		return
	}
	if prev.JobState != "printing" && prev.JobState != "paused" {
		return
	}
	var status Status
	switch next.JobState {
	case "complete":
		status = Completed
	case "cancelled":
		status = Cancelled
	default:
		return
	}

	filename := next.Filename
	if filename == "" {
		filename = prev.Filename
	}
	entry := Entry{
		Filename:     filename,
		Duration:     next.PrintDuration,
		FilamentUsed: next.FilamentUsed.Value,
		Status:       status,
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.log.Append(ctx, entry); err != nil {
		t.logger.Warn("record print failed", zap.String("file", filename), zap.Error(err))
		return
	}
	t.logger.Info("print recorded", zap.String("file", filename), zap.String("status", string(status)))
	if t.OnRecord != nil {
		t.OnRecord(entry)
	}
}
