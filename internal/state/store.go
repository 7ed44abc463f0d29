package state

import (
	"sync"
	"time"
)

// Update is a partial change. Nil fields were not reported and leave the
// current value untouched.
type Update struct {
	State       *DeviceState
	JobState    *string
	Filename    *string
	Message     *string
	KlippyState *string

	Progress      *float64
	Elapsed       *float64 // seconds
	PrintDuration *float64 // seconds
	FilamentUsed  *float64 // millimetres

	NozzleCurrent *float64
	NozzleTarget  *float64
	NozzlePower   *float64
	BedCurrent    *float64
	BedTarget     *float64
	BedPower      *float64

	Position  []float64
	HomedAxes *string
	Speed     *float64
	Flow      *float64
}

// Empty reports whether the update carries nothing.
func (u Update) Empty() bool {
	return u.State == nil && u.JobState == nil && u.Filename == nil && u.Message == nil &&
		u.KlippyState == nil && u.Progress == nil && u.Elapsed == nil && u.PrintDuration == nil &&
		u.FilamentUsed == nil && u.NozzleCurrent == nil && u.NozzleTarget == nil && u.NozzlePower == nil &&
		u.BedCurrent == nil && u.BedTarget == nil && u.BedPower == nil && len(u.Position) == 0 &&
		u.HomedAxes == nil && u.Speed == nil && u.Flow == nil
}

// Store holds the latest snapshot. One writer (the supervisor) and any number of
// readers; the lock is held only while copying.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	now      func() time.Time
}

// NewStore returns an empty store. The zero value is also ready to use.
func NewStore() *Store {
	return &Store{}
}

func (s *Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Apply merges the present fields of u and returns the snapshots before and
// after. Categories touched by u stop being stale.
func (s *Store) Apply(u Update) (prev, next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.snapshot
	next = merge(prev, u)
	next.LastUpdated = s.clock()
	s.snapshot = next
	return prev, next
}

// SetConn records a connection transition. Degraded and Rejected count as
// failures; Subscribed clears the failure count and error. The device State is
// left alone: it only changes when Klipper itself reports a state.
func (s *Store) SetConn(conn ConnState, err error) (prev, next Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.snapshot
	next = prev
	next.Conn = conn
	switch conn {
	case ConnSubscribed:
		next.ConnErr = ""
		next.ConsecutiveFailures = 0
	case ConnDegraded, ConnRejected:
		next.ConsecutiveFailures++
	}
	if err != nil {
		next.ConnErr = err.Error()
	}
	next.LastUpdated = s.clock()
	s.snapshot = next
	return prev, next
}

// MarkStale flags categories whose values predate the current connection.
func (s *Store) MarkStale(fields Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Stale |= fields
}

// Snapshot returns the current value. Snapshot holds no references into the
// store, so callers may keep it.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

func merge(cur Snapshot, u Update) Snapshot {
	next := cur
	var touched Field

	if u.JobState != nil {
		next.JobState = *u.JobState
		next.State = DeviceStateFromJob(*u.JobState)
		touched |= FieldJob
	}
	if u.State != nil {
		next.State = *u.State
		touched |= FieldJob
	}
	if u.Filename != nil {
		next.Filename = *u.Filename
		touched |= FieldJob
	}
	if u.Message != nil {
		next.Message = *u.Message
		touched |= FieldJob
	}
	if u.KlippyState != nil {
		next.KlippyState = *u.KlippyState
	}

	if u.Progress != nil {
		next.Progress = clampProgress(*u.Progress)
		touched |= FieldProgress
	}
	if u.Elapsed != nil {
		next.Elapsed = seconds(*u.Elapsed)
		touched |= FieldProgress
	}
	if u.PrintDuration != nil {
		next.PrintDuration = seconds(*u.PrintDuration)
		touched |= FieldProgress
	}
	if u.FilamentUsed != nil {
		next.FilamentUsed = Known(*u.FilamentUsed)
		touched |= FieldProgress
	}

	if mergeHeater(&next.Nozzle, u.NozzleCurrent, u.NozzleTarget, u.NozzlePower) {
		touched |= FieldNozzle
	}
	if mergeHeater(&next.Bed, u.BedCurrent, u.BedTarget, u.BedPower) {
		touched |= FieldBed
	}

	if len(u.Position) >= 3 {
		next.Position = Position{X: u.Position[0], Y: u.Position[1], Z: u.Position[2], Valid: true}
		touched |= FieldPosition
	}
	if u.HomedAxes != nil {
		next.HomedAxes = *u.HomedAxes
		touched |= FieldPosition
	}
	if u.Speed != nil {
		next.Speed = Known(*u.Speed)
		touched |= FieldMotion
	}
	if u.Flow != nil {
		next.Flow = Known(*u.Flow)
		touched |= FieldMotion
	}

	next.Stale &^= touched
	return next
}

func mergeHeater(h *Heater, current, target, power *float64) bool {
	changed := false
	if current != nil {
		h.Current = Known(*current)
		changed = true
	}
	if target != nil {
		h.Target = Known(*target)
		changed = true
	}
	if power != nil {
		h.Power = Known(*power)
		changed = true
	}
	return changed
}
