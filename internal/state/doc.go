// Package state provides the thread-safe mirror of the printer for moonterm.
//
// # Overview
//
// The supervisor goroutine receives status notifications and merges them into
// a Store; the render loop reads Snapshots on its own tick. The Store is the
// only datum both sides share.
//
//	Writer (supervisor):            Reader (UI tick):
//	notify_status_update            store.Snapshot()
//	  → FromStatus(status)            → render status panel
//	  → store.Apply(update)
//
// # Merge Semantics
//
// Moonraker sends deltas: only changed fields are present. Update carries
// pointer fields, and Apply copies only the non-nil ones into a fresh Snapshot,
// so an absent field keeps its last value rather than being reset.
//
// A value that was never reported is represented by an invalid Reading, never
// by zero. Progress is clamped to [0,1].
//
// # Connection and Staleness
//
// SetConn records the supervisor's state machine. After a reconnect the
// supervisor calls MarkStale(AllFields); each category clears as soon as a
// status update touches it again. Values are kept while stale so the panel can
// show them dimmed.
//
// # Concurrency Model
//
// Store uses a sync.RWMutex held only while copying a value-type Snapshot.
// Snapshot contains no slices or maps, so the copy is complete and readers can
// keep it without synchronization. The zero Store is ready to use.
package state
