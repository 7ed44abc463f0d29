package supervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/moonraker"
	"github.com/five82/moonterm/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeMoonraker answers identify and subscribe, then hands each live
// connection to the test through conns.
type fakeMoonraker struct {
	t      *testing.T
	server *httptest.Server
	conns  chan *websocket.Conn
	reject bool
	status map[string]any

	mu       sync.Mutex
	sessions int
}

func newFakeMoonraker(t *testing.T, status map[string]any, reject bool) *fakeMoonraker {
	t.Helper()
	f := &fakeMoonraker{t: t, conns: make(chan *websocket.Conn, 8), status: status, reject: reject}
	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.sessions++
		f.mu.Unlock()
		if !f.handshake(conn) {
			_ = conn.Close()
			return
		}
		f.conns <- conn
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeMoonraker) url() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/websocket"
}

func (f *fakeMoonraker) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func (f *fakeMoonraker) handshake(conn *websocket.Conn) bool {
	for i := 0; i < 2; i++ {
		var req struct {
			Method string         `json:"method"`
			Params map[string]any `json:"params"`
			ID     int            `json:"id"`
		}
		if err := conn.ReadJSON(&req); err != nil {
			return false
		}
		switch req.Method {
		case moonraker.MethodIdentify:
			if f.reject {
				_ = conn.WriteJSON(map[string]any{
					"jsonrpc": "2.0", "id": req.ID,
					"error": map[string]any{"code": 401, "message": "Unauthorized"},
				})
				return false
			}
			// A notification interleaved with the handshake must not confuse it.
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": "notify_proc_stat_update", "params": []any{}})
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": map[string]any{"connection_id": 1}})
		case moonraker.MethodSubscribe:
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0", "id": req.ID,
				"result": map[string]any{"eventtime": 1.0, "status": f.status},
			})
		default:
			return false
		}
	}
	return true
}

func (f *fakeMoonraker) next(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-f.conns:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(3 * time.Second):
		t.Fatalf("supervisor did not connect")
		return nil
	}
}

func notify(t *testing.T, conn *websocket.Conn, method string, params any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": method, "params": params}))
}

// connRecorder collects connection-state transitions.
type connRecorder struct {
	mu     sync.Mutex
	states []state.ConnState
}

func (r *connRecorder) onChange(prev, next state.Snapshot) {
	if prev.Conn == next.Conn {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, next.Conn)
}

func (r *connRecorder) snapshot() []state.ConnState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]state.ConnState(nil), r.states...)
}

func startSupervisor(t *testing.T, opts Options) *Supervisor {
	t.Helper()
	if opts.InitialBackoff == 0 {
		opts.InitialBackoff = 10 * time.Millisecond
		opts.MaxBackoff = 40 * time.Millisecond
	}
	sup := New(opts)
	require.NoError(t, sup.Start(context.Background()))
	t.Cleanup(sup.Stop)
	return sup
}

func TestSupervisor_SubscribesAndMergesUpdates(t *testing.T) {
	fake := newFakeMoonraker(t, map[string]any{
		"extruder":    map[string]any{"temperature": 25.0, "target": 0.0},
		"heater_bed":  map[string]any{"temperature": 24.0, "target": 0.0},
		"print_stats": map[string]any{"state": "standby", "filename": ""},
	}, false)
	rec := &connRecorder{}
	store := state.NewStore()
	sup := startSupervisor(t, Options{URL: fake.url(), Store: store, OnChange: rec.onChange})

	conn := fake.next(t)
	require.Eventually(t, func() bool { return store.Snapshot().Conn == state.ConnSubscribed }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []state.ConnState{state.ConnConnecting, state.ConnSubscribed}, rec.snapshot())

	snap := sup.Store().Snapshot()
	require.Equal(t, state.Idle, snap.State)
	require.Equal(t, state.Known(24.0), snap.Bed.Current)

	notify(t, conn, moonraker.NotifyStatusUpdate, []any{map[string]any{"extruder": map[string]any{"target": 210.0}}, 2.0})
	require.Eventually(t, func() bool { return store.Snapshot().Nozzle.Target == state.Known(210) }, 2*time.Second, 5*time.Millisecond)
	snap = store.Snapshot()
	require.Equal(t, state.Known(25.0), snap.Nozzle.Current, "absent field kept")
	require.Equal(t, state.Known(24.0), snap.Bed.Current)
}

func TestSupervisor_DropsUnparseableMessages(t *testing.T) {
	fake := newFakeMoonraker(t, map[string]any{}, false)
	store := state.NewStore()
	startSupervisor(t, Options{URL: fake.url(), Store: store})

	conn := fake.next(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{garbage")))
	notify(t, conn, moonraker.NotifyStatusUpdate, "not-an-array")
	notify(t, conn, moonraker.NotifyStatusUpdate, []any{map[string]any{"heater_bed": map[string]any{"target": 60.0}}, 3.0})

	require.Eventually(t, func() bool { return store.Snapshot().Bed.Target == state.Known(60) }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, fake.sessionCount(), "bad frames must not drop the connection")
}

func TestSupervisor_ReconnectsAfterDropAndMarksStale(t *testing.T) {
	fake := newFakeMoonraker(t, map[string]any{"extruder": map[string]any{"temperature": 200.0}}, false)
	rec := &connRecorder{}
	store := state.NewStore()
	queue := events.NewQueue(64, nil)
	startSupervisor(t, Options{URL: fake.url(), Store: store, Queue: queue, OnChange: rec.onChange})

	first := fake.next(t)
	notify(t, first, moonraker.NotifyStatusUpdate, []any{map[string]any{"heater_bed": map[string]any{"temperature": 60.0}}, 1.0})
	require.Eventually(t, func() bool { return store.Snapshot().Bed.Current.Valid }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, first.Close())

	second := fake.next(t)
	require.Eventually(t, func() bool { return store.Snapshot().Conn == state.ConnSubscribed }, 2*time.Second, 5*time.Millisecond)

	snap := store.Snapshot()
	require.False(t, snap.IsStale(state.FieldNozzle), "re-reported on subscribe")
	require.True(t, snap.IsStale(state.FieldBed), "not yet reported since reconnect")
	require.Equal(t, state.Known(60.0), snap.Bed.Current, "stale values are kept")

	notify(t, second, moonraker.NotifyStatusUpdate, []any{map[string]any{"heater_bed": map[string]any{"temperature": 61.0}}, 2.0})
	require.Eventually(t, func() bool { return !store.Snapshot().IsStale(state.FieldBed) }, 2*time.Second, 5*time.Millisecond)

	states := rec.snapshot()
	require.Equal(t, []state.ConnState{
		state.ConnConnecting, state.ConnSubscribed,
		state.ConnDegraded, state.ConnReconnecting,
		state.ConnConnecting, state.ConnSubscribed,
	}, states)

	var notices []string
	for _, ev := range queue.Drain(0) {
		notices = append(notices, ev.Text)
	}
	require.Contains(t, notices, "Connected to Moonraker")
}

func TestSupervisor_RejectedHandshake(t *testing.T) {
	fake := newFakeMoonraker(t, nil, true)
	store := state.NewStore()
	startSupervisor(t, Options{URL: fake.url(), Store: store, APIKey: "bad"})

	require.Eventually(t, func() bool { return store.Snapshot().Conn == state.ConnRejected }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "Unauthorized", store.Snapshot().ConnErr)
	require.Eventually(t, func() bool { return fake.sessionCount() >= 2 }, 2*time.Second, 5*time.Millisecond, "rejects are retried")
}

func TestSupervisor_ConsoleAndKlippyNotifications(t *testing.T) {
	fake := newFakeMoonraker(t, map[string]any{"print_stats": map[string]any{"state": "printing"}}, false)
	store := state.NewStore()
	var mu sync.Mutex
	var lines []string
	startSupervisor(t, Options{URL: fake.url(), Store: store, OnConsole: func(line string) {
		mu.Lock()
		lines = append(lines, line)
		mu.Unlock()
	}})

	conn := fake.next(t)
	notify(t, conn, moonraker.NotifyGCodeResponse, []string{"// probe at 10,10"})
	notify(t, conn, moonraker.NotifyKlippyShutdown, nil)
	require.Eventually(t, func() bool { return store.Snapshot().State == state.Error }, 2*time.Second, 5*time.Millisecond)

	notify(t, conn, moonraker.NotifyKlippyReady, nil)
	var req struct {
		Method string `json:"method"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&req))
	require.Equal(t, moonraker.MethodSubscribe, req.Method, "klippy ready triggers a re-subscribe")

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"// probe at 10,10"}, lines)
	require.Equal(t, "ready", store.Snapshot().KlippyState)
}

func TestSupervisor_StopEndsDisconnected(t *testing.T) {
	fake := newFakeMoonraker(t, map[string]any{}, false)
	store := state.NewStore()
	sup := New(Options{URL: fake.url(), Store: store})
	require.NoError(t, sup.Start(context.Background()))
	fake.next(t)
	require.Eventually(t, func() bool { return store.Snapshot().Conn == state.ConnSubscribed }, 2*time.Second, 5*time.Millisecond)

	sup.Stop()
	require.Equal(t, state.ConnDisconnected, store.Snapshot().Conn)
	sup.Stop()

	require.Error(t, sup.Start(context.Background()), "a supervisor runs once")
}

func TestSupervisor_StartRequiresURL(t *testing.T) {
	require.Error(t, New(Options{}).Start(context.Background()))
}

func TestSubscribeParams_ListsObjects(t *testing.T) {
	data, err := json.Marshal(subscribeParams())
	require.NoError(t, err)
	for _, name := range []string{"toolhead", "extruder", "heater_bed", "print_stats", "display_status", "virtual_sdcard", "gcode_move"} {
		require.Contains(t, string(data), `"`+name+`"`)
	}
}
