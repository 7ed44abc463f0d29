// Package supervisor owns the Moonraker notification channel. One goroutine
// dials, performs the handshake, merges status notifications into the state
// store and reconnects with capped exponential backoff.
package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/moonraker"
	"github.com/five82/moonterm/internal/state"
)

// Options wire the supervisor to its collaborators.
type Options struct {
	URL    string
	Dialer moonraker.Dialer
	Store  *state.Store
	Queue  *events.Queue
	Logger *zap.Logger

	APIKey     string
	ClientName string
	Version    string

	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration

	// OnChange runs on the supervisor goroutine after every store change.
	OnChange func(prev, next state.Snapshot)
	// OnConsole receives each printer console line.
	OnConsole func(line string)
}

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultClientName       = "moonterm"
	projectURL              = "https://github.com/five82/moonterm"
)

// Supervisor runs the receive loop.
type Supervisor struct {
	opts Options
	log  *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool

	nextID int
}

// New builds a supervisor. Start must be called to connect.
func New(opts Options) *Supervisor {
	if opts.Dialer == nil {
		opts.Dialer = moonraker.WSDialer{APIKey: opts.APIKey}
	}
	if opts.Store == nil {
		opts.Store = state.NewStore()
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ClientName == "" {
		opts.ClientName = defaultClientName
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{opts: opts, log: logger.Named("supervisor")}
}

// Store returns the store the supervisor writes to.
func (s *Supervisor) Store() *state.Store {
	return s.opts.Store
}

// Start launches the receive loop and returns immediately. The loop runs until
// ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.opts.URL == "" {
		return fmt.Errorf("supervisor: url required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("supervisor: already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.run(runCtx)
	}()
	return nil
}

// Stop requests termination and waits for the receive loop to exit.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Supervisor) run(ctx context.Context) {
	failures := 0
	for {
		s.setConn(state.ConnConnecting, nil)
		subscribed, err := s.connect(ctx)
		if ctx.Err() != nil {
			s.setConn(state.ConnDisconnected, nil)
			return
		}
		if subscribed {
			failures = 0
		}
		s.opts.Store.MarkStale(state.AllFields)

		var rpcErr *moonraker.RPCError
		if errors.As(err, &rpcErr) {
			s.log.Warn("connection rejected", zap.Error(err))
			s.setConn(state.ConnRejected, err)
			s.opts.Queue.Notice("Connection rejected: " + rpcErr.Message)
		} else {
			s.log.Info("connection lost", zap.Error(err))
			s.setConn(state.ConnDegraded, err)
			if subscribed {
				s.opts.Queue.Notice("Disconnected from Moonraker: " + err.Error())
			}
			s.setConn(state.ConnReconnecting, nil)
		}

		delay := calculateBackoff(failures, s.opts.InitialBackoff, s.opts.MaxBackoff)
		failures++
		s.log.Debug("reconnect scheduled", zap.Duration("delay", delay), zap.Int("failures", failures))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.setConn(state.ConnDisconnected, nil)
			return
		case <-timer.C:
		}
	}
}

// connect runs one connection from dial to failure. subscribed reports whether
// the handshake completed.
func (s *Supervisor) connect(ctx context.Context) (subscribed bool, err error) {
	conn, err := s.opts.Dialer.Dial(ctx, s.opts.URL)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.handshake(conn); err != nil {
		return false, err
	}
	s.setConn(state.ConnSubscribed, nil)
	s.opts.Queue.Notice("Connected to Moonraker")
	s.log.Info("subscribed", zap.String("url", s.opts.URL))

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		msg, err := moonraker.ParseMessage(data)
		if err != nil {
			s.log.Warn("dropping message", zap.Error(err))
			continue
		}
		if err := s.dispatch(conn, msg); err != nil {
			var protoErr *moonraker.ProtocolError
			if errors.As(err, &protoErr) {
				s.log.Warn("dropping message", zap.String("method", msg.Method), zap.Error(err))
				continue
			}
			return true, err
		}
	}
}

// handshake identifies the client and subscribes. Notifications that arrive
// while waiting for a reply are processed normally.
func (s *Supervisor) handshake(conn moonraker.Conn) error {
	timer := time.AfterFunc(s.opts.HandshakeTimeout, func() { _ = conn.Close() })
	defer timer.Stop()

	identify := map[string]any{
		"client_name": s.opts.ClientName,
		"version":     s.opts.Version,
		"type":        "other",
		"url":         projectURL,
	}
	if s.opts.APIKey != "" {
		identify["api_key"] = s.opts.APIKey
	}
	if _, err := s.request(conn, moonraker.MethodIdentify, identify); err != nil {
		return err
	}

	result, err := s.request(conn, moonraker.MethodSubscribe, subscribeParams())
	if err != nil {
		return err
	}
	return s.applySubscribeResult(result)
}

// request writes a call and reads until its reply arrives.
func (s *Supervisor) request(conn moonraker.Conn, method string, params any) (json.RawMessage, error) {
	s.nextID++
	id := s.nextID
	if err := conn.WriteJSON(moonraker.NewRequest(method, params, id)); err != nil {
		return nil, err
	}
	want := fmt.Sprint(id)
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		msg, err := moonraker.ParseMessage(data)
		if err != nil {
			s.log.Warn("dropping message", zap.Error(err))
			continue
		}
		if msg.IsNotification() {
			if err := s.dispatch(conn, msg); err != nil {
				s.log.Warn("dropping message", zap.String("method", msg.Method), zap.Error(err))
			}
			continue
		}
		if msg.IDString() != want {
			s.log.Debug("ignoring reply", zap.String("id", msg.IDString()))
			continue
		}
		if msg.Error != nil {
			return nil, msg.Error
		}
		return msg.Result, nil
	}
}

func (s *Supervisor) dispatch(conn moonraker.Conn, msg moonraker.Message) error {
	if !msg.IsNotification() {
		if msg.Error != nil {
			s.log.Warn("request failed", zap.String("id", msg.IDString()), zap.Error(msg.Error))
			return nil
		}
		return s.applySubscribeResult(msg.Result)
	}

	switch msg.Method {
	case moonraker.NotifyStatusUpdate:
		status, err := moonraker.StatusParams(msg.Params)
		if err != nil {
			return err
		}
		return s.applyStatus(status)
	case moonraker.NotifyGCodeResponse:
		lines, err := moonraker.GCodeParams(msg.Params)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if s.opts.OnConsole != nil {
				s.opts.OnConsole(line)
			}
		}
	case moonraker.NotifyKlippyReady:
		s.opts.Queue.Notice("Klippy ready")
		s.apply(state.Update{KlippyState: ptr("ready")})
		s.nextID++
		return conn.WriteJSON(moonraker.NewRequest(moonraker.MethodSubscribe, subscribeParams(), s.nextID))
	case moonraker.NotifyKlippyShutdown:
		s.opts.Queue.Notice("Klippy shutdown")
		s.apply(state.Update{State: ptr(state.Error), KlippyState: ptr("shutdown")})
	case moonraker.NotifyKlippyDisconnect:
		s.opts.Queue.Notice("Klippy disconnected")
		s.apply(state.Update{State: ptr(state.Disconnected), KlippyState: ptr("disconnected")})
	default:
		s.log.Debug("ignoring notification", zap.String("method", msg.Method))
	}
	return nil
}

func (s *Supervisor) applySubscribeResult(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var result moonraker.SubscribeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return &moonraker.ProtocolError{Reason: "subscribe result", Err: err}
	}
	if len(result.Status) == 0 {
		return nil
	}
	return s.applyStatus(result.Status)
}

func (s *Supervisor) applyStatus(status moonraker.Status) error {
	update, err := state.FromStatus(status)
	if err != nil {
		return err
	}
	if update.Empty() {
		return nil
	}
	s.apply(update)
	return nil
}

func (s *Supervisor) apply(u state.Update) {
	prev, next := s.opts.Store.Apply(u)
	if s.opts.OnChange != nil {
		s.opts.OnChange(prev, next)
	}
}

func (s *Supervisor) setConn(conn state.ConnState, err error) {
	prev, next := s.opts.Store.SetConn(conn, err)
	if prev.Conn == next.Conn && err == nil {
		return
	}
	if s.opts.OnChange != nil {
		s.opts.OnChange(prev, next)
	}
}

func subscribeParams() map[string]any {
	return map[string]any{"objects": moonraker.SubscribedObjects}
}

func ptr[T any](v T) *T { return &v }
