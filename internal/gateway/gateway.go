package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/moonraker"
)

// CallFunc issues one dependent call inside a Go task.
type CallFunc func(ctx context.Context, method string, params any) (json.RawMessage, error)

// Options tune timeouts and command classification.
type Options struct {
	CommandTimeout time.Duration
	LongTimeout    time.Duration
	QueryTimeout   time.Duration

	// LongCommands use LongTimeout. Matched on the first word, case-insensitive.
	LongCommands []string
	// AckOnSend commands are acknowledged once the request is written, since the
	// printer restarts before it can reply.
	AckOnSend []string

	Logger   *zap.Logger
	NewToken func() string
	Now      func() time.Time
}

const (
	defaultCommandTimeout = 30 * time.Second
	defaultLongTimeout    = 2 * time.Minute
	defaultQueryTimeout   = 5 * time.Second
)

// Gateway owns the pending-command table.
type Gateway struct {
	caller moonraker.Caller
	opts   Options
	log    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*Record
	closed  bool
}

// New builds a Gateway over caller.
func New(caller moonraker.Caller, opts Options) *Gateway {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = defaultCommandTimeout
	}
	if opts.LongTimeout <= 0 {
		opts.LongTimeout = defaultLongTimeout
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	if opts.NewToken == nil {
		opts.NewToken = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		caller:  caller,
		opts:    opts,
		log:     logger.Named("gateway"),
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[uint64]*Record),
	}
}

// Submit sends text as a G-code script and returns its record immediately.
func (g *Gateway) Submit(text string) *Record {
	word := firstWord(text)
	timeout := g.opts.CommandTimeout
	if matchesWord(word, g.opts.LongCommands) {
		timeout = g.opts.LongTimeout
	}
	ackOnSend := matchesWord(word, g.opts.AckOnSend)

	rec, ok := g.register(text, KindScript, timeout)
	if !ok {
		return rec
	}
	call := moonraker.Call{
		Token:  rec.Token,
		Method: moonraker.MethodGCodeScript,
		Params: map[string]string{"script": text},
	}
	if ackOnSend {
		call.OnSent = func() {
			if rec.resolve(Acknowledged, "", nil) {
				g.finish(rec)
			}
		}
	}
	g.start(rec, func(ctx context.Context) (json.RawMessage, error) {
		return g.caller.Call(ctx, call)
	})
	return rec
}

// Invoke issues a structured request with the query timeout. label names the
// record in the console and logs.
func (g *Gateway) Invoke(label, method string, params any) *Record {
	rec, ok := g.register(label, KindQuery, g.opts.QueryTimeout)
	if !ok {
		return rec
	}
	g.start(rec, func(ctx context.Context) (json.RawMessage, error) {
		return g.caller.Call(ctx, moonraker.Call{Token: rec.Token, Method: method, Params: params})
	})
	return rec
}

// Go runs a composite operation made of dependent calls under one record and
// one timeout. A zero timeout uses the query timeout.
func (g *Gateway) Go(label string, timeout time.Duration, fn func(ctx context.Context, call CallFunc) (json.RawMessage, error)) *Record {
	if timeout <= 0 {
		timeout = g.opts.QueryTimeout
	}
	rec, ok := g.register(label, KindTask, timeout)
	if !ok {
		return rec
	}
	call := func(ctx context.Context, method string, params any) (json.RawMessage, error) {
		return g.caller.Call(ctx, moonraker.Call{Token: g.opts.NewToken(), Method: method, Params: params})
	}
	g.start(rec, func(ctx context.Context) (json.RawMessage, error) {
		return fn(ctx, call)
	})
	return rec
}

// Await waits for rec to resolve, for ctx, or for timeout, whichever is first,
// and returns the outcome at that moment. A zero timeout waits for ctx only.
func (g *Gateway) Await(ctx context.Context, rec *Record, timeout time.Duration) Outcome {
	var expire <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expire = timer.C
	}
	select {
	case <-rec.Done():
	case <-ctx.Done():
	case <-expire:
	}
	return rec.State()
}

// ObserveConsole resolves a pending script from an asynchronous console line.
// "ok" acknowledges it and a "!!" line fails it. Console lines carry no token,
// so a line is only attributed when exactly one script is pending; otherwise
// the direct replies settle each record.
func (g *Gateway) ObserveConsole(line string) {
	trimmed := strings.TrimSpace(line)
	var outcome Outcome
	var reason string
	switch {
	case strings.HasPrefix(trimmed, "!!"):
		outcome = Failed
		reason = strings.TrimSpace(strings.TrimPrefix(trimmed, "!!"))
	case trimmed == "ok" || strings.HasPrefix(trimmed, "ok "):
		outcome = Acknowledged
	default:
		return
	}

	rec := g.soleScript()
	if rec == nil {
		return
	}
	if rec.resolve(outcome, reason, nil) {
		g.log.Debug("resolved by console", zap.Uint64("seq", rec.Seq), zap.Stringer("outcome", outcome))
		g.finish(rec)
	}
}

// Pending returns unresolved records in submission order.
func (g *Gateway) Pending() []*Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Record, 0, len(g.pending))
	for _, rec := range g.pending {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Close abandons outstanding records and waits for their workers. Abandoning is
// local: commands already sent to the printer keep running there.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
}

func (g *Gateway) register(text string, kind Kind, timeout time.Duration) (*Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.seq++
	rec := newRecord(g.seq, text, kind, g.opts.NewToken(), timeout, g.opts.Now())
	if g.closed {
		rec.resolve(Failed, "session closed", nil)
		return rec, false
	}
	g.pending[rec.Seq] = rec
	g.wg.Add(1)
	return rec, true
}

func (g *Gateway) start(rec *Record, do func(ctx context.Context) (json.RawMessage, error)) {
	g.log.Debug("submit",
		zap.Uint64("seq", rec.Seq),
		zap.String("text", rec.Text),
		zap.String("token", rec.Token),
		zap.Duration("timeout", rec.Timeout),
	)
	go func() {
		defer g.wg.Done()
		ctx, cancel := context.WithTimeout(g.ctx, rec.Timeout)
		defer cancel()

		result, err := do(ctx)
		outcome, reason := classify(ctx, g.ctx, rec.Timeout, err)
		if rec.resolve(outcome, reason, result) {
			if outcome != Acknowledged {
				g.log.Info("command not acknowledged",
					zap.Uint64("seq", rec.Seq),
					zap.String("text", rec.Text),
					zap.Stringer("outcome", outcome),
					zap.String("reason", reason),
				)
			}
		}
		g.finish(rec)
	}()
}

func (g *Gateway) finish(rec *Record) {
	g.mu.Lock()
	delete(g.pending, rec.Seq)
	g.mu.Unlock()
}

// soleScript returns the only pending script, or nil when there are none or
// several.
func (g *Gateway) soleScript() *Record {
	g.mu.Lock()
	defer g.mu.Unlock()
	var sole *Record
	for _, rec := range g.pending {
		if rec.Kind != KindScript {
			continue
		}
		if sole != nil {
			return nil
		}
		sole = rec
	}
	return sole
}

func classify(callCtx, baseCtx context.Context, timeout time.Duration, err error) (Outcome, string) {
	if err == nil {
		return Acknowledged, ""
	}
	if baseCtx.Err() != nil {
		return Failed, "session closed"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return TimedOut, fmt.Sprintf("no reply within %s", timeout)
	}
	var rpcErr *moonraker.RPCError
	if errors.As(err, &rpcErr) {
		return Failed, rpcErr.Message
	}
	return Failed, err.Error()
}

func firstWord(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func matchesWord(word string, list []string) bool {
	for _, entry := range list {
		if strings.EqualFold(word, strings.TrimSpace(entry)) {
			return true
		}
	}
	return false
}
