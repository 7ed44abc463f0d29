package commands

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/files"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/printlog"
	"github.com/five82/moonterm/internal/state"
)

// Snapshotter exposes the current printer state.
type Snapshotter interface {
	Snapshot() state.Snapshot
}

// PrintLog is the read side of the print-history database.
type PrintLog interface {
	Recent(ctx context.Context, n int) ([]printlog.Entry, error)
}

// Options wires a Router.
type Options struct {
	Gateway *gateway.Gateway
	Catalog *files.Catalog
	State   Snapshotter
	Prints  PrintLog
	Output  *events.Queue
	Logger  *zap.Logger

	// FilesTTL is how old the listing may get before a file completion
	// triggers a background refresh.
	FilesTTL time.Duration
	// ListTimeout bounds "ls -l", which fetches metadata per file.
	ListTimeout time.Duration
}

const (
	defaultFilesTTL    = 30 * time.Second
	defaultListTimeout = 2 * time.Minute
	historyLimit       = 20
	localTimeout       = 2 * time.Second
)

// Router implements session.Forwarder.
type Router struct {
	gw      *gateway.Gateway
	catalog *files.Catalog
	state   Snapshotter
	prints  PrintLog
	out     *events.Queue
	log     *zap.Logger

	filesTTL    time.Duration
	listTimeout time.Duration
	refreshing  atomic.Bool
}

// New builds a Router. Catalog and Output default to empty instances.
func New(opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Catalog == nil {
		opts.Catalog = files.NewCatalog()
	}
	if opts.FilesTTL <= 0 {
		opts.FilesTTL = defaultFilesTTL
	}
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = defaultListTimeout
	}
	return &Router{
		gw:          opts.Gateway,
		catalog:     opts.Catalog,
		state:       opts.State,
		prints:      opts.Prints,
		out:         opts.Output,
		log:         logger.Named("commands"),
		filesTTL:    opts.FilesTTL,
		listTimeout: opts.ListTimeout,
	}
}

// Catalog returns the file and macro catalog the router maintains.
func (r *Router) Catalog() *files.Catalog {
	return r.catalog
}

// Forward echoes line and dispatches it. It returns the record of whatever was
// sent to the printer, or nil when the command finished locally.
func (r *Router) Forward(ctx context.Context, line string) *gateway.Record {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	r.out.Publish(events.KindEcho, line)

	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "ls":
		return r.list(args)
	case "print":
		return r.print(strings.Join(args, " "))
	case "reprint":
		return r.reprint()
	case "info":
		return r.info(strings.Join(args, " "))
	case "history":
		r.history(ctx)
		return nil
	case "z":
		return r.zOffset(args)
	case "pause":
		return r.gw.Invoke("pause", methodPause, nil)
	case "resume":
		return r.gw.Invoke("resume", methodResume, nil)
	case "cancel":
		return r.gw.Invoke("cancel", methodCancel, nil)
	case "help":
		r.Help()
		return nil
	}
	return r.gw.Submit(line)
}

func (r *Router) fail(format string, args ...any) {
	r.out.Publish(events.KindError, fmt.Sprintf(format, args...))
}
