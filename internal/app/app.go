package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/five82/moonterm/internal/commands"
	"github.com/five82/moonterm/internal/completion"
	"github.com/five82/moonterm/internal/config"
	"github.com/five82/moonterm/internal/events"
	"github.com/five82/moonterm/internal/files"
	"github.com/five82/moonterm/internal/gateway"
	"github.com/five82/moonterm/internal/history"
	"github.com/five82/moonterm/internal/logging"
	"github.com/five82/moonterm/internal/moonraker"
	"github.com/five82/moonterm/internal/prefs"
	"github.com/five82/moonterm/internal/printlog"
	"github.com/five82/moonterm/internal/session"
	"github.com/five82/moonterm/internal/state"
	"github.com/five82/moonterm/internal/supervisor"
	"github.com/five82/moonterm/internal/ui"
)

// Options configure the moonterm application. Nil overrides keep the value
// from the config file.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/moonterm/prefs.toml
	Host       *string
	Port       *int
	LogLevel   *string
	Version    string
	Stderr     io.Writer
}

// Run boots the terminal until the operator quits or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := LoadConfig(opts)
	if err != nil {
		return err
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rt, err := build(cfg, opts)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := rt.start(runCtx); err != nil {
		rt.shutdown()
		return err
	}

	uiErr := ui.Run(ui.Options{
		Context:    runCtx,
		Store:      rt.store,
		Queue:      rt.queue,
		Session:    rt.session,
		Gateway:    rt.gateway,
		Help:       rt.router.Help,
		Address:    cfg.Address(),
		Tick:       cfg.UpdateInterval,
		Scrollback: cfg.Scrollback,
		Prefs:      prefs.Load(opts.PrefsPath),
		PrefsPath:  opts.PrefsPath,
		Logger:     rt.log,
	})
	cancel()

	for _, err := range rt.shutdown() {
		fmt.Fprintf(opts.Stderr, "moonterm: %v\n", err)
	}
	return uiErr
}

// LoadConfig reads the config file, applies command-line overrides and
// validates the result. It never touches the network.
func LoadConfig(opts Options) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if opts.Host != nil {
		cfg.Host = *opts.Host
	}
	if opts.Port != nil {
		cfg.Port = *opts.Port
	}
	if opts.LogLevel != nil {
		cfg.LogLevel = *opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// runtime holds the wired components between build and shutdown.
type runtime struct {
	cfg config.Config
	log *zap.Logger

	history *history.Store
	prints  *printlog.Log
	store   *state.Store
	queue   *events.Queue
	gateway *gateway.Gateway
	catalog *files.Catalog
	router  *commands.Router
	session *session.Session
	super   *supervisor.Supervisor

	refreshDone chan struct{}
}

func build(cfg config.Config, opts Options) (*runtime, error) {
	logger, err := logging.New(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	rt := &runtime{cfg: cfg, log: logger}

	rt.history, err = history.Load(cfg.HistoryFile, cfg.HistorySize)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("load history: %w", err)
	}

	rt.queue = events.NewQueue(0, logger)
	rt.store = state.NewStore()
	if rt.history.Corrupt() {
		rt.queue.Notice(fmt.Sprintf("History file %s is unreadable; starting with empty history", cfg.HistoryFile))
		logger.Warn("history file corrupt", zap.String("path", cfg.HistoryFile))
	}

	var prints commands.PrintLog
	var tracker *printlog.Tracker
	if rt.prints, err = printlog.Open(cfg.PrintHistoryDB); err != nil {
		logger.Warn("print history unavailable", zap.Error(err))
		rt.queue.Notice("Print history unavailable: " + err.Error())
	} else {
		prints = rt.prints
		tracker = printlog.NewTracker(rt.prints, logger)
	}

	client, err := moonraker.NewClient(cfg.Address(),
		moonraker.WithAPIKey(cfg.APIKey),
		moonraker.WithUserAgent("moonterm/"+version(opts.Version)),
	)
	if err != nil {
		rt.shutdown()
		return nil, fmt.Errorf("init moonraker client: %w", err)
	}

	rt.gateway = gateway.New(client, gateway.Options{
		CommandTimeout: cfg.CommandTimeout,
		LongTimeout:    cfg.LongCommandTimeout,
		QueryTimeout:   cfg.QueryTimeout,
		LongCommands:   cfg.LongCommands,
		AckOnSend:      cfg.AckOnSend,
		Logger:         logger,
	})

	rt.catalog = files.NewCatalog()
	rt.router = commands.New(commands.Options{
		Gateway: rt.gateway,
		Catalog: rt.catalog,
		State:   rt.store,
		Prints:  prints,
		Output:  rt.queue,
		Logger:  logger,
	})

	engine := completion.New(completion.DefaultCommands(), rt.catalog)
	engine.OnFileLookup = rt.router.RefreshIfStale
	rt.session = session.New(rt.history, engine, rt.router)

	filter := events.Filter{Patterns: cfg.FilterPatterns, DropOK: cfg.FilterOK}
	rt.super = supervisor.New(supervisor.Options{
		URL:            client.WebsocketURL(),
		Store:          rt.store,
		Queue:          rt.queue,
		Logger:         logger,
		APIKey:         cfg.APIKey,
		Version:        version(opts.Version),
		InitialBackoff: cfg.ReconnectInitial,
		MaxBackoff:     cfg.ReconnectMax,
		OnConsole: func(line string) {
			rt.gateway.ObserveConsole(line)
			if filter.Allow(line) {
				rt.queue.Console(line)
			}
		},
		OnChange: func(prev, next state.Snapshot) {
			if tracker != nil {
				tracker.Observe(prev, next)
			}
		},
	})
	return rt, nil
}

// start connects and kicks off the catalog refresh. It returns without
// waiting for either.
func (rt *runtime) start(ctx context.Context) error {
	rt.queue.Notice(fmt.Sprintf("Connecting to %s...", rt.cfg.Address()))
	if err := rt.super.Start(ctx); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}
	rt.refreshDone = make(chan struct{})
	go func() {
		defer close(rt.refreshDone)
		rt.refreshCatalog(ctx)
	}()
	return nil
}

// refreshCatalog loads macros and the file listing concurrently.
func (rt *runtime) refreshCatalog(ctx context.Context) {
	started := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.router.RefreshMacros(gctx) })
	g.Go(func() error { return rt.router.RefreshFiles(gctx) })
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return
		}
		rt.log.Warn("catalog refresh failed", zap.Error(err))
		rt.queue.Notice("Could not load macros and files: " + err.Error())
		return
	}
	rt.log.Info("catalog loaded",
		zap.Int("macros", len(rt.catalog.Macros())),
		zap.Int("files", len(rt.catalog.Files())),
		zap.Duration("took", time.Since(started)),
	)
}

// shutdown stops the supervisor, abandons outstanding commands and persists
// history. It returns the non-fatal errors worth reporting.
func (rt *runtime) shutdown() []error {
	var errs []error
	if rt.super != nil {
		rt.super.Stop()
	}
	if rt.gateway != nil {
		if n := len(rt.gateway.Pending()); n > 0 {
			rt.log.Info("abandoning outstanding commands", zap.Int("count", n))
		}
		rt.gateway.Close()
	}
	if rt.refreshDone != nil {
		<-rt.refreshDone
	}
	if rt.history != nil {
		if err := rt.history.Save(); err != nil {
			rt.log.Error("save history failed", zap.Error(err))
			errs = append(errs, fmt.Errorf("save history: %w", err))
		}
	}
	if rt.prints != nil {
		if err := rt.prints.Close(); err != nil {
			rt.log.Warn("close print history failed", zap.Error(err))
		}
	}
	_ = rt.log.Sync()
	return errs
}

func version(v string) string {
	if v == "" {
		return "dev"
	}
	return v
}
