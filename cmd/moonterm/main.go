package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/five82/moonterm/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd(app.Run)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "moonterm: %v\n", err)
		return 1
	}
	return 0
}

type runFunc func(ctx context.Context, opts app.Options) error

func newRootCmd(runApp runFunc) *cobra.Command {
	var (
		configPath string
		host       string
		port       int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "moonterm",
		Short: "Interactive terminal for Klipper printers via Moonraker",
		Long: `moonterm connects to a Moonraker instance, shows live printer status and
lets you type G-code with history and tab completion.

Local commands: ls, print, reprint, info, history, z, pause, resume, cancel, help.`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := app.Options{ConfigPath: configPath, Version: version}
			flags := cmd.Flags()
			if flags.Changed("host") {
				opts.Host = &host
			}
			if flags.Changed("port") {
				opts.Port = &port
			}
			if flags.Changed("log-level") {
				opts.LogLevel = &logLevel
			}
			return runApp(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.config/moonterm/config.toml)")
	flags.StringVar(&host, "host", "", "Moonraker host (overrides config)")
	flags.IntVar(&port, "port", 0, "Moonraker port (overrides config)")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	return cmd
}
