package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/crawlpost"
)

type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PIDFile    string
	LogFile    string
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the crawlpost daemon",
		Long: `Start the HTTP API together with the metrics listener when enabled.
Without a config file the built-in defaults are used.

Examples:
  crawlpost serve
  crawlpost serve config.toml
  crawlpost serve config.toml --daemonize --pidfile=/run/crawlpost.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				serveFlags.ConfigPath = args[0]
			}
			if serveFlags.Daemonize {
				return daemonize(serveFlags.PIDFile, serveFlags.LogFile)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PIDFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

// runServe blocks until ctx is cancelled.
func runServe(ctx context.Context, flags *ServeFlags) error {
	cfg, err := crawlpost.LoadConfig(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.PIDFile != "" {
		if err := writePidFile(flags.PIDFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = removePidFile(flags.PIDFile) }()
	}

	orc, err := crawlpost.New(ctx, cfg, crawlpost.WithVersion(version))
	if err != nil {
		return err
	}
	serveErr := orc.Serve(ctx)

	cctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := orc.Close(cctx); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}
