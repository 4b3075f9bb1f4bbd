package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tripwire"
	"github.com/jpalmerr/tripwire/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// runCmd monitors every configured site until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor the configured sites",
	Long: `Monitor every site in the configuration file.

Each site is checked on its own interval. A site whose fetch, extraction,
transformation or notification fails stops being monitored; the others
carry on. The command runs until interrupted (Ctrl+C) or it receives
SIGTERM, and exits non-zero if any site stopped because of an error.

Example:
  tripwire run -c tripwire.yaml
  tripwire run -c /etc/tripwire/tripwire.yaml --status-port 8080`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", defaultConfigFile, "path to config file")
	runCmd.Flags().Int("status-port", 0, "serve /api/sites, /api/sse, /metrics and /healthz on this port (overrides status_port)")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("status-port") {
		cfg.StatusPort, _ = cmd.Flags().GetInt("status-port")
	}

	sites, err := config.BuildSites(cfg)
	if err != nil {
		return fmt.Errorf("failed to build sites: %w", err)
	}

	logger.Info("config loaded",
		"file", configFile,
		"sites", len(sites),
		"status_port", cfg.StatusPort,
	)

	opts := append(config.Options(cfg),
		tripwire.WithSites(sites...),
		tripwire.WithLogger(logger),
	)
	tw, err := tripwire.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create tripwire: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- tw.Run(ctx)
	}()

	select {
	case err := <-errChan:
		// every site has stopped on its own
		return finish(logger, err)

	case <-ctx.Done():
		select {
		case err := <-errChan:
			return finish(logger, err)
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

func finish(logger *slog.Logger, err error) error {
	if err != nil {
		return fmt.Errorf("sites failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
