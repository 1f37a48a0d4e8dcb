package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsestats"
	"github.com/jpalmerr/pulsestats/config"
	"github.com/jpalmerr/pulsestats/internal/telemetry"
)

// runCmd starts polling.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start polling",
	Long: `Start polling the configured profiles.

The process will:
  - Load and validate configuration from the specified YAML file
  - Open the configured sink
  - Poll one profile per cadence, writing each capture to the sink

It runs until interrupted (Ctrl+C) or receives SIGTERM, then waits for
in-flight polls and closes the sink. A non-zero exit means some component
failed to start or stop cleanly.

With --dry-run, captures go to an in-memory sink and are logged instead.

Example:
  pulsestats run -c config.yaml
  pulsestats run -c config.yaml --dry-run`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	runCmd.Flags().Bool("dry-run", false, "log captures instead of writing them to the sink")
	_ = runCmd.MarkFlagRequired("config")
}

// newLogger creates the CLI logger from the config's level and format.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := telemetry.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return telemetry.NewLogger(os.Stderr, level, cfg.LogFormat)
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	opts := config.BuildOptions(cfg, logger)
	if dryRun {
		opts = append(opts, pulsestats.WithMemorySink(), pulsestats.WithDebug(true))
	}

	ps, err := pulsestats.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create pulsestats: %w", err)
	}

	logger.Info("config loaded",
		"identifiers", len(cfg.Identifiers),
		"cadence", ps.Cadence().String(),
		"sink", ps.SinkType(),
		"dry_run", dryRun,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// blocks until ctx is cancelled and shutdown has finished or timed out
	if err := ps.Start(ctx); err != nil {
		return fmt.Errorf("pulsestats: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
