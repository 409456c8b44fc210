package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/badgesink/config"
	"github.com/jpalmerr/badgesink/internal/server"
	"github.com/jpalmerr/badgesink/internal/store"
)

// runCmd polls the badge API and forwards events until stopped.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the badge API and forward events",
	Long: `Poll the badge API and forward every event to the configured consumers.

The command will:
  - Load configuration from the specified YAML file
  - Open the configured forwarders (log, NATS, SQL)
  - Serve /healthz, /api/status, /api/events, /api/sse and /metrics
  - Poll the badge API until interrupted

The command runs until interrupted (Ctrl+C) or SIGTERM, and exits non-zero
if polling stops because of a failed request.

Example:
  badgesink run -c config.yaml
  badgesink run --config /etc/badgesink/config.yaml --env-file /etc/badgesink/env`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.SlogLevel())
	logger.Info("config loaded",
		"base_url", cfg.BaseURL,
		"backoff", cfg.Backoff.Duration().String(),
		"reuse_token", cfg.ReuseToken,
	)

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// also stops the HTTP server when polling fails
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sink, err := config.BuildSink(cfg, logger, reg)
	if err != nil {
		return fmt.Errorf("failed to create sink: %w", err)
	}

	forwarders, err := config.BuildForwarders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open forwarders: %w", err)
	}
	defer func() {
		if err := config.CloseForwarders(forwarders); err != nil {
			logger.Error("failed to close forwarders", "error", err)
		}
	}()

	events := store.NewMemoryStore(cfg.HTTP.RecentEvents)

	srv := server.NewServer(server.Config{
		Addr:     cfg.HTTP.Addr,
		Store:    events,
		Status:   func() any { return sink.Status() },
		Healthy:  func() bool { return sink.Status().Running },
		Gatherer: reg,
		Logger:   logger,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	if err := sink.Start(ctx, newEventHandler(ctx, events, forwarders)); err != nil {
		return fmt.Errorf("failed to start sink: %w", err)
	}

	<-sink.Done()

	if err := sink.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("badge polling stopped: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
