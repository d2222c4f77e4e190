package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/health"
	"github.com/matrixise/dog-tracker/internal/logger"
	"github.com/matrixise/dog-tracker/internal/metrics"
	"github.com/matrixise/dog-tracker/internal/scheduler"
	"github.com/matrixise/dog-tracker/internal/server"
	"github.com/matrixise/dog-tracker/internal/snapshot"
	"github.com/spf13/cobra"
)

var (
	interval string
	once     bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the balance tracker",
	Long:  `Poll DOG balances and pool positions for every user and write the snapshot file.`,
	RunE:  runTracker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&interval, "interval", "", "run interval - duration (10m, 1h) or cron (\"*/10 * * * *\") - empty for one-time run")
	runCmd.Flags().BoolVar(&once, "once", false, "run once and exit (default)")
}

func runTracker(cmd *cobra.Command, args []string) error {
	// Setup logger (log-level from global flag)
	logger.Setup(logLevel)

	// Context with graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Signal received, graceful shutdown", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Load config and users
	cfg, users, err := config.LoadWithUsers(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return err
	}

	logCloser := setupLogging(cfg)
	defer logCloser.Close()

	// Use interval from flag if provided, otherwise from config
	runInterval := interval
	if runInterval == "" && cfg.Interval != "" {
		runInterval = cfg.Interval
	}

	slog.Info("Configuration loaded",
		"config_path", cfgFile,
		"users", len(users),
		"addresses", config.CountAddresses(users),
		"token", cfg.TokenContract,
		"pool", cfg.PoolAddress,
		"proxy", cfg.UseProxy,
		"interval", runInterval,
	)

	m := metrics.New()
	client, err := newOKXClient(cfg, m)
	if err != nil {
		slog.Error("Failed to create OKX client", "error", err)
		return err
	}

	chain, err := newChainClient(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to RPC", "error", err)
		return err
	}
	if chain != nil {
		defer chain.Close()
		slog.Info("Pool state read on chain", "endpoints", len(cfg.RPCURLs), "primary", cfg.RPCURLs[0])
	}

	store := snapshot.NewStore(cfg.SnapshotFile)
	trk := newTracker(cfg, client, chain, store, m)

	// Run mode: one-time or daemon
	if runInterval == "" || once {
		return trk.Run(ctx)
	}

	// Daemon mode with scheduler
	slog.Info("Starting daemon mode with scheduler",
		"interval", runInterval,
		"timezone", cfg.GetTimezone().String(),
		"run_immediately", cfg.ShouldRunImmediately())

	guard := scheduler.NewGuard()
	guard.OnSkip(m.ObserveSkip)

	schedulerCfg := scheduler.Config{
		Interval:       runInterval,
		Timezone:       cfg.GetTimezone(),
		RunImmediately: cfg.ShouldRunImmediately(),
		Logger:         slog.Default(),
	}

	sched, err := scheduler.NewScheduler(ctx, schedulerCfg, guard, trk.Run)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		return fmt.Errorf("scheduler creation failed: %w", err)
	}
	defer sched.Stop()

	healthChecker := health.NewChecker(guard, store, sched.ExpectedInterval())
	if chain != nil {
		healthChecker.WithRPC(chain)
	}

	router := server.NewRouter(server.Options{
		Context: ctx,
		Guard:   guard,
		Job:     trk.Run,
		Store:   store,
		Health:  healthChecker,
		Metrics: m,
	})
	httpPort := cfg.HTTPPort
	if httpPort == 0 {
		httpPort = 8080 // Default port
	}
	httpServer := server.New(httpPort, router)

	go func() {
		slog.Info("HTTP server starting", "port", httpPort, "endpoints", "/health /metrics /api/balances /api/status /api/update")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	// Ensure HTTP server shutdown on exit
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	// Start the scheduler
	if err := sched.Start(); err != nil {
		slog.Error("Failed to start scheduler", "error", err)
		return fmt.Errorf("scheduler start failed: %w", err)
	}

	slog.Info("Daemon mode started with clock-aligned scheduling",
		"schedule", scheduler.DescribeSchedule(runInterval, cfg.GetTimezone()))

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("Shutdown requested, stopping daemon")
	return nil
}
