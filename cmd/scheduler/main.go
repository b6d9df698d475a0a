// Package main is the entry point for the lingopal scheduler daemon.
//
// It wires the full stack: configuration, the pgx connection pool, the
// three collaborator clients (conversation agent, digest service, delivery
// gateway), the sweep services, and the cron runner, then serves the ops
// HTTP surface until a shutdown signal arrives.
//
// The daemon is stateless between ticks. Every sweep re-derives its work
// from the persisted subscriber snapshot, so a restart loses nothing and
// multiple ticks after downtime converge on their own.
//
// Graceful shutdown is handled via OS signal interception (SIGINT,
// SIGTERM): the cron schedule halts first and in-flight ticks finish, then
// the HTTP server drains, then the pool closes.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lingopal/internal/billing"
	"lingopal/internal/config"
	"lingopal/internal/core"
	"lingopal/internal/db"
	"lingopal/internal/external"
	"lingopal/internal/prompt"
	"lingopal/internal/scheduler"
	"lingopal/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("lingopal scheduler starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	// Database pool with the tuning knobs from config.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Unmask())
	if err != nil {
		return fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolCfg.HealthCheckPeriod = cfg.Database.HealthCheckPeriod
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.AcquireTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
	defer cancelPing()
	if err := pool.Ping(pingCtx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// Repositories.
	subscribers := db.NewSubscriberRepository(pool)
	history := db.NewSweepHistoryRepository(pool)

	// Collaborator clients. The base clients are built explicitly so their
	// circuit breakers double as readiness probes.
	agentBase := external.NewBaseClient(
		&http.Client{Timeout: cfg.Agent.Timeout},
		"agent",
		external.DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	agent := external.NewAgentClientWithBase(agentBase, external.AgentClientConfig{
		APIKey:  cfg.Agent.APIKey.Unmask(),
		BaseURL: cfg.Agent.BaseURL,
		Logger:  logger,
	})

	digestBase := external.NewBaseClient(
		&http.Client{Timeout: cfg.Digest.Timeout},
		"digest",
		external.DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	digests := external.NewDigestClientWithBase(digestBase, external.DigestClientConfig{
		APIKey:  cfg.Digest.APIKey.Unmask(),
		BaseURL: cfg.Digest.BaseURL,
		Logger:  logger,
	})

	deliveryBase := external.NewBaseClient(
		&http.Client{Timeout: cfg.Delivery.Timeout},
		"delivery",
		external.DefaultRetryPolicy(),
		"lingopal/1.0",
	)
	delivery := external.NewDeliveryClientWithBase(deliveryBase, external.DeliveryClientConfig{
		APIKey:        cfg.Delivery.APIKey.Unmask(),
		BaseURL:       cfg.Delivery.BaseURL,
		Logger:        logger,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
	})

	// Message content and plan limits.
	prompts, err := prompt.NewBuilder()
	if err != nil {
		return fmt.Errorf("loading prompt templates: %w", err)
	}
	plans := billing.NewChecker(billing.NewStaticPlanRegistry())

	// Sweep services.
	nightly := scheduler.NewNightlyService(scheduler.NightlyServiceConfig{
		Store:       subscribers,
		Agent:       agent,
		Digests:     digests,
		Delivery:    delivery,
		Prompts:     prompts,
		NightlyHour: cfg.Scheduler.NightlyHour,
		KeepDigests: cfg.Scheduler.DigestKeepCount,
		Logger:      logger,
	})
	dispatch := scheduler.NewDispatchService(scheduler.DispatchServiceConfig{
		Store:            subscribers,
		Delivery:         delivery,
		Prompts:          prompts,
		Plans:            plans,
		Windows:          cfg.Windows,
		DefaultFuzziness: cfg.Scheduler.DefaultFuzzinessMinutes,
		ReengageAfter:    cfg.Scheduler.ReengageAfter,
		Logger:           logger,
	})
	archiver := scheduler.NewHistoryArchiver(
		history,
		scheduler.NewFilesystemArchiveStore(cfg.Scheduler.ArchiveDir),
		cfg.Scheduler.HistoryRetention,
		cfg.Scheduler.ArchiveBatchSize,
		logger,
	)

	// Cron driver.
	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		History: history,
		Logger:  logger,
	})
	if err := runner.Register(types.SweepNightly, cfg.Scheduler.NightlySpec, nightly.Sweep); err != nil {
		return fmt.Errorf("registering nightly sweep: %w", err)
	}
	if err := runner.Register(types.SweepDispatch, cfg.Scheduler.DispatchSpec, dispatch.Sweep); err != nil {
		return fmt.Errorf("registering dispatch sweep: %w", err)
	}
	if err := runner.Register(types.SweepHistoryArchive, cfg.Scheduler.ArchiveSpec, archiver.Sweep); err != nil {
		return fmt.Errorf("registering history archive sweep: %w", err)
	}

	// Ops HTTP surface.
	srv, err := core.NewServer(cfg, history, runner, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.HealthProbes = []core.HealthProbe{
		core.NewProbe("database", pool.Ping),
		core.NewProbe("agent", agentBase.Ready),
		core.NewProbe("digest", digestBase.Ready),
		core.NewProbe("delivery", deliveryBase.Ready),
	}
	srv.MountRoutes()

	logger.Info("scheduler initialized",
		"nightly_spec", cfg.Scheduler.NightlySpec,
		"dispatch_spec", cfg.Scheduler.DispatchSpec,
		"archive_spec", cfg.Scheduler.ArchiveSpec,
		"nightly_hour", cfg.Scheduler.NightlyHour,
		"reengage_after", cfg.Scheduler.ReengageAfter.String(),
		"schedule_windows", len(cfg.Windows),
	)

	return serve(ctx, srv, runner, cfg, logger)
}

// serve starts the cron driver and the HTTP server, then blocks until a
// shutdown signal or a server error. Shutdown order: the cron schedule
// halts first (in-flight ticks finish inside Stop), then the HTTP server
// drains with a deadline.
func serve(ctx context.Context, srv *core.Server, runner *scheduler.Runner, cfg *config.Config, logger *slog.Logger) error {
	// runCtx parents every tick; cancelling it aborts in-flight
	// collaborator calls once draining takes too long.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	runner.Start(runCtx)

	addr := ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			runner.Stop()
			return fmt.Errorf("ops server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	runner.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("scheduler stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: lvl,
	}))
}
