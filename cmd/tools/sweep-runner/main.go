// Package main implements the sweep-runner CLI tool for executing a single
// sweep directly, bypassing the cron driver and the ops HTTP surface.
//
// This tool is intended for local development, catch-up after downtime, and
// operational debugging. It wires the same stack as the scheduler daemon,
// runs exactly one sweep with full history bookkeeping, prints the finished
// sweep record as JSON, and exits non-zero when the sweep failed.
//
// Usage:
//
//	go run ./cmd/tools/sweep-runner --kind=dispatch
//	go run ./cmd/tools/sweep-runner --kind=nightly
//	go run ./cmd/tools/sweep-runner --kind=history_archive
//	go run ./cmd/tools/sweep-runner --list
//
// Configuration comes from the environment (or a .env file), identical to
// the daemon: DATABASE_URL, the collaborator base URLs and API keys, and
// the scheduler knobs. All of it is required even for sweeps that do not
// touch every collaborator, because the full stack is wired up front.
//
// The wiring below mirrors cmd/scheduler/main.go. Duplicated because main
// packages cannot be imported.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"lingopal/internal/billing"
	"lingopal/internal/config"
	"lingopal/internal/db"
	"lingopal/internal/external"
	"lingopal/internal/prompt"
	"lingopal/internal/scheduler"
	"lingopal/internal/types"
)

// sweepDescriptions documents each kind for --list output.
var sweepDescriptions = map[types.SweepKind]string{
	types.SweepNightly:        "Hourly nightly maintenance: digest, prune, reset, fresh conversation opener",
	types.SweepDispatch:       "Per-minute push dispatch: due check-ins, plan warnings, re-engagement nudges",
	types.SweepHistoryArchive: "Archive aged sweep history rows to compressed cold storage",
}

func main() {
	kindFlag := flag.String("kind", "", "Sweep kind to execute (nightly, dispatch, history_archive)")
	listFlag := flag.Bool("list", false, "List all sweep kinds and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: sweep-runner [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Execute a single sweep directly, bypassing the cron driver.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nUse --list to see all sweep kinds.\n")
	}
	flag.Parse()

	if *listFlag {
		printSweepKinds()
		return
	}

	if *kindFlag == "" {
		fmt.Fprintf(os.Stderr, "error: --kind is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	kind, err := types.ParseSweepKind(*kindFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: unknown sweep kind %q\n\n", *kindFlag)
		printSweepKinds()
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rec, err := executeSweep(ctx, kind, logger)
	if err != nil && rec == nil {
		logger.Error("sweep execution failed", "kind", string(kind), "error", err)
		os.Exit(1)
	}

	printRecord(rec)
	if rec.Status != types.SweepStatusSucceeded {
		os.Exit(1)
	}
}

// executeSweep wires the daemon's dependency stack and runs one sweep with
// full history bookkeeping. A returned record with a nil error means the
// sweep ran; the record's status carries the outcome. A nil record means
// the stack could not even be wired.
func executeSweep(ctx context.Context, kind types.SweepKind, logger *slog.Logger) (*types.SweepRecord, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL.Unmask())
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info("database connection established")

	subscribers := db.NewSubscriberRepository(pool)
	history := db.NewSweepHistoryRepository(pool)

	agent := external.NewAgentClient(&http.Client{Timeout: cfg.Agent.Timeout}, external.AgentClientConfig{
		APIKey:  cfg.Agent.APIKey.Unmask(),
		BaseURL: cfg.Agent.BaseURL,
		Logger:  logger,
	})
	digests := external.NewDigestClient(&http.Client{Timeout: cfg.Digest.Timeout}, external.DigestClientConfig{
		APIKey:  cfg.Digest.APIKey.Unmask(),
		BaseURL: cfg.Digest.BaseURL,
		Logger:  logger,
	})
	delivery := external.NewDeliveryClient(&http.Client{Timeout: cfg.Delivery.Timeout}, external.DeliveryClientConfig{
		APIKey:        cfg.Delivery.APIKey.Unmask(),
		BaseURL:       cfg.Delivery.BaseURL,
		Logger:        logger,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
	})

	prompts, err := prompt.NewBuilder()
	if err != nil {
		return nil, fmt.Errorf("loading prompt templates: %w", err)
	}
	plans := billing.NewChecker(billing.NewStaticPlanRegistry())

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

	runner := scheduler.NewRunner(scheduler.RunnerConfig{
		History: history,
		Logger:  logger,
	})
	if err := runner.Register(types.SweepNightly, cfg.Scheduler.NightlySpec, nightly.Sweep); err != nil {
		return nil, fmt.Errorf("registering nightly sweep: %w", err)
	}
	if err := runner.Register(types.SweepDispatch, cfg.Scheduler.DispatchSpec, dispatch.Sweep); err != nil {
		return nil, fmt.Errorf("registering dispatch sweep: %w", err)
	}
	if err := runner.Register(types.SweepHistoryArchive, cfg.Scheduler.ArchiveSpec, archiver.Sweep); err != nil {
		return nil, fmt.Errorf("registering history archive sweep: %w", err)
	}

	logger.Info("executing sweep", "kind", string(kind))
	return runner.RunSweep(ctx, kind)
}

// printSweepKinds prints the kinds and their descriptions sorted by name.
func printSweepKinds() {
	fmt.Println("Available sweep kinds:")
	fmt.Println()
	for _, kind := range []types.SweepKind{types.SweepNightly, types.SweepDispatch, types.SweepHistoryArchive} {
		fmt.Printf("  %-18s %s\n", kind, sweepDescriptions[kind])
	}
	fmt.Println()
	fmt.Println("Example: sweep-runner --kind=dispatch")
}

// printRecord prints the finished sweep record as indented JSON.
func printRecord(rec *types.SweepRecord) {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: marshalling sweep record: %v\n", err)
		return
	}
	fmt.Println(string(out))
}
