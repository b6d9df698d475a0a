// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements the cron driver. The Runner owns the tick cadence
// (per-minute dispatch, hourly nightly, daily history archive) and the
// sweep history bookkeeping around each tick: a running row before the
// work, a finalized row with totals after. Every tick gets a fresh UUID
// that tags its history row, its log lines, and the correlation header on
// every outbound collaborator call it makes.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"lingopal/internal/types"
)

// SweepJob is one driver entry point: a full sweep over the subscriber
// snapshot (or the history backlog) at the given instant.
type SweepJob func(ctx context.Context, now time.Time) (types.SweepTotals, error)

// SweepHistory records driver ticks for the ops surface.
type SweepHistory interface {
	// Start inserts a running history row before the tick does any work.
	Start(ctx context.Context, id string, kind types.SweepKind, startedAt time.Time) error

	// Finish finalizes the row with the tick's outcome and totals.
	Finish(ctx context.Context, id string, status types.SweepStatus, totals types.SweepTotals, note string) error
}

// RunnerConfig holds the configuration for creating a Runner.
type RunnerConfig struct {
	History SweepHistory
	Logger  *slog.Logger
}

// Runner drives the registered sweeps on their cron schedules and exposes
// RunSweep for manual triggers (the ops endpoint and the sweep-runner
// tool). Registration happens before Start; the job table is read-only
// once ticks begin.
type Runner struct {
	history SweepHistory
	logger  *slog.Logger
	cron    *cron.Cron
	jobs    map[types.SweepKind]SweepJob

	// runCtx parents every tick context; set once by Start.
	runCtx context.Context
}

// NewRunner creates a new Runner with the given configuration. Schedules
// are evaluated in UTC. Within one entry, a tick that is still running
// when the next fires causes the new one to be skipped rather than
// overlapped.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger.With("component", "cron")}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		),
	)

	return &Runner{
		history: cfg.History,
		logger:  logger,
		cron:    c,
		jobs:    make(map[types.SweepKind]SweepJob),
	}
}

// Register adds a sweep under the given kind and five-field cron spec.
func (r *Runner) Register(kind types.SweepKind, spec string, job SweepJob) error {
	if _, dup := r.jobs[kind]; dup {
		return fmt.Errorf("sweep kind %s already registered", kind)
	}
	r.jobs[kind] = job

	if _, err := r.cron.AddFunc(spec, func() { r.tick(kind) }); err != nil {
		delete(r.jobs, kind)
		return fmt.Errorf("registering %s sweep: %w", kind, err)
	}
	return nil
}

// Start begins the cron loop. ctx becomes the parent of every tick
// context; cancelling it aborts in-flight collaborator calls, while the
// schedule itself is halted by Stop.
func (r *Runner) Start(ctx context.Context) {
	r.runCtx = ctx
	r.cron.Start()
	r.logger.InfoContext(ctx, "sweep runner started",
		"entries", len(r.cron.Entries()),
	)
}

// Stop halts the schedule and waits for any in-flight tick to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("sweep runner stopped")
}

// tick is the cron callback: one scheduled execution of a sweep. Errors
// are fully handled inside RunSweep; the callback has nowhere to put them.
func (r *Runner) tick(kind types.SweepKind) {
	ctx := r.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	_, _ = r.RunSweep(ctx, kind)
}

// RunSweep executes one tick of the given sweep kind with full history
// bookkeeping, shared by the cron entries and the manual trigger surface.
// The returned record reflects the tick's outcome; err is the job's own
// error, already logged and recorded in the history note.
func (r *Runner) RunSweep(ctx context.Context, kind types.SweepKind) (*types.SweepRecord, error) {
	job, ok := r.jobs[kind]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidSweepKind,
			"no sweep registered for kind "+string(kind), nil)
	}

	id := uuid.New().String()
	ctx = types.WithRequestID(ctx, id)
	startedAt := time.Now().UTC()

	logger := r.logger.With("sweep_id", id, "kind", string(kind))
	logger.InfoContext(ctx, "sweep starting")

	// Bookkeeping failures never stop the actual work; a history outage
	// would otherwise silence every sweep.
	if err := r.history.Start(ctx, id, kind, startedAt); err != nil {
		logger.ErrorContext(ctx, "failed to record sweep start", "error", err)
	}

	totals, err := job(ctx, startedAt)

	status := types.SweepStatusSucceeded
	note := ""
	if err != nil {
		status = types.SweepStatusFailed
		note = err.Error()
		logger.ErrorContext(ctx, "sweep failed", "error", err)
	}

	if ferr := r.history.Finish(ctx, id, status, totals, note); ferr != nil {
		logger.ErrorContext(ctx, "failed to finalize sweep record", "error", ferr)
	}

	finishedAt := time.Now().UTC()
	logger.InfoContext(ctx, "sweep finished",
		"status", string(status),
		"processed", totals.Processed,
		"sent", totals.Sent,
		"failed", totals.Failed,
		"duration", finishedAt.Sub(startedAt).String(),
	)

	return &types.SweepRecord{
		ID:         id,
		Kind:       kind,
		StartedAt:  startedAt,
		FinishedAt: &finishedAt,
		Status:     status,
		Processed:  totals.Processed,
		Sent:       totals.Sent,
		Failed:     totals.Failed,
		Note:       note,
	}, err
}

// cronLogger adapts slog to the cron.Logger interface used by the
// recovery and overlap-skip wrappers.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
