// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements the nightly maintenance side of the engine: the
// night-hour detector, the trigger gate that makes the cycle run at most
// once per subscriber per local calendar day, and the maintenance pipeline
// itself (digest, prune, clear, reinitiate, deliver). The hourly driver
// sweeps the full subscriber snapshot through the gate; the gate's
// comparison of the persisted last-run date against "today" in the
// subscriber's own zone is the sole idempotency mechanism, so the pipeline
// is restart-safe without any in-memory bookkeeping.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lingopal/internal/types"
)

// DefaultNightlyHour is the local hour of the nightly maintenance cycle.
const DefaultNightlyHour = 3

// DefaultKeepDigests is how many recent digests survive nightly pruning.
const DefaultKeepDigests = 10

// IsNightHour reports whether it is currently the nightly maintenance hour
// in the subscriber's local timezone. This is a single-hour window: an
// hourly driver sees it true for exactly one tick per day, but the gate
// below does not rely on that.
func IsNightHour(sub *types.Subscriber, now time.Time, nightlyHour int) bool {
	return now.In(SubscriberLocation(sub.Timezone)).Hour() == nightlyHour
}

// ShouldRunNightly decides whether the maintenance pipeline should run for
// this subscriber right now: it must be the night hour locally, and the
// persisted last-run date must differ from today's local date (a nil
// last-run never equals any date). Calling it twice without a state change
// in between returns the same answer; after the caller persists today's
// date, it flips to false for the rest of the local day.
func ShouldRunNightly(sub *types.Subscriber, now time.Time, nightlyHour int) bool {
	if !IsNightHour(sub, now, nightlyHour) {
		return false
	}
	today := types.LocalDateAt(now, SubscriberLocation(sub.Timezone))
	return sub.LastNightlyDigestRun == nil || *sub.LastNightlyDigestRun != today
}

// NightlyOutcome is the maintenance pipeline's result for one subscriber.
type NightlyOutcome struct {
	// Delivered is true iff the fresh conversation's opening message was
	// handed to the delivery gateway and it reported zero failures.
	Delivered bool
}

// NightlyServiceConfig holds the configuration for creating a NightlyService.
type NightlyServiceConfig struct {
	Store    SubscriberStore
	Agent    ConversationAgent
	Digests  DigestService
	Delivery MessageDelivery
	Prompts  PromptBuilder

	// NightlyHour is the local maintenance hour; out-of-range values fall
	// back to DefaultNightlyHour.
	NightlyHour int

	// KeepDigests is the digest retention count; non-positive values fall
	// back to DefaultKeepDigests.
	KeepDigests int

	Logger *slog.Logger
}

// NightlyService runs the nightly maintenance cycle: the hourly sweep over
// the subscriber snapshot, and the per-subscriber pipeline.
type NightlyService struct {
	store    SubscriberStore
	agent    ConversationAgent
	digests  DigestService
	delivery MessageDelivery
	prompts  PromptBuilder

	nightlyHour int
	keepDigests int
	logger      *slog.Logger
}

// NewNightlyService creates a new NightlyService with the given configuration.
func NewNightlyService(cfg NightlyServiceConfig) *NightlyService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nightlyHour := cfg.NightlyHour
	if nightlyHour < 0 || nightlyHour > 23 {
		nightlyHour = DefaultNightlyHour
	}
	keepDigests := cfg.KeepDigests
	if keepDigests <= 0 {
		keepDigests = DefaultKeepDigests
	}
	return &NightlyService{
		store:       cfg.Store,
		agent:       cfg.Agent,
		digests:     cfg.Digests,
		delivery:    cfg.Delivery,
		prompts:     cfg.Prompts,
		nightlyHour: nightlyHour,
		keepDigests: keepDigests,
		logger:      logger,
	}
}

// Sweep runs one hourly nightly tick: fetch the subscriber snapshot, gate
// each subscriber, run the pipeline for those due, and persist the run
// marker for those whose opener was delivered.
//
// Totals: Processed counts subscribers the gate admitted, Sent counts
// delivered openers, Failed counts admitted subscribers whose cycle did
// not fully complete (undelivered pipeline or marker write failure). A
// failed subscriber's last-run date is left untouched, so the next hourly
// tick inside the same night hour retries the whole pipeline.
//
// A snapshot fetch failure aborts the tick with a single error; per
// subscriber failures never do.
func (s *NightlyService) Sweep(ctx context.Context, now time.Time) (types.SweepTotals, error) {
	subs, err := s.store.GetAllActive(ctx)
	if err != nil {
		return types.SweepTotals{}, fmt.Errorf("fetching subscriber snapshot: %w", err)
	}

	var totals types.SweepTotals
	for i := range subs {
		sub := &subs[i]
		if !ShouldRunNightly(sub, now, s.nightlyHour) {
			continue
		}
		totals.Processed++

		outcome := s.RunNightly(ctx, sub, now)
		if !outcome.Delivered {
			totals.Failed++
			continue
		}
		totals.Sent++

		if err := s.store.UpdateLastMessageSent(ctx, sub.Phone, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to persist last message time",
				"subscriber", sub.Phone,
				"error", err,
			)
		}

		today := types.LocalDateAt(now, SubscriberLocation(sub.Timezone))
		if err := s.store.UpdateLastNightlyRun(ctx, sub.Phone, today); err != nil {
			// The opener went out but the marker write failed; the next
			// hourly tick will re-run the pipeline for this subscriber.
			s.logger.ErrorContext(ctx, "failed to persist nightly run marker",
				"subscriber", sub.Phone,
				"local_day", string(today),
				"error", err,
			)
			totals.Failed++
		}
	}

	s.logger.InfoContext(ctx, "nightly sweep complete",
		"snapshot_size", len(subs),
		"processed", totals.Processed,
		"sent", totals.Sent,
		"failed", totals.Failed,
	)

	return totals, nil
}

// RunNightly executes the maintenance pipeline for one subscriber:
//
//  1. Bump the conversation counter (failure tolerated).
//  2. Create a digest of the day's conversation (failure tolerated; "not
//     enough history" is a normal outcome).
//  3. Prune digests beyond the retention count (failure tolerated).
//  4. Clear the conversation context (failure tolerated).
//  5. Initiate a fresh conversation seeded with the daily prompt.
//  6. Deliver the agent's opening message.
//
// Only delivery with zero failed parts yields Delivered=true. The caller
// persists the nightly run marker only then; any earlier step's tolerated
// failure is logged with subscriber context and the pipeline continues.
func (s *NightlyService) RunNightly(ctx context.Context, sub *types.Subscriber, now time.Time) NightlyOutcome {
	localNow := now.In(SubscriberLocation(sub.Timezone))

	if _, err := s.agent.BumpConversationCounter(ctx, sub.Phone); err != nil {
		s.logger.ErrorContext(ctx, "failed to bump conversation counter",
			"subscriber", sub.Phone,
			"error", err,
		)
	}

	created, err := s.digests.CreateDigest(ctx, sub.Phone)
	if err != nil {
		s.logger.ErrorContext(ctx, "digest creation failed",
			"subscriber", sub.Phone,
			"error", err,
		)
	} else if !created {
		s.logger.InfoContext(ctx, "no digest created, not enough history",
			"subscriber", sub.Phone,
		)
	}

	if removed, err := s.digests.RemoveOldDigests(ctx, sub.Phone, s.keepDigests); err != nil {
		s.logger.ErrorContext(ctx, "digest pruning failed",
			"subscriber", sub.Phone,
			"error", err,
		)
	} else if removed > 0 {
		s.logger.InfoContext(ctx, "pruned old digests",
			"subscriber", sub.Phone,
			"removed", removed,
		)
	}

	if err := s.agent.ClearConversation(ctx, sub.Phone); err != nil {
		s.logger.ErrorContext(ctx, "conversation clear failed",
			"subscriber", sub.Phone,
			"error", err,
		)
	}

	prompt, err := s.prompts.DailyPrompt(sub, localNow)
	if err != nil {
		s.logger.ErrorContext(ctx, "daily prompt build failed",
			"subscriber", sub.Phone,
			"error", err,
		)
		return NightlyOutcome{}
	}

	opener, err := s.agent.InitiateConversation(ctx, sub.Phone, prompt)
	if err != nil {
		s.logger.ErrorContext(ctx, "conversation initiation failed",
			"subscriber", sub.Phone,
			"error", err,
		)
		return NightlyOutcome{}
	}

	outcome, err := s.delivery.Send(ctx, sub.Phone, opener, types.MessageNightlyOpener)
	if err != nil {
		s.logger.ErrorContext(ctx, "nightly opener delivery failed",
			"subscriber", sub.Phone,
			"error", err,
		)
		return NightlyOutcome{}
	}
	if !outcome.Delivered() {
		s.logger.WarnContext(ctx, "nightly opener delivery reported failures",
			"subscriber", sub.Phone,
			"failed_parts", outcome.Failed,
		)
		return NightlyOutcome{}
	}

	s.logger.InfoContext(ctx, "nightly maintenance delivered",
		"subscriber", sub.Phone,
	)

	return NightlyOutcome{Delivered: true}
}
