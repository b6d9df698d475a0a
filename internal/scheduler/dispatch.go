// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements the push dispatch loop: the per-minute sweep that
// sends scheduled check-ins, plan-limit warnings, and re-engagement
// nudges. The loop's one hard ordering rule is write-next-before-send:
// for a due subscriber the freshly computed next send time is persisted
// before the message goes to the delivery gateway, so a hung or failed
// send can never produce a duplicate on the following tick. That ordering
// is the engine's only anti-duplicate mechanism; there are no locks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"lingopal/internal/types"
)

// DefaultReengageAfter is the silence threshold for re-engagement nudges.
const DefaultReengageAfter = 72 * time.Hour

// RefireGuardMargin is the minimum distance into the future a freshly
// computed send time must have. A window configuration whose random draw
// lands closer than this (for example a window the subscriber is still
// inside) would re-fire on the very next minute tick; such results are
// clamped instead.
const RefireGuardMargin = 5 * time.Minute

// RefireClampDelay is how far out a guarded send time is pushed. Slightly
// under a full day so the subscriber's next draw still lands inside their
// usual window rather than walking forward day over day.
const RefireClampDelay = 23 * time.Hour

// PlanWarningDelay is the reschedule distance after a plan-limit warning.
const PlanWarningDelay = 24 * time.Hour

// ShouldReengage reports whether the subscriber has been silent long
// enough for a re-engagement nudge: a recorded last outgoing message at
// least threshold ago. A subscriber with no recorded outgoing message is
// never nudged.
func ShouldReengage(sub *types.Subscriber, now time.Time, threshold time.Duration) bool {
	if sub.LastMessageSentAt == nil {
		return false
	}
	return now.Sub(*sub.LastMessageSentAt) >= threshold
}

// DispatchServiceConfig holds the configuration for creating a DispatchService.
type DispatchServiceConfig struct {
	Store    SubscriberStore
	Delivery MessageDelivery
	Prompts  PromptBuilder
	Plans    PlanChecker

	// Windows are the named schedule windows; DefaultFuzziness is the
	// jitter applied when neither the subscriber nor the window carries
	// its own.
	Windows          types.ScheduleWindows
	DefaultFuzziness int

	// ReengageAfter is the silence threshold; non-positive values fall
	// back to DefaultReengageAfter.
	ReengageAfter time.Duration

	// Rand drives the window scheduler's draws. Nil gets a fresh
	// process-seeded source; tests inject a fixed seed.
	Rand *rand.Rand

	Logger *slog.Logger
}

// DispatchService runs the per-minute push dispatch sweep.
type DispatchService struct {
	store    SubscriberStore
	delivery MessageDelivery
	prompts  PromptBuilder
	plans    PlanChecker

	windows          types.ScheduleWindows
	defaultFuzziness int
	reengageAfter    time.Duration
	rng              *rand.Rand
	logger           *slog.Logger
}

// NewDispatchService creates a new DispatchService with the given configuration.
func NewDispatchService(cfg DispatchServiceConfig) *DispatchService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reengageAfter := cfg.ReengageAfter
	if reengageAfter <= 0 {
		reengageAfter = DefaultReengageAfter
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &DispatchService{
		store:            cfg.Store,
		delivery:         cfg.Delivery,
		prompts:          cfg.Prompts,
		plans:            cfg.Plans,
		windows:          cfg.Windows,
		defaultFuzziness: cfg.DefaultFuzziness,
		reengageAfter:    reengageAfter,
		rng:              rng,
		logger:           logger,
	}
}

// Sweep runs one dispatch tick: fetch the subscriber snapshot and process
// every due subscriber sequentially. Gates evaluate the snapshot record,
// not values written earlier in the same tick.
//
// Totals: Processed counts due subscribers, Sent counts messages that
// fully delivered (warnings, check-ins, and nudges each count one),
// Failed counts due subscribers whose processing returned an error. A
// per-subscriber error is logged and the sweep continues; only a snapshot
// fetch failure aborts the tick.
func (s *DispatchService) Sweep(ctx context.Context, now time.Time) (types.SweepTotals, error) {
	subs, err := s.store.GetAllActive(ctx)
	if err != nil {
		return types.SweepTotals{}, fmt.Errorf("fetching subscriber snapshot: %w", err)
	}

	var totals types.SweepTotals
	for i := range subs {
		sub := &subs[i]
		if !isDue(sub, now) {
			continue
		}
		totals.Processed++

		sent, err := s.processDue(ctx, sub, now)
		totals.Sent += sent
		if err != nil {
			totals.Failed++
			s.logger.ErrorContext(ctx, "dispatch failed for subscriber",
				"subscriber", sub.Phone,
				"error", err,
			)
		}
	}

	s.logger.InfoContext(ctx, "dispatch sweep complete",
		"snapshot_size", len(subs),
		"processed", totals.Processed,
		"sent", totals.Sent,
		"failed", totals.Failed,
	)

	return totals, nil
}

// isDue reports whether the subscriber's scheduled send time has arrived.
// A subscriber who has never been scheduled is due immediately; the
// window scheduler's future guarantee then takes over.
func isDue(sub *types.Subscriber, now time.Time) bool {
	return sub.NextPushMessageAt == nil || !now.Before(*sub.NextPushMessageAt)
}

// processDue handles one due subscriber. Returns how many messages were
// fully delivered for this subscriber during the tick.
//
// Order of operations:
//  1. Plan-limit branch: over-limit subscribers get a warning, a reschedule
//     a full day out, and nothing else this tick.
//  2. Compute the next send time, clamping anything inside the guard
//     margin to RefireClampDelay out.
//  3. Persist the next send time. Only then hand the check-in to delivery.
//  4. Evaluate the re-engagement gate against the snapshot record and send
//     the nudge when it fires.
func (s *DispatchService) processDue(ctx context.Context, sub *types.Subscriber, now time.Time) (int, error) {
	if s.plans.OverLimit(sub, now) {
		return s.sendPlanWarning(ctx, sub, now)
	}

	loc := SubscriberLocation(sub.Timezone)
	next := NextSendTime(now.In(loc), sub.MessagingPreference, s.windows, s.defaultFuzziness, s.rng)
	if next.Sub(now) < RefireGuardMargin {
		next = now.Add(RefireClampDelay)
	}

	if err := s.store.UpdateNextPush(ctx, sub.Phone, next.UTC()); err != nil {
		// Without the persisted next time the anti-duplicate ordering is
		// gone; skip the send and let the next tick retry.
		return 0, fmt.Errorf("persisting next send time: %w", err)
	}

	sent := 0

	body, err := s.prompts.CheckIn(sub, now.In(loc))
	if err != nil {
		return sent, fmt.Errorf("building check-in message: %w", err)
	}
	outcome, err := s.delivery.Send(ctx, sub.Phone, body, types.MessageScheduled)
	switch {
	case err != nil:
		return sent, fmt.Errorf("sending check-in: %w", err)
	case !outcome.Delivered():
		s.logger.WarnContext(ctx, "check-in delivery reported failures",
			"subscriber", sub.Phone,
			"failed_parts", outcome.Failed,
		)
	default:
		sent++
		s.markMessageSent(ctx, sub.Phone, now)
	}

	if ShouldReengage(sub, now, s.reengageAfter) {
		nudged, err := s.sendNudge(ctx, sub, now)
		sent += nudged
		if err != nil {
			return sent, err
		}
	}

	return sent, nil
}

// sendPlanWarning reschedules an over-limit subscriber a day out and sends
// the plan warning. The reschedule is persisted before the send, matching
// the loop's ordering rule.
func (s *DispatchService) sendPlanWarning(ctx context.Context, sub *types.Subscriber, now time.Time) (int, error) {
	if err := s.store.UpdateNextPush(ctx, sub.Phone, now.Add(PlanWarningDelay).UTC()); err != nil {
		return 0, fmt.Errorf("persisting plan-warning reschedule: %w", err)
	}

	body, err := s.prompts.PlanWarning(sub)
	if err != nil {
		return 0, fmt.Errorf("building plan warning: %w", err)
	}
	outcome, err := s.delivery.Send(ctx, sub.Phone, body, types.MessagePlanWarning)
	if err != nil {
		return 0, fmt.Errorf("sending plan warning: %w", err)
	}
	if !outcome.Delivered() {
		s.logger.WarnContext(ctx, "plan warning delivery reported failures",
			"subscriber", sub.Phone,
			"failed_parts", outcome.Failed,
		)
		return 0, nil
	}

	s.markMessageSent(ctx, sub.Phone, now)
	return 1, nil
}

// sendNudge sends the re-engagement message. The nudge is a lightweight
// standalone message; it does not touch the agent conversation.
func (s *DispatchService) sendNudge(ctx context.Context, sub *types.Subscriber, now time.Time) (int, error) {
	silentFor := now.Sub(*sub.LastMessageSentAt)

	body, err := s.prompts.Nudge(sub, silentFor)
	if err != nil {
		return 0, fmt.Errorf("building re-engagement nudge: %w", err)
	}
	outcome, err := s.delivery.Send(ctx, sub.Phone, body, types.MessageReengagement)
	if err != nil {
		return 0, fmt.Errorf("sending re-engagement nudge: %w", err)
	}
	if !outcome.Delivered() {
		s.logger.WarnContext(ctx, "re-engagement nudge delivery reported failures",
			"subscriber", sub.Phone,
			"failed_parts", outcome.Failed,
		)
		return 0, nil
	}

	s.logger.InfoContext(ctx, "re-engagement nudge sent",
		"subscriber", sub.Phone,
		"silent_for", silentFor.String(),
	)

	s.markMessageSent(ctx, sub.Phone, now)
	return 1, nil
}

// markMessageSent records the outgoing message time. A write failure here
// costs at worst one extra nudge three days later, so it is logged and
// swallowed rather than failing the subscriber's tick.
func (s *DispatchService) markMessageSent(ctx context.Context, phone string, now time.Time) {
	if err := s.store.UpdateLastMessageSent(ctx, phone, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist last message time",
			"subscriber", phone,
			"error", err,
		)
	}
}
