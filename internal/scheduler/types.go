// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file defines the collaborator contracts shared by the sweep services.
// The interfaces are consumer-side: they name exactly the operations the
// sweeps perform, and the concrete implementations (internal/db repositories,
// internal/external HTTP clients, internal/prompt, internal/billing) satisfy
// them without importing this package. Tests substitute hand-rolled fakes.
package scheduler

import (
	"context"
	"time"

	"lingopal/internal/types"
)

// SubscriberStore abstracts the subscriber persistence operations the sweeps
// need. Partial updates never clobber unrelated fields; each method writes
// exactly one scheduling field.
type SubscriberStore interface {
	// GetAllActive returns the per-tick snapshot of all subscribers.
	// Each sweep iterates this snapshot; records changed mid-sweep are not
	// revisited until the next tick.
	GetAllActive(ctx context.Context) ([]types.Subscriber, error)

	// UpdateNextPush sets next_push_message_at.
	UpdateNextPush(ctx context.Context, phone string, at time.Time) error

	// UpdateLastMessageSent sets last_message_sent_at.
	UpdateLastMessageSent(ctx context.Context, phone string, at time.Time) error

	// UpdateLastNightlyRun sets last_nightly_digest_run to the given local
	// calendar date.
	UpdateLastNightlyRun(ctx context.Context, phone string, day types.LocalDate) error
}

// ConversationAgent abstracts the agent service that owns each subscriber's
// chat context.
type ConversationAgent interface {
	// BumpConversationCounter increments the subscriber's lifetime
	// conversation count and returns the new value.
	BumpConversationCounter(ctx context.Context, phone string) (int, error)

	// ClearConversation deletes the active conversation context.
	// Idempotent: clearing an empty conversation is not an error.
	ClearConversation(ctx context.Context, phone string) error

	// InitiateConversation starts a fresh conversation seeded with the given
	// system prompt and returns the agent's opening message text.
	InitiateConversation(ctx context.Context, phone, prompt string) (string, error)
}

// DigestService abstracts the conversation digest collaborator.
type DigestService interface {
	// CreateDigest summarizes the subscriber's current conversation.
	// Returns false (with nil error) when there is not enough history to
	// digest; that is a normal outcome, not a failure.
	CreateDigest(ctx context.Context, phone string) (bool, error)

	// RemoveOldDigests prunes stored digests beyond the keep count and
	// returns how many were removed.
	RemoveOldDigests(ctx context.Context, phone string, keep int) (int, error)
}

// MessageDelivery abstracts the delivery gateway. A SendOutcome with zero
// failed parts signals success.
type MessageDelivery interface {
	Send(ctx context.Context, phone, body string, kind types.MessageKind) (types.SendOutcome, error)
}

// PromptBuilder abstracts message body construction. All methods are pure
// over their inputs.
type PromptBuilder interface {
	// DailyPrompt builds the system prompt seeding the nightly fresh
	// conversation. localNow is the current time in the subscriber's zone.
	DailyPrompt(sub *types.Subscriber, localNow time.Time) (string, error)

	// CheckIn builds the scheduled check-in message body.
	CheckIn(sub *types.Subscriber, localNow time.Time) (string, error)

	// Nudge builds the re-engagement message body for a subscriber who has
	// been silent for the given duration.
	Nudge(sub *types.Subscriber, silentFor time.Duration) (string, error)

	// PlanWarning builds the plan-limit warning message body.
	PlanWarning(sub *types.Subscriber) (string, error)
}

// PlanChecker abstracts the billing plan-limit predicate consumed by the
// dispatch loop.
type PlanChecker interface {
	OverLimit(sub *types.Subscriber, now time.Time) bool
}
