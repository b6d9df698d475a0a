package billing

import (
	"time"

	"lingopal/internal/types"
)

// Checker answers the dispatch sweep's plan question: may this subscriber
// still receive scheduled sends right now?
type Checker struct {
	registry PlanRegistry
}

// NewChecker creates a Checker backed by the given plan registry.
func NewChecker(registry PlanRegistry) *Checker {
	return &Checker{registry: registry}
}

// OverLimit reports whether the subscriber's plan no longer covers
// scheduled sends at now. Free-tier subscribers are covered for TrialDays
// after signup; unlimited tiers are always covered. The boundary is
// exclusive: exactly TrialDays after signup is already over.
func (c *Checker) OverLimit(sub *types.Subscriber, now time.Time) bool {
	limits := c.registry.GetLimits(TierFor(sub))
	if limits.Unlimited() {
		return false
	}
	trialEnd := sub.SignedUpAt.Add(time.Duration(limits.TrialDays) * 24 * time.Hour)
	return !now.Before(trialEnd)
}
