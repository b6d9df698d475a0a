// Package billing provides plan tier logic for the scheduling engine.
package billing

import "lingopal/internal/types"

// PlanTier identifies a subscriber's plan.
type PlanTier string

const (
	PlanFree    PlanTier = "free"
	PlanPremium PlanTier = "premium"
)

// TierFor derives the plan tier from a subscriber record. The tier is not
// stored directly; the premium flag is the billing system's contract with
// this service.
func TierFor(sub *types.Subscriber) PlanTier {
	if sub.IsPremium {
		return PlanPremium
	}
	return PlanFree
}

// PlanLimits defines what a tier allows.
type PlanLimits struct {
	// TrialDays is how many days of scheduled sends a subscriber gets
	// after signup. Zero means unlimited -- enforcement code must treat
	// 0 as no cutoff.
	TrialDays int
}

// Unlimited reports whether the tier has no trial cutoff.
func (l PlanLimits) Unlimited() bool {
	return l.TrialDays == 0
}

// PlanRegistry defines the authoritative limits for each tier.
// This is the single source of truth for what each plan allows.
type PlanRegistry interface {
	// GetLimits returns the limits for the given plan tier. For unknown
	// tiers, returns the most restrictive (Free) limits to fail safely.
	GetLimits(tier PlanTier) PlanLimits
}

// staticPlanRegistry is a compile-time plan registry backed by an in-memory map.
// It implements PlanRegistry and is the standard implementation for production use.
type staticPlanRegistry struct {
	limits map[PlanTier]PlanLimits
}

// planDefaults defines the hardcoded plan limits.
//
//	| Plan    | Scheduled sends          |
//	|---------|--------------------------|
//	| Free    | 14 days from signup      |
//	| Premium | 0 (unlimited)            |
var planDefaults = map[PlanTier]PlanLimits{
	PlanFree: {
		TrialDays: 14,
	},
	PlanPremium: {
		TrialDays: 0, // Unlimited -- enforcement treats 0 as no cutoff
	},
}

// freeLimits is cached to avoid map lookups on the fallback path.
var freeLimits = planDefaults[PlanFree]

// NewStaticPlanRegistry returns a PlanRegistry backed by the hardcoded plan
// limits. This is the standard production implementation; no database or
// external service is required.
func NewStaticPlanRegistry() PlanRegistry {
	// Copy the defaults into a new map so callers cannot mutate the package-level variable.
	m := make(map[PlanTier]PlanLimits, len(planDefaults))
	for k, v := range planDefaults {
		m[k] = v
	}
	return &staticPlanRegistry{limits: m}
}

// GetLimits returns the limits for the given plan tier.
// If the tier is unknown, it returns the Free tier limits as a safe default.
func (r *staticPlanRegistry) GetLimits(tier PlanTier) PlanLimits {
	if limits, ok := r.limits[tier]; ok {
		return limits
	}
	return freeLimits
}
