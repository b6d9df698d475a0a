// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements timezone resolution. Subscribers supply their own
// IANA identifiers during onboarding and the value is stored raw, so every
// scheduling decision must survive an empty, misspelled, or retired zone
// name. The resolver is total: any input degrades to UTC instead of
// erroring, and a subscriber with a broken timezone keeps receiving
// messages (on UTC wall-clock) rather than silently dropping out of the
// sweeps.
package scheduler

import (
	"strings"
	"time"
)

// DefaultTimezoneID is the fallback zone for absent or invalid subscriber
// timezones.
const DefaultTimezoneID = "UTC"

// ResolveTimezone validates a subscriber-supplied IANA timezone identifier
// and returns the loaded location together with its canonical name. Empty,
// whitespace-only, or unloadable input falls back to UTC. Never errors and
// never panics.
func ResolveTimezone(raw string) (*time.Location, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.UTC, DefaultTimezoneID
	}

	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		return time.UTC, DefaultTimezoneID
	}

	return loc, trimmed
}

// SubscriberLocation resolves a subscriber's location directly.
// Shorthand for the gates and sweeps, which never need the canonical name.
func SubscriberLocation(timezone string) *time.Location {
	loc, _ := ResolveTimezone(timezone)
	return loc
}
