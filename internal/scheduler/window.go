// Package scheduler implements the subscriber scheduling and lifecycle
// orchestration engine for the lingopal platform.
//
// This file implements the window scheduler: the pure computation that
// turns a subscriber's messaging preference into the next concrete send
// instant. Two modes exist. Fixed-times subscribers get the next listed
// HH:mm occurrence in their zone. Window subscribers get a uniformly
// random instant inside their named daily window, plus jitter, so sends
// do not cluster at window boundaries and do not land at the same minute
// every day.
//
// All functions here are pure over (now, preference, windows, rng); the
// dispatch loop owns persistence of the result.
package scheduler

import (
	"math/rand/v2"
	"time"

	"lingopal/internal/types"
)

// scheduleFallbackDelay is the future-guarantee fallback: whenever the
// computed send instant is not strictly after now (degenerate window
// config, all fixed entries malformed, jitter landing in the past), the
// subscriber is scheduled a full day out instead. This is what makes the
// scheduler unable to re-fire within the same tick.
const scheduleFallbackDelay = 24 * time.Hour

// NextSendTime computes the next scheduled send instant for a subscriber.
// now must already be in the subscriber's resolved location; the result is
// in the same location (callers store it as UTC).
//
// Resolution order:
//  1. Explicit fixed times take precedence: the earliest listed HH:mm
//     occurrence strictly after now today, else the earliest listed time
//     tomorrow.
//  2. Otherwise the named window from the preference, falling back to the
//     morning window when the preference is absent or names an unknown
//     window.
//  3. Window mode: when now is already past the window's end, both bounds
//     shift one day forward. The instant is a uniformly random minute
//     offset inside [start, end], plus a uniform jitter in
//     [-fuzziness, +fuzziness] minutes.
//
// Future guarantee: whatever the mode computed, a result that is not
// strictly after now is discarded in favor of now + 24h.
//
// Fuzziness precedence: the subscriber's own override, else the window's
// configured jitter, else defaultFuzziness.
func NextSendTime(
	now time.Time,
	pref *types.MessagingPreference,
	windows types.ScheduleWindows,
	defaultFuzziness int,
	rng *rand.Rand,
) time.Time {
	fallback := now.Add(scheduleFallbackDelay)

	if pref != nil && pref.Type == types.WindowFixed && len(pref.Times) > 0 {
		next, ok := nextFixedTime(now, pref.Times)
		if !ok || !next.After(now) {
			return fallback
		}
		return next
	}

	name := types.WindowMorning
	if pref != nil && pref.Type != "" && pref.Type != types.WindowFixed {
		name = pref.Type
	}
	win, ok := windows[name]
	if !ok {
		// Unknown window name in the preference; degrade to morning.
		win, ok = windows[types.WindowMorning]
		if !ok {
			return fallback
		}
	}

	fuzziness := win.FuzzinessMinutes
	if fuzziness <= 0 {
		fuzziness = defaultFuzziness
	}
	fuzziness = pref.Fuzziness(fuzziness)

	next, ok := randomWindowTime(now, win, fuzziness, rng)
	if !ok || !next.After(now) {
		return fallback
	}
	return next
}

// nextFixedTime returns the earliest occurrence of any listed HH:mm time
// strictly after now, looking at today first and then tomorrow. Entries
// that fail to parse are skipped; config validation rejects them before
// they reach a stored preference, so a malformed entry here means a write
// bypassed validation and the remaining entries should still schedule.
// Returns ok=false only when every entry was malformed.
func nextFixedTime(now time.Time, fixedTimes []string) (time.Time, bool) {
	loc := now.Location()

	var earliestToday, earliestTomorrow time.Time
	for _, entry := range fixedTimes {
		hour, minute, err := types.ParseHHMM(entry)
		if err != nil {
			continue
		}

		today := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if today.After(now) && (earliestToday.IsZero() || today.Before(earliestToday)) {
			earliestToday = today
		}

		tomorrow := today.AddDate(0, 0, 1)
		if earliestTomorrow.IsZero() || tomorrow.Before(earliestTomorrow) {
			earliestTomorrow = tomorrow
		}
	}

	if !earliestToday.IsZero() {
		return earliestToday, true
	}
	if !earliestTomorrow.IsZero() {
		return earliestTomorrow, true
	}
	return time.Time{}, false
}

// randomWindowTime picks a random instant inside the window's [start, end]
// bounds for today (or tomorrow, when now is already past today's end),
// then applies jitter. Returns ok=false when the window bounds are
// malformed or inverted.
//
// time.Date in the subscriber's location handles DST: on transition days
// the window simply lands at the post-shift wall-clock times.
func randomWindowTime(now time.Time, win types.ScheduleWindow, fuzziness int, rng *rand.Rand) (time.Time, bool) {
	startHour, startMin, err := types.ParseHHMM(win.Start)
	if err != nil {
		return time.Time{}, false
	}
	endHour, endMin, err := types.ParseHHMM(win.End)
	if err != nil {
		return time.Time{}, false
	}

	loc := now.Location()
	start := time.Date(now.Year(), now.Month(), now.Day(), startHour, startMin, 0, 0, loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), endHour, endMin, 0, 0, loc)
	if end.Before(start) {
		return time.Time{}, false
	}

	// Past today's window: schedule inside tomorrow's.
	if now.After(end) {
		start = start.AddDate(0, 0, 1)
		end = end.AddDate(0, 0, 1)
	}

	span := int(end.Sub(start) / time.Minute)
	offset := 0
	if span > 0 {
		offset = rng.IntN(span + 1)
	}
	candidate := start.Add(time.Duration(offset) * time.Minute)

	if fuzziness > 0 {
		jitter := rng.IntN(2*fuzziness+1) - fuzziness
		candidate = candidate.Add(time.Duration(jitter) * time.Minute)
	}

	return candidate, true
}
