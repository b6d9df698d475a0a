package types

import (
	"fmt"
	"strconv"
	"time"
)

// LocalDateLayout is the storage and wire format for LocalDate values.
const LocalDateLayout = "2006-01-02"

// LocalDate is a calendar date (YYYY-MM-DD) with no time-of-day or zone
// component. The nightly trigger gate compares these, never timestamps:
// "has maintenance already run on this subscriber's local day" is a date
// question, and answering it with instants invites off-by-one bugs around
// midnight and DST transitions.
type LocalDate string

// LocalDateAt returns the calendar date of t as observed in loc.
func LocalDateAt(t time.Time, loc *time.Location) LocalDate {
	return LocalDate(t.In(loc).Format(LocalDateLayout))
}

// MessagingPreference describes when a subscriber wants their scheduled
// check-in messages. Type selects either a named daily window or the
// explicit fixed-times mode. Times is only meaningful for WindowFixed and
// holds local HH:mm strings. FuzzinessMinutes, when set, overrides the
// window's configured jitter.
type MessagingPreference struct {
	Type             WindowName `json:"type"`
	Times            []string   `json:"times,omitempty"`
	FuzzinessMinutes *int       `json:"fuzziness_minutes,omitempty"`
}

// Fuzziness returns the subscriber's jitter override in minutes, or
// fallback when none is set.
func (p *MessagingPreference) Fuzziness(fallback int) int {
	if p != nil && p.FuzzinessMinutes != nil {
		return *p.FuzzinessMinutes
	}
	return fallback
}

// Subscriber is the core domain entity: one person chatting with the
// language agent. The scheduling fields (NextPushMessageAt,
// LastMessageSentAt, LastNightlyDigestRun) are owned by the scheduler and
// mutated exclusively through the subscriber store's partial updates; the
// rest of the record is managed by the onboarding surface, which lives
// outside this service.
type Subscriber struct {
	Phone       string `json:"phone" db:"phone"`
	DisplayName string `json:"display_name,omitempty" db:"display_name"`
	Language    string `json:"language" db:"language"`

	// Timezone is the raw IANA identifier as the subscriber supplied it.
	// It may be empty or invalid; scheduling degrades to UTC rather than
	// rejecting the record.
	Timezone string `json:"timezone,omitempty" db:"timezone"`

	MessagingPreference *MessagingPreference `json:"messaging_preference,omitempty" db:"messaging_preference"`

	IsPremium  bool      `json:"is_premium" db:"is_premium"`
	SignedUpAt time.Time `json:"signed_up_at" db:"signed_up_at"`

	// NextPushMessageAt is the next scheduled send in UTC. Nil means the
	// subscriber has never been scheduled and is due immediately.
	NextPushMessageAt *time.Time `json:"next_push_message_at,omitempty" db:"next_push_message_at"`

	// LastMessageSentAt is the last outgoing message of any kind, used by
	// the re-engagement gate.
	LastMessageSentAt *time.Time `json:"last_message_sent_at,omitempty" db:"last_message_sent_at"`

	// LastNightlyDigestRun is the last local calendar date on which the
	// nightly maintenance pipeline completed with a delivered opener.
	LastNightlyDigestRun *LocalDate `json:"last_nightly_digest_run,omitempty" db:"last_nightly_digest_run"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ScheduleWindow is one named daily send window. Start and End are local
// HH:mm strings interpreted in each subscriber's own timezone.
// FuzzinessMinutes is the default jitter for subscribers who do not carry
// their own override.
type ScheduleWindow struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	FuzzinessMinutes int    `json:"fuzziness_minutes"`
}

// ScheduleWindows maps window names (morning, midday, evening) to their
// configured bounds. Loaded once at startup; never mutated afterwards.
type ScheduleWindows map[WindowName]ScheduleWindow

// ParseHHMM parses a strict five-character "HH:mm" local time string.
// Strictness matters: "8:00" or "08:00:00" slipping through would shift a
// subscriber's window silently, so anything but two digits, a colon, and
// two digits is rejected.
func ParseHHMM(s string) (hour, minute int, err error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, 0, fmt.Errorf("invalid HH:mm time %q", s)
	}
	hour, err = strconv.Atoi(s[0:2])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:mm time %q", s)
	}
	minute, err = strconv.Atoi(s[3:5])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid HH:mm time %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("HH:mm time out of range %q", s)
	}
	return hour, minute, nil
}

// SendOutcome is the delivery collaborator's result for one send attempt.
// Failed counts undeliverable message parts; zero signals success.
type SendOutcome struct {
	Failed int `json:"failed"`
}

// Delivered reports whether the send fully succeeded.
func (o SendOutcome) Delivered() bool {
	return o.Failed == 0
}

// SweepRecord is one row of sweep history: a single driver tick's
// execution, identified by the same UUID that tags its log lines.
type SweepRecord struct {
	ID         string      `json:"id" db:"id"`
	Kind       SweepKind   `json:"kind" db:"kind"`
	StartedAt  time.Time   `json:"started_at" db:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty" db:"finished_at"`
	Status     SweepStatus `json:"status" db:"status"`
	Processed  int         `json:"processed" db:"processed"`
	Sent       int         `json:"sent" db:"sent"`
	Failed     int         `json:"failed" db:"failed"`
	Note       string      `json:"note,omitempty" db:"note"`
}

// SweepTotals aggregates the per-subscriber outcomes of one sweep for the
// history row and the tick summary log line.
type SweepTotals struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
