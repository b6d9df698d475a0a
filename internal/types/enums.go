package types

// WindowName identifies a messaging preference mode: one of the named
// daily windows, or the explicit fixed-times mode.
type WindowName string

const (
	WindowMorning WindowName = "morning"
	WindowMidday  WindowName = "midday"
	WindowEvening WindowName = "evening"
	WindowFixed   WindowName = "fixed"
)

// NamedWindows lists the window names that must exist in the schedule
// window configuration. WindowFixed is deliberately absent: fixed-times
// subscribers carry their own times.
var NamedWindows = []WindowName{WindowMorning, WindowMidday, WindowEvening}

// SweepKind identifies which driver produced a sweep.
type SweepKind string

const (
	SweepNightly        SweepKind = "nightly"
	SweepDispatch       SweepKind = "dispatch"
	SweepHistoryArchive SweepKind = "history_archive"
)

// ParseSweepKind validates a caller-supplied sweep kind string.
// Used by the ops trigger endpoint and the manual sweep tool.
func ParseSweepKind(s string) (SweepKind, error) {
	switch SweepKind(s) {
	case SweepNightly, SweepDispatch, SweepHistoryArchive:
		return SweepKind(s), nil
	default:
		return "", NewAppError(ErrCodeValidationInvalidSweepKind, "unknown sweep kind: "+s, nil)
	}
}

// SweepStatus is the lifecycle state of a sweep history row.
type SweepStatus string

const (
	SweepStatusRunning   SweepStatus = "running"
	SweepStatusSucceeded SweepStatus = "succeeded"
	SweepStatusFailed    SweepStatus = "failed"
)

// MessageKind labels outgoing messages for logging and delivery metadata.
type MessageKind string

const (
	MessageScheduled     MessageKind = "scheduled"
	MessageReengagement  MessageKind = "reengagement"
	MessagePlanWarning   MessageKind = "plan_warning"
	MessageNightlyOpener MessageKind = "nightly_opener"
)
