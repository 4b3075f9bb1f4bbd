package tripwire

import (
	"strconv"
	"time"
)

// absentValue is how a missing baseline is rendered in logs and notifications.
const absentValue = "<nothing>"

// Value is an observed page value that may be absent.
//
// A site has no value until its first successful check completes. Value
// keeps "absent" distinct from the empty string, which is a legitimate
// observation (for example an element that exists but has no text).
type Value struct {
	text  string
	valid bool
}

// ValueOf returns a present [Value] holding s.
func ValueOf(s string) Value {
	return Value{text: s, valid: true}
}

// NoValue is the absent [Value].
var NoValue = Value{}

// Get returns the held string and whether the value is present.
func (v Value) Get() (string, bool) {
	return v.text, v.valid
}

// Valid reports whether the value is present.
func (v Value) Valid() bool {
	return v.valid
}

// String renders the value for humans. An absent value renders as
// "<nothing>" and an empty string renders as `""`.
func (v Value) String() string {
	if !v.valid {
		return absentValue
	}
	if v.text == "" {
		return strconv.Quote(v.text)
	}
	return v.text
}

// MonitorState is the lifecycle state of a site monitor.
type MonitorState string

const (
	// StateInitializing is the state before the selector has been compiled.
	StateInitializing MonitorState = "initializing"

	// StateRunning means the monitor is ticking.
	StateRunning MonitorState = "running"

	// StateTerminated means the monitor has stopped and will not tick again,
	// either because of an error or because the process is shutting down.
	StateTerminated MonitorState = "terminated"
)

// String returns the string representation of the state.
func (s MonitorState) String() string {
	return string(s)
}

// TickResult describes the outcome of one tick of a site monitor, or the
// monitor's termination.
//
// TickResult values are delivered to callbacks registered with
// [WithTickCallback]. They are the only way monitor state leaves the
// goroutine that owns it.
type TickResult struct {
	// Site is the name of the monitored site.
	Site string

	// URL is the site's source URL.
	URL string

	// State is the monitor state after this tick.
	State MonitorState

	// Tick is the 1-based tick number. Zero for a monitor that terminated
	// before its first tick.
	Tick int

	// Previous is the baseline the tick's rules were evaluated against.
	Previous Value

	// Value is the value computed by this tick. Absent if the tick failed
	// before the transformer pipeline completed.
	Value Value

	// MatchedRule is the first rule that matched, if any.
	MatchedRule *Rule

	// Notification is the notification sent by this tick, if any.
	Notification *Notification

	// Stage is the pipeline stage that failed, or StagePanic. Empty on
	// success.
	Stage Stage

	// Error is the error that terminated the monitor, if any.
	Error error

	// Duration is how long the tick took.
	Duration time.Duration

	// CheckedAt is when the tick started.
	CheckedAt time.Time
}
