package store

import "time"

// SiteStatus is the last known state of one site monitor.
//
// SiteStatus is the storage representation used by the REST API and SSE
// stream. It is decoupled from the tripwire package's TickResult.
type SiteStatus struct {
	// Name is the site's display name.
	Name string `json:"name"`

	// URL is the monitored page.
	URL string `json:"url"`

	// State is the monitor state: initializing, running or terminated.
	State string `json:"state"`

	// Value is the last observed value. nil until the first successful tick.
	Value *string `json:"value"`

	// Ticks is the number of ticks attempted so far.
	Ticks int `json:"ticks"`

	// Notifications counts the notifications sent since startup.
	Notifications int `json:"notifications"`

	// LastRule is the rule that fired most recently, if any.
	LastRule string `json:"last_rule,omitempty"`

	// DurationMs is how long the last tick took.
	DurationMs int64 `json:"duration_ms"`

	// CheckedAt is when the last tick started.
	CheckedAt time.Time `json:"checked_at"`

	// Stage is the pipeline stage that terminated the monitor.
	Stage string `json:"stage,omitempty"`

	// Error is the terminating error. nil while the monitor is healthy.
	Error *string `json:"error"`
}

// Store defines storage and subscription for site statuses.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a status keyed by Name and notifies all subscribers.
	Update(status SiteStatus)

	// Get returns the stored status for name.
	Get(name string) (SiteStatus, bool)

	// GetAll returns all statuses ordered by name.
	GetAll() []SiteStatus

	// Subscribe returns a channel that receives status updates.
	// Slow consumers may miss updates. Caller must call Unsubscribe.
	Subscribe() <-chan SiteStatus

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan SiteStatus)
}
