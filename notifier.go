package tripwire

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/tripwire/internal/notify"
)

// Channel identifies a notification channel kind.
//
// The set of channels is closed. Adding a channel means adding a constant
// here and a case to the dispatcher, not implementing an interface.
type Channel string

const (
	// ChannelNtfy pushes to an ntfy server topic.
	ChannelNtfy Channel = "ntfy"

	// ChannelTelegram sends a Telegram bot message.
	ChannelTelegram Channel = "telegram"

	// ChannelEmail sends a plain-text email over SMTP.
	ChannelEmail Channel = "email"

	// ChannelKafka publishes a JSON event to a Kafka topic.
	ChannelKafka Channel = "kafka"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelNtfy, ChannelTelegram, ChannelEmail, ChannelKafka}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelNtfy, ChannelTelegram, ChannelEmail, ChannelKafka:
		return true
	default:
		return false
	}
}

// String returns the channel name.
func (c Channel) String() string {
	return string(c)
}

// Notification describes a qualifying transition of a site's value.
type Notification struct {
	// ID uniquely identifies the notification across channels, so a
	// consumer receiving it on several channels can correlate them.
	ID string

	// Site is the site's display name.
	Site string

	// URL is the site's page URL.
	URL string

	// Previous is the baseline before this transition. Absent if the site
	// had no earlier value.
	Previous Value

	// Value is the newly observed value.
	Value string

	// Rule is the rule that matched.
	Rule Rule

	// Time is when the transition was observed.
	Time time.Time
}

func newNotification(site Site, prev Value, value string, rule Rule, at time.Time) Notification {
	return Notification{
		ID:       uuid.NewString(),
		Site:     site.name,
		URL:      site.url,
		Previous: prev,
		Value:    value,
		Rule:     rule,
		Time:     at,
	}
}

// Title returns a short headline for the notification.
func (n Notification) Title() string {
	return "tripwire: " + n.Site
}

// Message returns the human-readable notification text.
//
// An absent previous value is rendered as "<nothing>" and an empty string
// as `""`, so the two cannot be confused.
func (n Notification) Message() string {
	return fmt.Sprintf("Rule for %s triggered! Value changed from %s to %s",
		n.Site, n.Previous, ValueOf(n.Value))
}

// Notifier delivers notifications.
//
// Notify is called once per channel configured on the site, in order.
// An error aborts the tick and terminates the site's monitor. Notifiers
// are responsible for their own timeouts and must be safe for concurrent
// use, since every site monitor runs in its own goroutine.
type Notifier interface {
	Notify(ctx context.Context, channel Channel, n Notification) error
}

// NotifierFunc adapts a function to the [Notifier] interface.
type NotifierFunc func(ctx context.Context, channel Channel, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, channel Channel, n Notification) error {
	return f(ctx, channel, n)
}

// dispatchNotifier is the default [Notifier]. It hands notifications to
// the internal channel dispatcher.
type dispatchNotifier struct {
	dispatcher *notify.Dispatcher
}

func (d *dispatchNotifier) Notify(ctx context.Context, channel Channel, n Notification) error {
	return d.dispatcher.Send(ctx, notify.Kind(channel), toNotifyMessage(n))
}

// toNotifyMessage converts a Notification to the dispatcher's message type.
func toNotifyMessage(n Notification) notify.Message {
	var prev *string
	if s, ok := n.Previous.Get(); ok {
		prev = &s
	}

	return notify.Message{
		ID:       n.ID,
		Site:     n.Site,
		URL:      n.URL,
		Previous: prev,
		Value:    n.Value,
		Rule:     n.Rule.String(),
		Title:    n.Title(),
		Body:     n.Message(),
		Time:     n.Time,
	}
}
