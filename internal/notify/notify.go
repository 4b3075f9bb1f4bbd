// Package notify delivers tripwire notifications to external channels.
//
// The set of channels is closed: [Dispatcher.Send] switches on [Kind] and
// each kind has one handler in this package. A channel is usable only when
// its section of [Config] is set.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Kind identifies a notification channel.
type Kind string

const (
	KindNtfy     Kind = "ntfy"
	KindTelegram Kind = "telegram"
	KindEmail    Kind = "email"
	KindKafka    Kind = "kafka"
)

const defaultRequestTimeout = 10 * time.Second

var (
	// ErrNotConfigured is returned when sending to a channel whose
	// configuration section is missing.
	ErrNotConfigured = errors.New("channel not configured")

	// ErrUnknownKind is returned for a Kind outside the closed set.
	ErrUnknownKind = errors.New("unknown channel kind")

	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// Message is a rendered notification, ready for any channel.
type Message struct {
	ID       string
	Site     string
	URL      string
	Previous *string // nil when the site had no earlier value
	Value    string
	Rule     string
	Title    string
	Body     string
	Time     time.Time
}

// Config holds the settings of every channel. Nil sections are disabled.
type Config struct {
	Ntfy     *NtfyConfig
	Telegram *TelegramConfig
	Email    *EmailConfig
	Kafka    *KafkaConfig

	// HTTPClient is used by the HTTP-based channels. Defaults to a client
	// with a 10s timeout.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Dispatcher routes messages to channel handlers. It is safe for
// concurrent use.
type Dispatcher struct {
	ntfy     *ntfySender
	telegram *telegramSender
	email    *emailSender
	kafka    *kafkaSender
	logger   *slog.Logger
	closed   atomic.Bool
}

// NewDispatcher validates cfg and builds the configured channel handlers.
func NewDispatcher(cfg Config) (*Dispatcher, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	d := &Dispatcher{logger: logger}

	if cfg.Ntfy != nil {
		s, err := newNtfySender(*cfg.Ntfy, client)
		if err != nil {
			return nil, fmt.Errorf("ntfy: %w", err)
		}
		d.ntfy = s
	}
	if cfg.Telegram != nil {
		s, err := newTelegramSender(*cfg.Telegram, client)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		d.telegram = s
	}
	if cfg.Email != nil {
		s, err := newEmailSender(*cfg.Email)
		if err != nil {
			return nil, fmt.Errorf("email: %w", err)
		}
		d.email = s
	}
	if cfg.Kafka != nil {
		s, err := newKafkaSender(*cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		d.kafka = s
	}

	return d, nil
}

// Configured reports whether k has a handler.
func (d *Dispatcher) Configured(k Kind) bool {
	switch k {
	case KindNtfy:
		return d.ntfy != nil
	case KindTelegram:
		return d.telegram != nil
	case KindEmail:
		return d.email != nil
	case KindKafka:
		return d.kafka != nil
	default:
		return false
	}
}

// Send delivers msg on channel k.
func (d *Dispatcher) Send(ctx context.Context, k Kind, msg Message) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !d.Configured(k) {
		switch k {
		case KindNtfy, KindTelegram, KindEmail, KindKafka:
			return fmt.Errorf("%s: %w", k, ErrNotConfigured)
		default:
			return fmt.Errorf("%q: %w", k, ErrUnknownKind)
		}
	}

	d.logger.Debug("sending notification",
		"channel", string(k),
		"site", msg.Site,
		"notification_id", msg.ID,
	)

	var err error
	switch k {
	case KindNtfy:
		err = d.ntfy.send(ctx, msg)
	case KindTelegram:
		err = d.telegram.send(ctx, msg)
	case KindEmail:
		err = d.email.send(ctx, msg)
	case KindKafka:
		err = d.kafka.send(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", k, err)
	}
	return nil
}

// Close releases channel resources. Later sends fail with [ErrClosed].
// Safe to call on a nil Dispatcher and more than once.
func (d *Dispatcher) Close() error {
	if d == nil || d.closed.Swap(true) || d.kafka == nil {
		return nil
	}
	return d.kafka.close()
}
