package tripwire

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
)

// twConfig holds mutable state during Tripwire construction.
type twConfig struct {
	sites         []Site
	logger        *slog.Logger
	userAgent     string
	browserURL    string
	stealth       bool
	ntfy          *NtfyConfig
	telegram      *TelegramConfig
	email         *EmailConfig
	kafka         *KafkaConfig
	fetcher       Fetcher
	notifier      Notifier
	tickCallbacks []func(TickResult)
	statusPort    int
}

// Option configures a [Tripwire] instance during construction.
//
// Options return an error if validation fails; [New] stops at the first
// failing option.
type Option func(*twConfig) error

// NtfyConfig configures the ntfy channel.
type NtfyConfig struct {
	// Server is the ntfy base URL. Defaults to https://ntfy.sh.
	Server string

	// Topic is the topic to publish to. Required.
	Topic string

	// Token is an optional access token.
	Token string

	// Priority is one of min, low, default, high, urgent, or 1-5.
	Priority string
}

// TelegramConfig configures the Telegram channel.
type TelegramConfig struct {
	Token  string
	ChatID string

	// APIURL overrides the Bot API base URL. Defaults to
	// https://api.telegram.org.
	APIURL string
}

// EmailConfig configures the SMTP email channel.
type EmailConfig struct {
	Host     string
	Port     int // defaults to 587
	Username string
	Password string
	From     string
	To       []string
}

// KafkaConfig configures the Kafka channel. Each notification is published
// as a JSON event keyed by site name.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// WithSite adds a single [Site] to monitor.
//
// Can be called multiple times. At least one site must be configured for
// [New] to succeed.
func WithSite(s Site) Option {
	return func(cfg *twConfig) error {
		cfg.sites = append(cfg.sites, s)
		return nil
	}
}

// WithSites adds multiple [Site] values. Equivalent to calling [WithSite]
// for each.
func WithSites(sites ...Site) Option {
	return func(cfg *twConfig) error {
		cfg.sites = append(cfg.sites, sites...)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *twConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithUserAgent sets the User-Agent header for direct HTTP fetches.
// Defaults to "tripwire/<Version>".
func WithUserAgent(ua string) Option {
	return func(cfg *twConfig) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}

// WithBrowserEndpoint sets the Chrome DevTools endpoint used for sites
// created with [WithBrowser]. Both ws:// URLs and http:// addresses (as
// exposed by --remote-debugging-port) are accepted.
//
// Example:
//
//	tw, err := tripwire.New(
//	    tripwire.WithSite(site),
//	    tripwire.WithBrowserEndpoint("http://127.0.0.1:9222"),
//	)
func WithBrowserEndpoint(endpoint string) Option {
	return func(cfg *twConfig) error {
		u, err := url.Parse(endpoint)
		if err != nil {
			return fmt.Errorf("invalid browser endpoint: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss", "http", "https":
		default:
			return errors.New("browser endpoint must use ws, wss, http or https")
		}
		cfg.browserURL = endpoint
		return nil
	}
}

// WithStealth applies go-rod stealth evasions to browser-rendered pages.
func WithStealth() Option {
	return func(cfg *twConfig) error {
		cfg.stealth = true
		return nil
	}
}

// WithNtfy enables the ntfy channel.
func WithNtfy(c NtfyConfig) Option {
	return func(cfg *twConfig) error {
		if c.Topic == "" {
			return errors.New("ntfy topic is required")
		}
		cfg.ntfy = &c
		return nil
	}
}

// WithTelegram enables the Telegram channel.
func WithTelegram(c TelegramConfig) Option {
	return func(cfg *twConfig) error {
		if c.Token == "" || c.ChatID == "" {
			return errors.New("telegram token and chat_id are required")
		}
		cfg.telegram = &c
		return nil
	}
}

// WithEmail enables the email channel.
func WithEmail(c EmailConfig) Option {
	return func(cfg *twConfig) error {
		if c.Host == "" || c.From == "" || len(c.To) == 0 {
			return errors.New("email host, from and to are required")
		}
		c.To = append([]string(nil), c.To...)
		cfg.email = &c
		return nil
	}
}

// WithKafka enables the Kafka channel.
func WithKafka(c KafkaConfig) Option {
	return func(cfg *twConfig) error {
		if len(c.Brokers) == 0 || c.Topic == "" {
			return errors.New("kafka brokers and topic are required")
		}
		c.Brokers = append([]string(nil), c.Brokers...)
		cfg.kafka = &c
		return nil
	}
}

// WithFetcher replaces the default fetcher. When set, the user agent and
// browser endpoint are not used.
func WithFetcher(f Fetcher) Option {
	return func(cfg *twConfig) error {
		if f == nil {
			return errors.New("fetcher cannot be nil")
		}
		cfg.fetcher = f
		return nil
	}
}

// WithNotifier replaces the default notifier. When set, the channel
// configurations are not used and any [Channel] may appear on a site.
func WithNotifier(n Notifier) Option {
	return func(cfg *twConfig) error {
		if n == nil {
			return errors.New("notifier cannot be nil")
		}
		cfg.notifier = n
		return nil
	}
}

// WithTickCallback registers a function called with every [TickResult]:
// each completed tick, each failed tick, and each monitor stop.
//
// Callbacks run in registration order on a single goroutine shared by all
// sites, so a slow callback delays result processing for every site (and,
// once the buffer fills, the monitors themselves). Panics are recovered and
// logged.
//
// Nil callbacks are ignored.
func WithTickCallback(cb func(TickResult)) Option {
	return func(cfg *twConfig) error {
		if cb == nil {
			return nil
		}
		cfg.tickCallbacks = append(cfg.tickCallbacks, cb)
		return nil
	}
}

// WithStatusPort enables the status server on port. The server exposes a
// status page at /, plus /api/sites, /api/sse, /metrics and /healthz. It is
// off by default.
//
// Returns an error if the port is outside 1-65535.
func WithStatusPort(port int) Option {
	return func(cfg *twConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("status port must be between 1 and 65535")
		}
		cfg.statusPort = port
		return nil
	}
}
