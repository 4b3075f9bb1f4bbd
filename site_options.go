package tripwire

import (
	"errors"
	"fmt"
	"time"
)

// siteConfig holds mutable state during site construction.
type siteConfig struct {
	interval     time.Duration
	timeout      time.Duration
	useBrowser   bool
	transformers []Transformer
	rules        []Rule
	channels     []Channel
}

// SiteOption is a function that configures a [Site] during construction.
//
// SiteOption implements the functional options pattern. Options return an
// error if validation fails.
type SiteOption func(*siteConfig) error

// WithInterval sets the time between checks of the site.
//
// The first check runs as soon as the monitor starts; later checks are
// spaced by d, measured from when each check was scheduled rather than
// when it finished, so slow fetches do not make the schedule drift.
// Defaults to one hour.
//
// Returns an error if the duration is zero or negative.
func WithInterval(d time.Duration) SiteOption {
	return func(cfg *siteConfig) error {
		if d <= 0 {
			return errors.New("interval must be positive")
		}
		cfg.interval = d
		return nil
	}
}

// WithTimeout sets how long a single fetch of the page may take.
// Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) SiteOption {
	return func(cfg *siteConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithBrowser fetches the page through the remote browser configured with
// [WithBrowserEndpoint] instead of a plain HTTP GET. Use it for pages that
// render their content with JavaScript.
func WithBrowser() SiteOption {
	return func(cfg *siteConfig) error {
		cfg.useBrowser = true
		return nil
	}
}

// WithTransformers appends transformers to the site's pipeline. They are
// applied in the order given.
//
// RegexExtract patterns are compiled when applied, not here; a pattern
// that does not compile fails the tick that applies it.
func WithTransformers(ts ...Transformer) SiteOption {
	return func(cfg *siteConfig) error {
		cfg.transformers = append(cfg.transformers, ts...)
		return nil
	}
}

// WithRules appends rules to the site. Rules are evaluated in the order
// given and the first match triggers the notification.
//
// A site without rules is still checked, but never notifies.
func WithRules(rules ...Rule) SiteOption {
	return func(cfg *siteConfig) error {
		cfg.rules = append(cfg.rules, rules...)
		return nil
	}
}

// WithChannels sets the notification channels for the site. When a rule
// matches, every channel is notified in order. A site without channels
// still evaluates its rules but sends nothing.
//
// Returns an error if a channel is unknown or listed twice.
func WithChannels(channels ...Channel) SiteOption {
	return func(cfg *siteConfig) error {
		seen := make(map[Channel]bool, len(channels))
		for _, ch := range channels {
			if !ch.Valid() {
				return fmt.Errorf("unknown notification channel %q", ch)
			}
			if seen[ch] {
				return fmt.Errorf("duplicate notification channel %q", ch)
			}
			seen[ch] = true
		}
		cfg.channels = append(cfg.channels, channels...)
		return nil
	}
}
