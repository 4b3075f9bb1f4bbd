package tripwire

import (
	"errors"
	"net/url"
	"time"
)

const (
	defaultSiteInterval = time.Hour
	defaultFetchTimeout = 30 * time.Second
)

// Site is a page to monitor: where to fetch it, how to turn it into a
// value, which transitions of that value matter, and whom to tell.
//
// Site is immutable after creation via [NewSite]. Slices returned by its
// getters are copies, so a Site cannot be modified after construction.
//
// Sites are configured using the functional options pattern with
// [SiteOption] functions such as [WithInterval], [WithBrowser],
// [WithTransformers], [WithRules], and [WithChannels].
type Site struct {
	name         string
	url          string
	selector     string
	interval     time.Duration
	timeout      time.Duration
	useBrowser   bool
	transformers []Transformer
	rules        []Rule
	channels     []Channel
}

// Name returns the site's display name.
// The name identifies the site in logs and notifications.
func (s Site) Name() string {
	return s.name
}

// URL returns the page URL.
func (s Site) URL() string {
	return s.url
}

// Selector returns the CSS selector expression. It is compiled when the
// site's monitor starts.
func (s Site) Selector() string {
	return s.selector
}

// Interval returns the time between checks. Defaults to one hour.
func (s Site) Interval() time.Duration {
	return s.interval
}

// Timeout returns the fetch timeout. Defaults to 30 seconds.
func (s Site) Timeout() time.Duration {
	return s.timeout
}

// UseBrowser reports whether the page is fetched through the remote
// browser instead of a direct HTTP request.
func (s Site) UseBrowser() bool {
	return s.useBrowser
}

// Transformers returns a copy of the site's transformer pipeline.
func (s Site) Transformers() []Transformer {
	return append([]Transformer(nil), s.transformers...)
}

// Rules returns a copy of the site's rules, in evaluation order.
func (s Site) Rules() []Rule {
	return append([]Rule(nil), s.rules...)
}

// Channels returns a copy of the notification channels for the site.
func (s Site) Channels() []Channel {
	return append([]Channel(nil), s.channels...)
}

// NewSite creates a [Site] with the given name, page URL, CSS selector, and
// options.
//
// The rawURL parameter must be a valid URL with an http or https scheme.
// The selector is not compiled here; an invalid selector prevents only
// this site's monitor from starting.
//
// Returns an error if the name or selector is empty or the URL is invalid.
//
// Example:
//
//	site, err := tripwire.NewSite("GPU", "https://shop.example.com/gpu", "span.price",
//	    tripwire.WithInterval(30*time.Minute),
//	    tripwire.WithTransformers(tripwire.Replace(",", ".")),
//	    tripwire.WithRules(tripwire.OnDecrease()),
//	    tripwire.WithChannels(tripwire.ChannelNtfy),
//	)
func NewSite(name, rawURL, selector string, opts ...SiteOption) (Site, error) {
	if name == "" {
		return Site{}, errors.New("site name cannot be empty")
	}
	if selector == "" {
		return Site{}, errors.New("site selector cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Site{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Site{}, errors.New("URL must have an http:// or https:// scheme")
	}

	cfg := &siteConfig{
		interval: defaultSiteInterval,
		timeout:  defaultFetchTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Site{}, err
		}
	}

	return Site{
		name:         name,
		url:          rawURL,
		selector:     selector,
		interval:     cfg.interval,
		timeout:      cfg.timeout,
		useBrowser:   cfg.useBrowser,
		transformers: cfg.transformers,
		rules:        cfg.rules,
		channels:     cfg.channels,
	}, nil
}
