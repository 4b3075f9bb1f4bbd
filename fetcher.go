package tripwire

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jpalmerr/tripwire/internal/fetch"
)

// Fetcher acquires the raw markup of a site's page.
//
// Fetch is responsible for its own timeouts; the site's [Site.Timeout] is
// the intended budget. Any error terminates the site's monitor. Fetchers
// must be safe for concurrent use.
type Fetcher interface {
	Fetch(ctx context.Context, site Site) (string, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, site Site) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, site Site) (string, error) {
	return f(ctx, site)
}

// errNoBrowser is returned when a site asks for the browser but no browser
// endpoint is configured.
var errNoBrowser = errors.New("site uses the browser but no browser endpoint is configured")

// strategyFetcher is the default [Fetcher]. It chooses between a direct
// HTTP GET and the remote browser based on [Site.UseBrowser].
type strategyFetcher struct {
	userAgent string
	client    *fetch.Client
	browser   *fetch.Browser
	logger    *slog.Logger
}

func (f *strategyFetcher) Fetch(ctx context.Context, site Site) (string, error) {
	if site.useBrowser {
		if f.browser == nil {
			return "", errNoBrowser
		}
		return f.browser.Render(ctx, site.url, site.timeout)
	}

	resp := f.client.Get(ctx, site.url, f.userAgent, site.timeout)
	if resp.Error != nil {
		return "", resp.Error
	}
	if resp.StatusCode >= 400 {
		// the body is still used; an error page usually fails extraction
		f.logger.Warn("page returned error status",
			"site", site.name,
			"url", site.url,
			"status_code", resp.StatusCode,
		)
	}
	return string(resp.Body), nil
}

func (f *strategyFetcher) close() {
	f.client.Close()
	f.browser.Close()
}
