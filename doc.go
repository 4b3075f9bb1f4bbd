// Package tripwire watches values on web pages and notifies when they
// change in ways you care about.
//
// A [Site] names a page, a CSS selector that picks one element out of it,
// an optional pipeline of [Transformer] steps that normalise the element's
// text, a list of [Rule] predicates over the previous and current value,
// and the [Channel] kinds to notify when a rule matches. Every site is
// checked on its own interval by its own monitor goroutine.
//
// # Quick Start
//
//	site, _ := tripwire.NewSite("GPU", "https://shop.example.com/gpu", "span.price",
//	    tripwire.WithInterval(15*time.Minute),
//	    tripwire.WithTransformers(
//	        tripwire.RegexExtract(`([\d.]+),(\d+)`),
//	        tripwire.Replace(".", ""),
//	    ),
//	    tripwire.WithRules(tripwire.OnDecrease()),
//	    tripwire.WithChannels(tripwire.ChannelNtfy),
//	)
//
//	tw, _ := tripwire.New(
//	    tripwire.WithSite(site),
//	    tripwire.WithNtfy(tripwire.NtfyConfig{Topic: "gpu-prices"}),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	err := tw.Run(ctx) // blocks until every monitor has stopped
//
// [NewSiteGrid] expands one declaration over a URL template into a site per
// combination of dimension values.
//
// # Ticks
//
// Each tick fetches the page, extracts the selected text, runs the
// transformers and evaluates the rules against the value of the previous
// successful tick. The first matching rule sends one [Notification] on
// each of the site's channels. The new value then becomes the baseline,
// whether or not a rule matched.
//
// The first tick has no baseline, so change rules never match on it while
// threshold rules such as [MoreThan] can. A value that is not a number
// simply fails numeric rules; it is not an error.
//
// # Failure
//
// Any failing stage (fetch, extract, transform or notify) terminates the
// site's monitor for good. There is no retry. Other sites are unaffected,
// and [Tripwire.Run] reports every terminated site as a [*TickError] once
// all monitors have stopped.
//
// # Architecture
//
// Tripwire consists of several internal packages (under internal/):
//
//   - internal/fetch: pooled HTTP client and remote-browser rendering
//   - internal/notify: ntfy, Telegram, email and Kafka delivery
//   - internal/store: in-memory site status with pub/sub for live updates
//   - internal/server: optional status server with REST API, SSE and metrics
//   - internal/metrics: Prometheus collectors
//
// The dashboard package embeds the status page, the config package loads
// sites and channels from YAML, and cmd/tripwire is the command-line front
// end.
package tripwire
