package tripwire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/tripwire/dashboard"
	"github.com/jpalmerr/tripwire/internal/fetch"
	"github.com/jpalmerr/tripwire/internal/metrics"
	"github.com/jpalmerr/tripwire/internal/notify"
	"github.com/jpalmerr/tripwire/internal/server"
	"github.com/jpalmerr/tripwire/internal/store"
)

// Version is reported in the default User-Agent. The CLI overrides it at
// build time.
var Version = "dev"

// Tripwire watches a set of sites and notifies when their values change in
// ways the sites' rules care about.
//
// Each site runs in its own monitor goroutine that owns the site's state.
// A monitor that fails stops for good; the others are unaffected.
//
//	tw, err := tripwire.New(
//	    tripwire.WithSite(site),
//	    tripwire.WithNtfy(tripwire.NtfyConfig{Topic: "alerts"}),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	err = tw.Run(ctx) // blocks until every monitor has stopped
type Tripwire struct {
	sites         []Site
	logger        *slog.Logger
	fetcher       Fetcher
	notifier      Notifier
	tickCallbacks []func(TickResult)
	statusPort    int

	// owned resources, released when Run returns
	strategy   *strategyFetcher
	dispatcher *notify.Dispatcher

	status *store.MemoryStore
}

// New creates a [Tripwire] with the given options.
//
// At least one site is required and site names must be unique. Unless a
// custom [Fetcher] is set, sites using the browser require
// [WithBrowserEndpoint]. Unless a custom [Notifier] is set, every channel a
// site names must be configured.
func New(opts ...Option) (*Tripwire, error) {
	cfg := &twConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.sites) == 0 {
		return nil, errors.New("at least one site is required")
	}

	seen := make(map[string]bool, len(cfg.sites))
	for _, s := range cfg.sites {
		if seen[s.name] {
			return nil, fmt.Errorf("duplicate site name: %q", s.name)
		}
		seen[s.name] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	tw := &Tripwire{
		sites:         cfg.sites,
		logger:        logger,
		fetcher:       cfg.fetcher,
		notifier:      cfg.notifier,
		tickCallbacks: cfg.tickCallbacks,
		statusPort:    cfg.statusPort,
		status:        store.NewMemoryStore(),
	}

	if tw.fetcher == nil {
		for _, s := range cfg.sites {
			if s.useBrowser && cfg.browserURL == "" {
				return nil, fmt.Errorf("site %q: %w", s.name, errNoBrowser)
			}
		}
		tw.strategy = newStrategyFetcher(cfg, logger)
		tw.fetcher = tw.strategy
	}

	if tw.notifier == nil {
		d, err := notify.NewDispatcher(toNotifyConfig(cfg, logger))
		if err != nil {
			return nil, err
		}
		for _, s := range cfg.sites {
			for _, ch := range s.channels {
				if !d.Configured(notify.Kind(ch)) {
					_ = d.Close()
					return nil, fmt.Errorf("site %q: channel %s is not configured", s.name, ch)
				}
			}
		}
		tw.dispatcher = d
		tw.notifier = &dispatchNotifier{dispatcher: d}
	}

	return tw, nil
}

func newStrategyFetcher(cfg *twConfig, logger *slog.Logger) *strategyFetcher {
	ua := cfg.userAgent
	if ua == "" {
		ua = "tripwire/" + Version
	}

	f := &strategyFetcher{
		userAgent: ua,
		client:    fetch.NewClient(),
		logger:    logger,
	}
	if cfg.browserURL != "" {
		f.browser = fetch.NewBrowser(cfg.browserURL, cfg.stealth, logger)
	}
	return f
}

// toNotifyConfig converts the public channel settings to the dispatcher's.
func toNotifyConfig(cfg *twConfig, logger *slog.Logger) notify.Config {
	nc := notify.Config{Logger: logger}
	if c := cfg.ntfy; c != nil {
		nc.Ntfy = &notify.NtfyConfig{Server: c.Server, Topic: c.Topic, Token: c.Token, Priority: c.Priority}
	}
	if c := cfg.telegram; c != nil {
		nc.Telegram = &notify.TelegramConfig{Token: c.Token, ChatID: c.ChatID, APIURL: c.APIURL}
	}
	if c := cfg.email; c != nil {
		nc.Email = &notify.EmailConfig{
			Host:     c.Host,
			Port:     c.Port,
			Username: c.Username,
			Password: c.Password,
			From:     c.From,
			To:       c.To,
		}
	}
	if c := cfg.kafka; c != nil {
		nc.Kafka = &notify.KafkaConfig{Brokers: c.Brokers, Topic: c.Topic}
	}
	return nc
}

// Run starts one monitor per site and blocks until all of them have
// stopped, either through ctx cancellation or their own failure.
//
// A failing site never affects the others. Run returns nil if every
// monitor stopped because ctx was cancelled; otherwise it returns the
// joined *TickError values of the monitors that failed. Resources owned by
// the Tripwire are released on return, so Run may be called only once.
func (tw *Tripwire) Run(ctx context.Context) error {
	defer tw.close()

	tw.logger.Info("tripwire starting", "site_count", len(tw.sites))

	if ctx.Err() != nil {
		return nil
	}

	for _, s := range tw.sites {
		tw.status.Update(store.SiteStatus{Name: s.name, URL: s.url, State: string(StateInitializing)})
	}

	if tw.statusPort > 0 {
		serverCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		srv := server.NewServer(tw.status, tw.statusPort, dashboard.Assets, tw.logger)
		if err := srv.Start(serverCtx); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
	}

	// all monitor output funnels through one consumer
	results := make(chan TickResult, len(tw.sites))
	var consumer sync.WaitGroup
	consumer.Add(1)
	go func() {
		defer consumer.Done()
		for r := range results {
			tw.record(r)
		}
	}()

	errs := make([]error, len(tw.sites))
	var wg sync.WaitGroup
	for i, s := range tw.sites {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m := newMonitor(s, tw.fetcher, tw.notifier, tw.logger, results)
			errs[i] = m.run(ctx)
		}()
	}

	wg.Wait()
	close(results)
	consumer.Wait()

	err := errors.Join(errs...)
	if err != nil {
		tw.logger.Warn("tripwire stopped with failed sites", "error", err)
	} else {
		tw.logger.Info("tripwire stopped")
	}
	return err
}

// Probe runs fetch, extract and transform once for the named site and
// returns the value. No rules are evaluated, nothing is notified and no
// monitor state is touched.
//
// Errors are *TickError values, as a failing tick would produce.
func (tw *Tripwire) Probe(ctx context.Context, name string) (string, error) {
	var site *Site
	for i := range tw.sites {
		if tw.sites[i].name == name {
			site = &tw.sites[i]
			break
		}
	}
	if site == nil {
		return "", fmt.Errorf("unknown site %q", name)
	}

	sel, err := CompileSelector(site.selector)
	if err != nil {
		return "", &TickError{Site: name, Stage: StageSelector, Err: err}
	}

	m := newMonitor(*site, tw.fetcher, tw.notifier, tw.logger, nil)
	value, stage, err := m.observe(ctx, sel)
	if err != nil {
		return "", &TickError{Site: name, Stage: stage, Err: err}
	}
	return value, nil
}

// Close releases the default fetcher and notifier without running. It is
// only needed when [Tripwire.Run] is never called, for example after
// [Tripwire.Probe].
func (tw *Tripwire) Close() {
	tw.close()
}

func (tw *Tripwire) close() {
	if tw.strategy != nil {
		tw.strategy.close()
	}
	if err := tw.dispatcher.Close(); err != nil {
		tw.logger.Warn("failed to close notification channels", "error", err)
	}
}

// Sites returns a copy of the configured sites.
func (tw *Tripwire) Sites() []Site {
	cp := make([]Site, len(tw.sites))
	copy(cp, tw.sites)
	return cp
}

// StatusPort returns the status server port, or 0 if it is disabled.
func (tw *Tripwire) StatusPort() int {
	return tw.statusPort
}

// record publishes one monitor result to metrics, the status store and the
// tick callbacks, in that order.
func (tw *Tripwire) record(r TickResult) {
	switch {
	case r.Error != nil:
		if r.Stage != StageSelector {
			metrics.TicksTotal.WithLabelValues(r.Site, metrics.OutcomeFailed).Inc()
		}
		metrics.MonitorTerminations.WithLabelValues(r.Site, string(r.Stage)).Inc()
	case r.State == StateRunning:
		metrics.TicksTotal.WithLabelValues(r.Site, tickOutcome(r)).Inc()
	}

	tw.updateStatus(r)

	for _, cb := range tw.tickCallbacks {
		invokeCallbackSafe(cb, r, tw.logger)
	}
}

func tickOutcome(r TickResult) string {
	switch {
	case r.Notification != nil:
		return metrics.OutcomeNotified
	case r.Previous.Valid() && r.Previous != r.Value:
		return metrics.OutcomeChanged
	default:
		return metrics.OutcomeUnchanged
	}
}

func (tw *Tripwire) updateStatus(r TickResult) {
	status, _ := tw.status.Get(r.Site)
	status.Name = r.Site
	status.URL = r.URL
	status.State = string(r.State)

	if v, ok := r.Value.Get(); ok {
		status.Value = &v
	}
	if r.Tick > status.Ticks {
		status.Ticks = r.Tick
	}
	if r.Notification != nil {
		status.Notifications++
		status.LastRule = r.Notification.Rule.String()
	}
	if r.State == StateRunning || r.Error != nil {
		status.CheckedAt = r.CheckedAt
		status.DurationMs = r.Duration.Milliseconds()
	}
	if r.Error != nil {
		msg := r.Error.Error()
		status.Error = &msg
		status.Stage = string(r.Stage)
	}

	tw.status.Update(status)
}

// invokeCallbackSafe calls a tick callback with panic recovery.
// Panics are logged with a correlation ID and do not propagate.
func invokeCallbackSafe(cb func(TickResult), result TickResult, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tick callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"site", result.Site,
				"stack", string(debug.Stack()),
			)
		}
	}()
	cb(result)
}
