package tripwire

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/tripwire/internal/metrics"
)

// siteState is everything a monitor carries from one tick to the next.
// It is owned by exactly one monitor goroutine and never shared.
type siteState struct {
	selector Selector
	last     Value
}

// advance is the pure state transition of a successful tick: it evaluates
// rules against the current baseline and returns the next state together
// with the matched rule, if any. The new value always becomes the baseline.
func advance(state siteState, rules []Rule, value string, logger *slog.Logger) (siteState, *Rule) {
	next := siteState{selector: state.selector, last: ValueOf(value)}

	rule, ok := Evaluate(logger, rules, state.last, value)
	if !ok {
		return next, nil
	}
	return next, &rule
}

// monitor drives one site through Initializing, Running and Terminated.
type monitor struct {
	site     Site
	fetcher  Fetcher
	notifier Notifier
	logger   *slog.Logger
	results  chan<- TickResult
	now      func() time.Time
}

func newMonitor(site Site, fetcher Fetcher, notifier Notifier, logger *slog.Logger, results chan<- TickResult) *monitor {
	return &monitor{
		site:     site,
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger.With("site", site.name),
		results:  results,
		now:      time.Now,
	}
}

// run blocks until the monitor terminates. It returns nil when ctx is
// cancelled and a *TickError when a tick or the selector compile fails.
// Every outcome is also emitted on m.results.
func (m *monitor) run(ctx context.Context) (err error) {
	start := m.now()

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			m.logger.Error("monitor panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = &TickError{
				Site:  m.site.name,
				Stage: StagePanic,
				Err:   fmt.Errorf("monitor panic (correlation_id: %s)", correlationID),
			}
			m.emit(TickResult{
				Site:      m.site.name,
				URL:       m.site.url,
				State:     StateTerminated,
				Stage:     StagePanic,
				Error:     err,
				CheckedAt: start,
			})
		}
	}()

	sel, err := CompileSelector(m.site.selector)
	if err != nil {
		tickErr := &TickError{Site: m.site.name, Stage: StageSelector, Err: err}
		m.logger.Error("monitor not started", "stage", string(StageSelector), "error", err)
		m.emit(TickResult{
			Site:      m.site.name,
			URL:       m.site.url,
			State:     StateTerminated,
			Stage:     StageSelector,
			Error:     tickErr,
			CheckedAt: start,
		})
		return tickErr
	}

	metrics.MonitorsRunning.Inc()
	defer metrics.MonitorsRunning.Dec()

	m.logger.Info("monitor started",
		"url", m.site.url,
		"interval", m.site.interval.String(),
		"strategy", metrics.Strategy(m.site.useBrowser),
	)

	state := siteState{selector: sel}

	// the ticker is created before the first tick so that later ticks are
	// spaced from the scheduled start, not from when tick one finished
	ticker := time.NewTicker(m.site.interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		next, result := m.tick(ctx, state, n)

		if result.Error != nil {
			if ctx.Err() != nil {
				// shutdown interrupted the tick
				m.emitStopped(state, n)
				return nil
			}
			m.logger.Error("monitor terminated",
				"stage", string(result.Stage),
				"tick", n,
				"previous", state.last.String(),
				"error", result.Error,
			)
			m.emit(result)
			return result.Error
		}

		state = next
		m.emit(result)

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			m.emitStopped(state, n)
			return nil
		}
	}
}

// tick runs one iteration of the pipeline against state and returns the
// state to carry forward. On error the returned state is the input state
// and the result carries a *TickError.
func (m *monitor) tick(ctx context.Context, state siteState, n int) (siteState, TickResult) {
	start := m.now()
	result := TickResult{
		Site:      m.site.name,
		URL:       m.site.url,
		State:     StateRunning,
		Tick:      n,
		Previous:  state.last,
		CheckedAt: start,
	}

	fail := func(stage Stage, err error) (siteState, TickResult) {
		result.State = StateTerminated
		result.Stage = stage
		result.Error = &TickError{Site: m.site.name, Stage: stage, Tick: n, Err: err}
		result.Duration = m.now().Sub(start)
		return state, result
	}

	value, stage, err := m.observe(ctx, state.selector)
	if err != nil {
		return fail(stage, err)
	}
	result.Value = ValueOf(value)

	next, rule := advance(state, m.site.rules, value, m.logger)
	switch {
	case rule != nil && len(m.site.channels) == 0:
		result.MatchedRule = rule
		m.logger.Debug("rule matched with no channels",
			"tick", n,
			"rule", rule.String(),
			"previous", state.last.String(),
			"value", value,
		)
	case rule != nil:
		result.MatchedRule = rule
		notification := newNotification(m.site, state.last, value, *rule, start)

		m.logger.Info("rule triggered",
			"tick", n,
			"rule", rule.String(),
			"previous", state.last.String(),
			"value", value,
			"notification_id", notification.ID,
		)

		if err := m.notify(ctx, notification); err != nil {
			return fail(StageNotify, err)
		}
		result.Notification = &notification
	default:
		m.logger.Debug("tick completed",
			"tick", n,
			"previous", state.last.String(),
			"value", value,
		)
	}

	result.Duration = m.now().Sub(start)
	return next, result
}

// observe runs fetch, extract and transform, returning the failing stage
// with any error.
func (m *monitor) observe(ctx context.Context, sel Selector) (string, Stage, error) {
	fetchStart := m.now()
	markup, err := m.fetcher.Fetch(ctx, m.site)
	metrics.FetchDuration.WithLabelValues(metrics.Strategy(m.site.useBrowser)).
		Observe(m.now().Sub(fetchStart).Seconds())
	if err != nil {
		return "", StageFetch, &FetchError{URL: m.site.url, Err: err}
	}

	extracted, err := Extract(markup, sel)
	if err != nil {
		return "", StageExtract, err
	}

	value, err := ApplyTransformers(extracted, m.site.transformers)
	if err != nil {
		return "", StageTransform, err
	}

	return value, "", nil
}

// notify delivers n on each of the site's channels in order, stopping at
// the first failure.
func (m *monitor) notify(ctx context.Context, n Notification) error {
	for _, ch := range m.site.channels {
		err := m.notifier.Notify(ctx, ch, n)
		metrics.NotificationsTotal.WithLabelValues(m.site.name, ch.String(), metrics.Status(err)).Inc()
		if err != nil {
			return &NotifyError{Channel: ch, Err: err}
		}
		m.logger.Debug("notification sent", "channel", ch.String(), "notification_id", n.ID)
	}
	return nil
}

func (m *monitor) emitStopped(state siteState, n int) {
	m.logger.Info("monitor stopped", "ticks", n)
	m.emit(TickResult{
		Site:      m.site.name,
		URL:       m.site.url,
		State:     StateTerminated,
		Tick:      n,
		Previous:  state.last,
		Value:     state.last,
		CheckedAt: m.now(),
	})
}

func (m *monitor) emit(result TickResult) {
	if m.results != nil {
		m.results <- result
	}
}
