package tripwire

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/tripwire/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// step is one scripted fetch outcome.
type step struct {
	markup string
	err    error
}

// scriptFetcher replays steps in order and repeats the last one forever.
type scriptFetcher struct {
	mu     sync.Mutex
	steps  []step
	calls  int
	stopAt int
	stop   context.CancelFunc
}

func pages(values ...string) *scriptFetcher {
	f := &scriptFetcher{}
	for _, v := range values {
		f.steps = append(f.steps, step{markup: "<html><body><p>" + v + "</p></body></html>"})
	}
	return f
}

func (f *scriptFetcher) then(s step) *scriptFetcher {
	f.steps = append(f.steps, s)
	return f
}

// stopAfter cancels the run once the nth fetch has completed, so exactly
// n ticks run.
func (f *scriptFetcher) stopAfter(n int, cancel context.CancelFunc) *scriptFetcher {
	f.stopAt = n
	f.stop = cancel
	return f
}

func (f *scriptFetcher) Fetch(_ context.Context, _ Site) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	if i >= len(f.steps) {
		i = len(f.steps) - 1
	}
	f.calls++
	if f.calls == f.stopAt {
		f.stop()
	}
	return f.steps[i].markup, f.steps[i].err
}

func (f *scriptFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingNotifier keeps every notification it is asked to deliver.
type recordingNotifier struct {
	mu    sync.Mutex
	sent  []Notification
	chans []Channel
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, ch Channel, notification Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	n.chans = append(n.chans, ch)
	return nil
}

func (n *recordingNotifier) notifications() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

// runMonitor runs a monitor for site until ctx is cancelled or the monitor
// fails, and returns every result it emitted.
func runMonitor(t *testing.T, ctx context.Context, site Site, f Fetcher, n Notifier) ([]TickResult, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(chan TickResult)
	m := newMonitor(site, f, n, testLogger(), results)

	done := make(chan error, 1)
	go func() {
		done <- m.run(ctx)
		close(results)
	}()

	var got []TickResult
	for r := range results {
		got = append(got, r)
	}
	return got, <-done
}

func TestMonitor_NotifiesOnChange(t *testing.T) {
	site := mustSite(t, "Shop",
		WithInterval(time.Millisecond),
		WithRules(OnChange()),
		WithChannels(ChannelNtfy, ChannelEmail),
	)
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := runMonitor(t, ctx, site, pages("5", "7", "7").stopAfter(3, cancel), notifier)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	sent := notifier.notifications()
	if len(sent) != 2 {
		t.Fatalf("notifications = %d, want 2 (one per channel)", len(sent))
	}
	if notifier.chans[0] != ChannelNtfy || notifier.chans[1] != ChannelEmail {
		t.Errorf("channels = %v, want [ntfy email]", notifier.chans)
	}
	n := sent[0]
	if n.Previous != ValueOf("5") || n.Value != "7" || n.Rule.Kind() != RuleOnChange {
		t.Errorf("notification = %+v", n)
	}
	if n.ID == "" || sent[1].ID != n.ID {
		t.Errorf("notification IDs = %q, %q, want one shared non-empty ID", n.ID, sent[1].ID)
	}
	if got := n.Message(); got != "Rule for Shop triggered! Value changed from 5 to 7" {
		t.Errorf("Message() = %q", got)
	}

	if len(results) != 4 {
		t.Fatalf("results = %d, want 3 ticks and a stop", len(results))
	}
	for i, r := range results[:3] {
		if r.Tick != i+1 || r.State != StateRunning || r.Error != nil {
			t.Errorf("results[%d] = tick %d state %s error %v", i, r.Tick, r.State, r.Error)
		}
	}
	if results[0].Notification != nil || results[2].Notification != nil {
		t.Error("ticks 1 and 3 should not notify")
	}
	if results[1].Notification == nil || results[1].MatchedRule == nil {
		t.Error("tick 2 should notify")
	}

	last := results[len(results)-1]
	if last.State != StateTerminated || last.Error != nil {
		t.Errorf("final result = state %s error %v, want terminated without error", last.State, last.Error)
	}
	if last.Value != ValueOf("7") {
		t.Errorf("final result value = %s, want 7", last.Value)
	}
}

func TestMonitor_NonNumericValueDoesNotFail(t *testing.T) {
	site := mustSite(t, "Shop",
		WithInterval(time.Millisecond),
		WithRules(MoreThan(100)),
		WithChannels(ChannelNtfy),
	)
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := runMonitor(t, ctx, site, pages("50", "N/A", "150").stopAfter(3, cancel), notifier)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	sent := notifier.notifications()
	if len(sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(sent))
	}
	if sent[0].Previous != ValueOf("N/A") || sent[0].Value != "150" {
		t.Errorf("notification = %s -> %s, want N/A -> 150", sent[0].Previous, sent[0].Value)
	}
	if results[1].Value != ValueOf("N/A") || results[1].Error != nil {
		t.Errorf("tick 2 = value %s error %v", results[1].Value, results[1].Error)
	}
}

func TestMonitor_FirstTickHasNoBaseline(t *testing.T) {
	site := mustSite(t, "Shop", WithRules(OnChange(), OnIncrease()), WithChannels(ChannelNtfy))
	notifier := &recordingNotifier{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	results, err := runMonitor(t, ctx, site, pages("5").stopAfter(1, cancel), notifier)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if len(notifier.notifications()) != 0 {
		t.Error("first tick should never notify change rules")
	}
	if results[0].Previous.Valid() {
		t.Errorf("tick 1 Previous = %s, want absent", results[0].Previous)
	}
}

func TestMonitor_TerminatesOnStageFailure(t *testing.T) {
	fetchErr := errors.New("connection refused")

	tests := []struct {
		name    string
		site    []SiteOption
		fetcher *scriptFetcher
		notify  error
		stage   Stage
		tick    int
		target  error
	}{
		{
			name:    "fetch",
			fetcher: pages("1").then(step{err: fetchErr}),
			stage:   StageFetch,
			tick:    2,
			target:  fetchErr,
		},
		{
			name:    "extract",
			fetcher: pages("1", "2").then(step{markup: "<html><body><div>gone</div></body></html>"}),
			stage:   StageExtract,
			tick:    3,
			target:  ErrNoMatch,
		},
		{
			name:    "transform",
			site:    []SiteOption{WithTransformers(RegexExtract(`(\d+)`))},
			fetcher: pages("1", "sold out"),
			stage:   StageTransform,
			tick:    2,
			target:  ErrPatternNoMatch,
		},
		{
			name:    "notify",
			site:    []SiteOption{WithRules(OnChange()), WithChannels(ChannelTelegram)},
			fetcher: pages("1", "2"),
			notify:  errors.New("bot blocked"),
			stage:   StageNotify,
			tick:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]SiteOption{WithInterval(time.Millisecond)}, tt.site...)
			site := mustSite(t, "Shop", opts...)

			results, err := runMonitor(t, context.Background(), site, tt.fetcher, &recordingNotifier{err: tt.notify})

			var tickErr *TickError
			if !errors.As(err, &tickErr) {
				t.Fatalf("run() error = %v, want *TickError", err)
			}
			if tickErr.Stage != tt.stage || tickErr.Tick != tt.tick || tickErr.Site != "Shop" {
				t.Errorf("TickError = %+v, want stage %s tick %d", tickErr, tt.stage, tt.tick)
			}
			if tt.target != nil && !errors.Is(err, tt.target) {
				t.Errorf("run() error = %v, want wrapping %v", err, tt.target)
			}
			if tt.stage == StageNotify {
				var notifyErr *NotifyError
				if !errors.As(err, &notifyErr) || notifyErr.Channel != ChannelTelegram {
					t.Errorf("run() error = %v, want *NotifyError for telegram", err)
				}
			}

			if tt.fetcher.count() != tt.tick {
				t.Errorf("fetch calls = %d, want %d", tt.fetcher.count(), tt.tick)
			}
			if len(results) != tt.tick {
				t.Fatalf("results = %d, want %d", len(results), tt.tick)
			}
			last := results[len(results)-1]
			if last.State != StateTerminated || last.Stage != tt.stage || last.Error == nil {
				t.Errorf("last result = state %s stage %s error %v", last.State, last.Stage, last.Error)
			}
			if want := ValueOf(string(rune('0' + tt.tick - 1))); last.Previous != want {
				t.Errorf("last result Previous = %s, want %s", last.Previous, want)
			}
		})
	}
}

func TestMonitor_FetchErrorIsWrapped(t *testing.T) {
	site := mustSite(t, "Shop")
	f := &scriptFetcher{steps: []step{{err: errors.New("timeout")}}}

	_, err := runMonitor(t, context.Background(), site, f, &recordingNotifier{})

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("run() error = %v, want *FetchError", err)
	}
	if fetchErr.URL != site.URL() {
		t.Errorf("FetchError.URL = %q, want %q", fetchErr.URL, site.URL())
	}
}

func TestMonitor_InvalidSelector(t *testing.T) {
	site, err := NewSite("Shop", "https://shop.example.com", "div[")
	if err != nil {
		t.Fatalf("NewSite() error = %v", err)
	}
	f := pages("1")

	results, err := runMonitor(t, context.Background(), site, f, &recordingNotifier{})

	var tickErr *TickError
	if !errors.As(err, &tickErr) || tickErr.Stage != StageSelector {
		t.Fatalf("run() error = %v, want selector *TickError", err)
	}
	var selErr *SelectorError
	if !errors.As(err, &selErr) {
		t.Errorf("run() error = %v, want wrapping *SelectorError", err)
	}
	if f.count() != 0 {
		t.Errorf("fetch calls = %d, want 0", f.count())
	}
	if len(results) != 1 || results[0].State != StateTerminated || results[0].Tick != 0 {
		t.Errorf("results = %+v, want one terminated result before any tick", results)
	}
}

func TestMonitor_CancelledDuringFetch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	f := FetcherFunc(func(ctx context.Context, _ Site) (string, error) {
		calls++
		if calls == 1 {
			return "<p>1</p>", nil
		}
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	site := mustSite(t, "Shop", WithInterval(time.Millisecond))

	results, err := runMonitor(t, ctx, site, f, &recordingNotifier{})
	if err != nil {
		t.Fatalf("run() error = %v, want nil on shutdown", err)
	}

	last := results[len(results)-1]
	if last.State != StateTerminated || last.Error != nil {
		t.Errorf("final result = state %s error %v", last.State, last.Error)
	}
	if last.Value != ValueOf("1") {
		t.Errorf("final result value = %s, want 1", last.Value)
	}
}

func TestMonitor_RecoversPanic(t *testing.T) {
	f := FetcherFunc(func(context.Context, Site) (string, error) {
		panic("boom")
	})
	site := mustSite(t, "Shop")

	results, err := runMonitor(t, context.Background(), site, f, &recordingNotifier{})

	var tickErr *TickError
	if !errors.As(err, &tickErr) {
		t.Fatalf("run() error = %v, want *TickError", err)
	}
	if tickErr.Stage != StagePanic {
		t.Errorf("Stage = %q, want %q", tickErr.Stage, StagePanic)
	}
	if len(results) != 1 || results[0].Error == nil || results[0].Stage != StagePanic {
		t.Errorf("results = %+v, want one failed result at the panic stage", results)
	}
}

func TestMonitor_TickUsesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	site := mustSite(t, "Shop", WithRules(OnChange()), WithChannels(ChannelNtfy))
	notifier := &recordingNotifier{}

	m := newMonitor(site, pages("8"), notifier, testLogger(), nil)
	m.now = func() time.Time { return fixed }

	state := siteState{selector: MustCompileSelector("p"), last: ValueOf("5")}
	next, result := m.tick(context.Background(), state, 4)

	if result.CheckedAt != fixed || result.Duration != 0 {
		t.Errorf("CheckedAt = %v, Duration = %v", result.CheckedAt, result.Duration)
	}
	if result.Tick != 4 || result.Previous != ValueOf("5") || result.Value != ValueOf("8") {
		t.Errorf("result = %+v", result)
	}
	if next.last != ValueOf("8") {
		t.Errorf("next baseline = %s, want 8", next.last)
	}
	if sent := notifier.notifications(); len(sent) != 1 || !sent[0].Time.Equal(fixed) {
		t.Errorf("notifications = %+v", sent)
	}
}

func TestMonitor_RuleWithoutChannelsSendsNothing(t *testing.T) {
	site := mustSite(t, "Shop", WithRules(OnChange()))
	notifier := &recordingNotifier{}

	m := newMonitor(site, pages("8"), notifier, testLogger(), nil)
	state := siteState{selector: MustCompileSelector("p"), last: ValueOf("5")}
	next, result := m.tick(context.Background(), state, 2)

	if result.Error != nil {
		t.Fatalf("tick error = %v", result.Error)
	}
	if result.MatchedRule == nil || result.MatchedRule.Kind() != RuleOnChange {
		t.Errorf("MatchedRule = %v, want on_change", result.MatchedRule)
	}
	if result.Notification != nil {
		t.Errorf("Notification = %+v, want nil with no channels", result.Notification)
	}
	if got := tickOutcome(result); got != metrics.OutcomeChanged {
		t.Errorf("tickOutcome() = %q, want %q", got, metrics.OutcomeChanged)
	}
	if sent := notifier.notifications(); len(sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(sent))
	}
	if next.last != ValueOf("8") {
		t.Errorf("next baseline = %s, want 8", next.last)
	}
}

func TestMonitor_TicksFollowSchedule(t *testing.T) {
	const interval = 100 * time.Millisecond

	var (
		mu    sync.Mutex
		times []time.Duration
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	f := FetcherFunc(func(context.Context, Site) (string, error) {
		mu.Lock()
		times = append(times, time.Since(start))
		n := len(times)
		mu.Unlock()

		if n == 1 {
			// a slow first tick must not push back the ones after it
			time.Sleep(60 * time.Millisecond)
		}
		if n == 4 {
			cancel()
		}
		return "<p>1</p>", nil
	})

	site := mustSite(t, "Shop", WithInterval(interval))
	if _, err := runMonitor(t, ctx, site, f, &recordingNotifier{}); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(times) != 4 {
		t.Fatalf("ticks = %d, want 4", len(times))
	}
	if times[0] > 30*time.Millisecond {
		t.Errorf("tick 1 at %v, want immediately", times[0])
	}
	if times[1] < 90*time.Millisecond || times[1] > 140*time.Millisecond {
		t.Errorf("tick 2 at %v, want about %v", times[1], interval)
	}
	// spaced from tick 1's scheduled start: ~300ms, not ~360ms
	if times[3] < 290*time.Millisecond || times[3] > 340*time.Millisecond {
		t.Errorf("tick 4 at %v, want about %v", times[3], 3*interval)
	}
}

func TestAdvance(t *testing.T) {
	sel := MustCompileSelector("p")

	tests := []struct {
		name  string
		last  Value
		rules []Rule
		value string
		want  RuleKind
	}{
		{"first value, no match", NoValue, []Rule{OnChange()}, "5", ""},
		{"change matches", ValueOf("5"), []Rule{OnChange()}, "7", RuleOnChange},
		{"no rules", ValueOf("5"), nil, "7", ""},
		{"first matching rule wins", ValueOf("5"), []Rule{OnDecrease(), OnIncrease(), OnChange()}, "7", RuleOnIncrease},
		{"empty string is a value", ValueOf(""), []Rule{OnChangeFrom("")}, "x", RuleOnChangeFrom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, rule := advance(siteState{selector: sel, last: tt.last}, tt.rules, tt.value, testLogger())

			// the new value becomes the baseline whether or not a rule matched
			if next.last != ValueOf(tt.value) {
				t.Errorf("next.last = %s, want %s", next.last, tt.value)
			}
			if next.selector.String() != sel.String() {
				t.Error("selector not carried over")
			}

			switch {
			case tt.want == "" && rule != nil:
				t.Errorf("advance() matched %s, want none", rule)
			case tt.want != "" && (rule == nil || rule.Kind() != tt.want):
				t.Errorf("advance() matched %v, want %s", rule, tt.want)
			}
		})
	}
}
