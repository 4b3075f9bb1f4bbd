package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

const minimal = `
ntfy:
  topic: alerts
sites:
  - name: Test
    url: https://example.com
    selector: span.price
    notifiers: [ntfy]
`

func TestParse_MinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.StatusPort != 0 {
		t.Errorf("StatusPort = %d, want 0", cfg.StatusPort)
	}
	if len(cfg.Sites) != 1 {
		t.Fatalf("len(Sites) = %d, want 1", len(cfg.Sites))
	}
	s := cfg.Sites[0]
	if s.Interval != 0 || s.Timeout != 0 || s.UseBrowser {
		t.Errorf("site = %+v, want SDK defaults left unset", s)
	}
	if cfg.Ntfy == nil || cfg.Ntfy.Topic != "alerts" {
		t.Errorf("Ntfy = %+v", cfg.Ntfy)
	}
}

func TestParse_FullConfig(t *testing.T) {
	t.Setenv("TW_TELEGRAM_TOKEN", "123:abc")
	t.Setenv("TW_SMTP_PASSWORD", "hunter2")

	data := `
user_agent: tripwire-test/1.0
status_port: 9090
browser:
  url: ws://127.0.0.1:9222
  stealth: true
  timeout: 60s
ntfy:
  server: https://ntfy.example.com
  topic: my-alerts
  token: ${TW_NTFY_TOKEN:-}
  priority: high
telegram:
  token: ${TW_TELEGRAM_TOKEN}
  chat_id: "12345"
email:
  host: smtp.example.com
  port: 2525
  username: bot
  password: ${TW_SMTP_PASSWORD}
  from: bot@example.com
  to: [me@example.com, you@example.com]
kafka:
  brokers: [localhost:9092]
  topic: tripwire.alerts
sites:
  - name: GPU price
    url: https://shop.example.com/gpu
    interval: 30m
    timeout: 20s
    selector: "span.price"
    transformers:
      - regex_extract: '(\d+)[.,](\d+)'
      - type: replace
        from: ","
        to: "."
    rules:
      - on_decrease
      - type: less_than
        threshold: 500
      - more_than: 1e4
      - on_change_to: ""
      - type: on_change_from_to
        from: Sold out
        to: In stock
    notifiers: [ntfy, telegram]
  - name: Rendered
    url: https://spa.example.com
    use_browser: true
    selector: "#stock"
    notifiers: [email, kafka]
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.UserAgent != "tripwire-test/1.0" || cfg.StatusPort != 9090 {
		t.Errorf("UserAgent, StatusPort = %q, %d", cfg.UserAgent, cfg.StatusPort)
	}
	if cfg.Browser.URL != "ws://127.0.0.1:9222" || !cfg.Browser.Stealth || cfg.Browser.Timeout.Duration() != time.Minute {
		t.Errorf("Browser = %+v", cfg.Browser)
	}
	if cfg.Ntfy.Token != "" || cfg.Ntfy.Priority != "high" {
		t.Errorf("Ntfy = %+v", cfg.Ntfy)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Telegram.ChatID != "12345" {
		t.Errorf("Telegram = %+v", cfg.Telegram)
	}
	if cfg.Email.Password != "hunter2" || cfg.Email.Port != 2525 || len(cfg.Email.To) != 2 {
		t.Errorf("Email = %+v", cfg.Email)
	}
	if cfg.Kafka.Topic != "tripwire.alerts" || cfg.Kafka.Brokers[0] != "localhost:9092" {
		t.Errorf("Kafka = %+v", cfg.Kafka)
	}

	s := cfg.Sites[0]
	if s.Interval.Duration() != 30*time.Minute || s.Timeout.Duration() != 20*time.Second {
		t.Errorf("Interval, Timeout = %v, %v", s.Interval.Duration(), s.Timeout.Duration())
	}

	if len(s.Transformers) != 2 {
		t.Fatalf("len(Transformers) = %d, want 2", len(s.Transformers))
	}
	if tr := s.Transformers[0]; tr.Type != "regex_extract" || tr.Pattern != `(\d+)[.,](\d+)` {
		t.Errorf("Transformers[0] = %+v", tr)
	}
	if tr := s.Transformers[1]; tr.Type != "replace" || tr.From != "," || tr.To != "." {
		t.Errorf("Transformers[1] = %+v", tr)
	}

	if len(s.Rules) != 5 {
		t.Fatalf("len(Rules) = %d, want 5", len(s.Rules))
	}
	if s.Rules[0].Type != "on_decrease" {
		t.Errorf("Rules[0] = %+v", s.Rules[0])
	}
	if r := s.Rules[1]; r.Type != "less_than" || r.Threshold == nil || *r.Threshold != 500 {
		t.Errorf("Rules[1] = %+v", r)
	}
	if r := s.Rules[2]; r.Type != "more_than" || r.Threshold == nil || *r.Threshold != 1e4 {
		t.Errorf("Rules[2] = %+v", r)
	}
	if r := s.Rules[3]; r.Type != "on_change_to" || r.To == nil || *r.To != "" {
		t.Errorf("Rules[3] = %+v", r)
	}
	if r := s.Rules[4]; r.From == nil || *r.From != "Sold out" || r.To == nil || *r.To != "In stock" {
		t.Errorf("Rules[4] = %+v", r)
	}

	if got := strings.Join(s.Notifiers, ","); got != "ntfy,telegram" {
		t.Errorf("Notifiers = %s", got)
	}
	if !cfg.Sites[1].UseBrowser {
		t.Error("Sites[1].UseBrowser = false")
	}
}

func TestRuleConfig_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    string
		wantErr bool
	}{
		{name: "bare", yaml: `on_change`, want: "on_change"},
		{name: "threshold shorthand", yaml: `equal_to: 0`, want: "equal_to"},
		{name: "from shorthand", yaml: `on_change_from: Sold out`, want: "on_change_from"},
		{name: "structured", yaml: `{type: on_increase}`, want: "on_increase"},
		{name: "shorthand for rule without argument", yaml: `on_change: yes`, wantErr: true},
		{name: "threshold not a number", yaml: `less_than: cheap`, wantErr: true},
		{name: "list", yaml: `[on_change]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r RuleConfig
			err := yaml.Unmarshal([]byte(tt.yaml), &r)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal() expected error, got %+v", r)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if r.Type != tt.want {
				t.Errorf("Type = %q, want %q", r.Type, tt.want)
			}
		})
	}
}

func TestRuleConfig_ZeroThreshold(t *testing.T) {
	var r RuleConfig
	if err := yaml.Unmarshal([]byte(`equal_to: 0`), &r); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if r.Threshold == nil || *r.Threshold != 0 {
		t.Errorf("Threshold = %v, want pointer to 0", r.Threshold)
	}
}

func TestTransformerConfig_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    TransformerConfig
		wantErr bool
	}{
		{name: "regex shorthand", yaml: `regex_extract: '(\d+)'`, want: TransformerConfig{Type: "regex_extract", Pattern: `(\d+)`}},
		{name: "structured regex", yaml: `{type: regex_extract, pattern: 'a(b)'}`, want: TransformerConfig{Type: "regex_extract", Pattern: "a(b)"}},
		{name: "structured replace", yaml: `{type: replace, from: a, to: b}`, want: TransformerConfig{Type: "replace", From: "a", To: "b"}},
		{name: "replace shorthand", yaml: `replace: a`, wantErr: true},
		{name: "scalar", yaml: `regex_extract`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tr TransformerConfig
			err := yaml.Unmarshal([]byte(tt.yaml), &tr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Unmarshal() expected error, got %+v", tr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if tr != tt.want {
				t.Errorf("got %+v, want %+v", tr, tt.want)
			}
		})
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	const ntfy = "ntfy:\n  topic: alerts\n"

	tests := []struct {
		name        string
		yaml        string
		wantErrLike string
	}{
		{
			name:        "no sites",
			yaml:        ntfy,
			wantErrLike: "at least one site",
		},
		{
			name: "site missing name",
			yaml: ntfy + `
sites:
  - url: https://example.com
    selector: p
    notifiers: [ntfy]
`,
			wantErrLike: "sites[0]: name is required",
		},
		{
			name: "site missing url",
			yaml: ntfy + `
sites:
  - name: Test
    selector: p
    notifiers: [ntfy]
`,
			wantErrLike: "sites[0] (Test): url is required",
		},
		{
			name: "url without scheme",
			yaml: ntfy + `
sites:
  - name: Test
    url: example.com
    selector: p
    notifiers: [ntfy]
`,
			wantErrLike: "url scheme must be http or https",
		},
		{
			name: "url with ftp scheme",
			yaml: ntfy + `
sites:
  - name: Test
    url: ftp://example.com
    selector: p
    notifiers: [ntfy]
`,
			wantErrLike: `got "ftp"`,
		},
		{
			name: "missing selector",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    notifiers: [ntfy]
`,
			wantErrLike: "selector is required",
		},
		{
			name: "interval too short",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    interval: 500ms
    notifiers: [ntfy]
`,
			wantErrLike: "interval must be at least 1s",
		},
		{
			name: "timeout too short",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    timeout: 100ms
    notifiers: [ntfy]
`,
			wantErrLike: "timeout must be at least 1s",
		},
		{
			name: "duplicate names",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://a.example.com
    selector: p
    notifiers: [ntfy]
  - name: Test
    url: https://b.example.com
    selector: p
    notifiers: [ntfy]
`,
			wantErrLike: `sites[1]: duplicate site name "Test"`,
		},
		{
			name: "no notifiers",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
`,
			wantErrLike: "at least one notifier",
		},
		{
			name: "unknown notifier",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    notifiers: [pager]
`,
			wantErrLike: `unknown notifier "pager"`,
		},
		{
			name: "unconfigured notifier",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    notifiers: [ntfy, telegram]
`,
			wantErrLike: `notifier "telegram" has no telegram section`,
		},
		{
			name: "duplicate notifier",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    notifiers: [ntfy, ntfy]
`,
			wantErrLike: "listed twice",
		},
		{
			name: "browser site without browser",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    use_browser: true
    notifiers: [ntfy]
`,
			wantErrLike: "use_browser requires a browser section",
		},
		{
			name: "invalid regex",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    transformers:
      - regex_extract: '(\d+'
    notifiers: [ntfy]
`,
			wantErrLike: "sites[0] (Test): transformers[0]: invalid regular expression",
		},
		{
			name: "unknown transformer",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    transformers:
      - type: uppercase
    notifiers: [ntfy]
`,
			wantErrLike: `unknown transformer type "uppercase"`,
		},
		{
			name: "replace without from",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    transformers:
      - type: replace
        to: x
    notifiers: [ntfy]
`,
			wantErrLike: "replace requires from",
		},
		{
			name: "regex_extract with empty pattern",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    transformers:
      - regex_extract: ''
    notifiers: [ntfy]
`,
			wantErrLike: "sites[0] (Test): transformers[0]: regex_extract requires a pattern",
		},
		{
			name: "unknown rule",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    rules: [on_tuesday]
    notifiers: [ntfy]
`,
			wantErrLike: `rules[0]: unknown rule type "on_tuesday"`,
		},
		{
			name: "threshold rule without threshold",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    rules: [more_than]
    notifiers: [ntfy]
`,
			wantErrLike: "more_than requires threshold",
		},
		{
			name: "from_to rule missing to",
			yaml: ntfy + `
sites:
  - name: Test
    url: https://example.com
    selector: p
    rules:
      - type: on_change_from_to
        from: a
    notifiers: [ntfy]
`,
			wantErrLike: "requires from and to",
		},
		{
			name:        "ntfy without topic",
			yaml:        "ntfy:\n  server: https://ntfy.sh\n",
			wantErrLike: "ntfy: topic is required",
		},
		{
			name:        "telegram without chat",
			yaml:        "telegram:\n  token: abc\n",
			wantErrLike: "telegram: token and chat_id are required",
		},
		{
			name:        "email without recipients",
			yaml:        "email:\n  host: smtp.example.com\n  from: a@example.com\n",
			wantErrLike: "email: host, from and to are required",
		},
		{
			name:        "kafka without brokers",
			yaml:        "kafka:\n  topic: t\n",
			wantErrLike: "kafka: brokers and topic are required",
		},
		{
			name:        "browser with bad scheme",
			yaml:        "browser:\n  url: ftp://127.0.0.1:9222\n",
			wantErrLike: "browser: url must be",
		},
		{
			name:        "status port out of range",
			yaml:        "status_port: 70000\n",
			wantErrLike: "status_port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErrLike) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErrLike)
			}
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Errorf("Parse() error = %T, want *Error", err)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("sites: [unclosed"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	data := strings.Replace(minimal, "selector:", "interval: soon\n    selector:", 1)
	_, err := Parse([]byte(data))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("Parse() error = %v, want invalid duration", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"1s", time.Second},
		{"90m", 90 * time.Minute},
		{"1h30m", 90 * time.Minute},
		{"250ms", 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			if err := yaml.Unmarshal([]byte(tt.input), &d); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration() = %v, want %v", d.Duration(), tt.want)
			}
		})
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("TW_SHOP_HOST", "shop.example.com")

	data := strings.Replace(minimal, "https://example.com", "https://${TW_SHOP_HOST}/gpu", 1)
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Sites[0].URL != "https://shop.example.com/gpu" {
		t.Errorf("URL = %q", cfg.Sites[0].URL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	data := strings.Replace(minimal, "topic: alerts", "topic: ${TW_SURELY_UNSET_TOPIC}", 1)
	_, err := Parse([]byte(data))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "ntfy.topic") || !strings.Contains(err.Error(), "TW_SURELY_UNSET_TOPIC") {
		t.Errorf("Parse() error = %v, want it to name the field and variable", err)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "")

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tripwire.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sites[0].Name != "Test" {
		t.Errorf("Sites[0].Name = %q", cfg.Sites[0].Name)
	}

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}
