// Package config provides YAML configuration parsing for tripwire.
//
// This package enables running tripwire as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	browser:
//	  url: ws://127.0.0.1:9222
//
//	ntfy:
//	  topic: my-alerts
//	  token: ${NTFY_TOKEN:-}
//
//	sites:
//	  - name: GPU price
//	    url: https://shop.example.com/gpu
//	    interval: 30m
//	    selector: span.price
//	    transformers:
//	      - regex_extract: '(\d+)[.,](\d+)'
//	    rules:
//	      - on_decrease
//	      - less_than: 500
//	    notifiers: [ntfy]
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/tripwire"
)

// minDuration is the smallest interval or timeout a file may set.
const minDuration = 1 * time.Second

// Error is returned for any configuration that cannot be used. It is
// always fatal at startup.
type Error struct {
	// Path locates the offending setting, e.g. "sites[2] (GPU): rules[0]".
	// Empty for file-level errors.
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func errorf(path, format string, args ...any) error {
	return &Error{Path: path, Err: fmt.Errorf(format, args...)}
}

// Config is the root configuration structure for tripwire.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// UserAgent is sent with direct HTTP fetches. Defaults to
	// "tripwire/<version>".
	UserAgent string `yaml:"user_agent"`

	// StatusPort enables the status server. Zero leaves it off.
	StatusPort int `yaml:"status_port"`

	Browser  *BrowserConfig  `yaml:"browser"`
	Ntfy     *NtfyConfig     `yaml:"ntfy"`
	Telegram *TelegramConfig `yaml:"telegram"`
	Email    *EmailConfig    `yaml:"email"`
	Kafka    *KafkaConfig    `yaml:"kafka"`

	Sites []SiteConfig `yaml:"sites"`
}

// BrowserConfig points at a remote Chrome DevTools endpoint.
type BrowserConfig struct {
	// URL is a ws:// debugger URL or an http:// address as exposed by
	// --remote-debugging-port.
	URL string `yaml:"url"`

	// Stealth applies go-rod stealth evasions to every page.
	Stealth bool `yaml:"stealth"`

	// Timeout is the fetch timeout for browser sites that set none.
	Timeout Duration `yaml:"timeout"`
}

type NtfyConfig struct {
	Server   string `yaml:"server"`
	Topic    string `yaml:"topic"`
	Token    string `yaml:"token"`
	Priority string `yaml:"priority"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID string `yaml:"chat_id"`
	APIURL string `yaml:"api_url"`
}

type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// SiteConfig defines one monitored page.
type SiteConfig struct {
	// Name identifies the site in logs and notifications. Must be unique.
	Name string `yaml:"name"`

	// URL is the page to fetch.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Interval is the time between checks. Defaults to 1h, minimum 1s.
	Interval Duration `yaml:"interval"`

	// Timeout bounds a single fetch. Defaults to 30s, or browser.timeout
	// for browser sites.
	Timeout Duration `yaml:"timeout"`

	// UseBrowser renders the page in the remote browser.
	UseBrowser bool `yaml:"use_browser"`

	// Selector is the CSS selector of the watched element.
	Selector string `yaml:"selector"`

	Transformers []TransformerConfig `yaml:"transformers"`
	Rules        []RuleConfig        `yaml:"rules"`

	// Notifiers names the channels to notify: ntfy, telegram, email, kafka.
	Notifiers []string `yaml:"notifiers"`
}

// TransformerConfig is one step of a site's transformer pipeline.
//
// It supports two formats in YAML:
//
// Shorthand single-key mapping:
//
//	- regex_extract: '(\d+),(\d+)'
//
// Structured object:
//
//	- type: replace
//	  from: ","
//	  to: "."
type TransformerConfig struct {
	// Type is "regex_extract" or "replace".
	Type string

	// Pattern is the regular expression (for type: regex_extract).
	Pattern string

	// From and To are the literal search and replacement (for type: replace).
	From string
	To   string
}

// UnmarshalYAML implements yaml.Unmarshaler for TransformerConfig.
func (t *TransformerConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("transformer must be an object, got %s", kindName(node))
	}

	if key, value, ok := shorthand(node); ok {
		if key != string(tripwire.TransformRegexExtract) {
			return fmt.Errorf("transformer %q has no shorthand form", key)
		}
		t.Type = key
		return value.Decode(&t.Pattern)
	}

	// temporary struct to avoid infinite recursion
	var raw struct {
		Type    string `yaml:"type"`
		Pattern string `yaml:"pattern"`
		From    string `yaml:"from"`
		To      string `yaml:"to"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	t.Type = raw.Type
	t.Pattern = raw.Pattern
	t.From = raw.From
	t.To = raw.To
	return nil
}

// RuleConfig is one rule of a site, evaluated in file order.
//
// It supports three formats in YAML:
//
// Bare name, for rules without arguments:
//
//	- on_change
//
// Shorthand single-key mapping, for rules with one argument:
//
//	- more_than: 100
//	- on_change_to: In stock
//
// Structured object:
//
//	- type: on_change_from_to
//	  from: Sold out
//	  to: In stock
type RuleConfig struct {
	// Type is one of the rule kind names, e.g. "on_change" or "less_than".
	Type string

	// From and To are the values compared by the on_change_* rules. Nil
	// when not given, which is distinct from the empty string.
	From *string
	To   *string

	// Threshold is the number compared by the threshold rules.
	Threshold *float64
}

// UnmarshalYAML implements yaml.Unmarshaler for RuleConfig.
func (r *RuleConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&r.Type)

	case yaml.MappingNode:
		if key, value, ok := shorthand(node); ok {
			r.Type = key
			switch tripwire.RuleKind(key) {
			case tripwire.RuleOnChangeFrom:
				r.From = new(string)
				return value.Decode(r.From)
			case tripwire.RuleOnChangeTo:
				r.To = new(string)
				return value.Decode(r.To)
			case tripwire.RuleLessThan, tripwire.RuleLessThanOrEqualTo, tripwire.RuleEqualTo,
				tripwire.RuleMoreThan, tripwire.RuleMoreThanOrEqualTo:
				r.Threshold = new(float64)
				return value.Decode(r.Threshold)
			default:
				return fmt.Errorf("rule %q has no shorthand form", key)
			}
		}

		var raw struct {
			Type      string   `yaml:"type"`
			From      *string  `yaml:"from"`
			To        *string  `yaml:"to"`
			Threshold *float64 `yaml:"threshold"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Type = raw.Type
		r.From = raw.From
		r.To = raw.To
		r.Threshold = raw.Threshold
		return nil
	}

	return fmt.Errorf("rule must be a string or object, got %s", kindName(node))
}

// shorthand reports whether node is a single-key mapping without a "type"
// key, returning the key and its value.
func shorthand(node *yaml.Node) (string, *yaml.Node, bool) {
	if len(node.Content) != 2 || node.Content[0].Value == "type" {
		return "", nil, false
	}
	return node.Content[0].Value, node.Content[1], true
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.ScalarNode:
		return "scalar"
	case yaml.SequenceNode:
		return "list"
	case yaml.MappingNode:
		return "object"
	default:
		return "unknown node"
	}
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// expandAll expands each field in place, stopping at the first failure.
func expandAll(path string, fields map[string]*string) error {
	for name, field := range fields {
		expanded, err := expandEnvVars(*field)
		if err != nil {
			if path != "" {
				name = path + "." + name
			}
			return &Error{Path: name, Err: err}
		}
		*field = expanded
	}
	return nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded after parsing, in the
// fields documented to support them.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to read config file: %w", err)}
	}
	return Parse(data)
}

// Parse parses and validates YAML configuration data.
//
// Environment variables are expanded in site URLs, the user agent, the
// browser URL, and every string of the channel sections.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) expand() error {
	if err := expandAll("", map[string]*string{"user_agent": &c.UserAgent}); err != nil {
		return err
	}
	if b := c.Browser; b != nil {
		if err := expandAll("browser", map[string]*string{"url": &b.URL}); err != nil {
			return err
		}
	}
	if n := c.Ntfy; n != nil {
		err := expandAll("ntfy", map[string]*string{
			"server": &n.Server, "topic": &n.Topic, "token": &n.Token, "priority": &n.Priority,
		})
		if err != nil {
			return err
		}
	}
	if tg := c.Telegram; tg != nil {
		err := expandAll("telegram", map[string]*string{
			"token": &tg.Token, "chat_id": &tg.ChatID, "api_url": &tg.APIURL,
		})
		if err != nil {
			return err
		}
	}
	if e := c.Email; e != nil {
		fields := map[string]*string{
			"host": &e.Host, "username": &e.Username, "password": &e.Password, "from": &e.From,
		}
		for i := range e.To {
			fields[fmt.Sprintf("to[%d]", i)] = &e.To[i]
		}
		if err := expandAll("email", fields); err != nil {
			return err
		}
	}
	if k := c.Kafka; k != nil {
		fields := map[string]*string{"topic": &k.Topic}
		for i := range k.Brokers {
			fields[fmt.Sprintf("brokers[%d]", i)] = &k.Brokers[i]
		}
		if err := expandAll("kafka", fields); err != nil {
			return err
		}
	}
	for i := range c.Sites {
		s := &c.Sites[i]
		if err := expandAll(fmt.Sprintf("sites[%d]", i), map[string]*string{"url": &s.URL}); err != nil {
			return err
		}
	}
	return nil
}

// configured reports whether the channel's section is present.
func (c *Config) configured(ch tripwire.Channel) bool {
	switch ch {
	case tripwire.ChannelNtfy:
		return c.Ntfy != nil
	case tripwire.ChannelTelegram:
		return c.Telegram != nil
	case tripwire.ChannelEmail:
		return c.Email != nil
	case tripwire.ChannelKafka:
		return c.Kafka != nil
	default:
		return false
	}
}

func (c *Config) validate() error {
	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return errorf("status_port", "must be between 1 and 65535 (0 disables), got %d", c.StatusPort)
	}

	if b := c.Browser; b != nil {
		u, err := url.Parse(b.URL)
		if b.URL == "" || err != nil || !slices.Contains([]string{"ws", "wss", "http", "https"}, u.Scheme) {
			return errorf("browser", "url must be a ws://, wss://, http:// or https:// address")
		}
		if b.Timeout != 0 && b.Timeout.Duration() < minDuration {
			return errorf("browser", "timeout must be at least %s, got %s", minDuration, b.Timeout.Duration())
		}
	}
	if n := c.Ntfy; n != nil && n.Topic == "" {
		return errorf("ntfy", "topic is required")
	}
	if tg := c.Telegram; tg != nil && (tg.Token == "" || tg.ChatID == "") {
		return errorf("telegram", "token and chat_id are required")
	}
	if e := c.Email; e != nil {
		if e.Host == "" || e.From == "" || len(e.To) == 0 {
			return errorf("email", "host, from and to are required")
		}
		if e.Port < 0 || e.Port > 65535 {
			return errorf("email", "port must be between 1 and 65535, got %d", e.Port)
		}
	}
	if k := c.Kafka; k != nil && (len(k.Brokers) == 0 || k.Topic == "") {
		return errorf("kafka", "brokers and topic are required")
	}

	if len(c.Sites) == 0 {
		return &Error{Err: errors.New("at least one site must be defined")}
	}

	seen := make(map[string]bool, len(c.Sites))
	for i := range c.Sites {
		if err := c.validateSite(i); err != nil {
			return err
		}
		name := c.Sites[i].Name
		if seen[name] {
			return errorf(fmt.Sprintf("sites[%d]", i), "duplicate site name %q", name)
		}
		seen[name] = true
	}

	return nil
}

func (c *Config) validateSite(i int) error {
	s := &c.Sites[i]

	if s.Name == "" {
		return errorf(fmt.Sprintf("sites[%d]", i), "name is required")
	}
	path := fmt.Sprintf("sites[%d] (%s)", i, s.Name)

	if s.URL == "" {
		return errorf(path, "url is required")
	}
	parsedURL, err := url.Parse(s.URL)
	if err != nil {
		return errorf(path, "invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return errorf(path, "url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	if s.Interval != 0 && s.Interval.Duration() < minDuration {
		return errorf(path, "interval must be at least %s, got %s", minDuration, s.Interval.Duration())
	}
	if s.Timeout != 0 && s.Timeout.Duration() < minDuration {
		return errorf(path, "timeout must be at least %s if specified, got %s", minDuration, s.Timeout.Duration())
	}

	if strings.TrimSpace(s.Selector) == "" {
		return errorf(path, "selector is required")
	}

	if s.UseBrowser && c.Browser == nil {
		return errorf(path, "use_browser requires a browser section")
	}

	for j, t := range s.Transformers {
		if err := validateTransformer(t); err != nil {
			return errorf(fmt.Sprintf("%s: transformers[%d]", path, j), "%w", err)
		}
	}
	for j, r := range s.Rules {
		if err := validateRule(r); err != nil {
			return errorf(fmt.Sprintf("%s: rules[%d]", path, j), "%w", err)
		}
	}

	if len(s.Notifiers) == 0 {
		return errorf(path, "at least one notifier is required")
	}
	used := make(map[string]bool, len(s.Notifiers))
	for _, n := range s.Notifiers {
		ch := tripwire.Channel(n)
		if !ch.Valid() {
			return errorf(path, "unknown notifier %q", n)
		}
		if used[n] {
			return errorf(path, "notifier %q listed twice", n)
		}
		used[n] = true
		if !c.configured(ch) {
			return errorf(path, "notifier %q has no %s section", n, n)
		}
	}

	return nil
}

func validateTransformer(t TransformerConfig) error {
	switch tripwire.TransformerKind(t.Type) {
	case tripwire.TransformRegexExtract:
		if t.Pattern == "" {
			return errors.New("regex_extract requires a pattern")
		}
		if _, err := regexp.Compile(t.Pattern); err != nil {
			return fmt.Errorf("%w: %v", tripwire.ErrInvalidPattern, err)
		}
	case tripwire.TransformReplace:
		if t.From == "" {
			return errors.New("replace requires from")
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown transformer type %q", t.Type)
	}
	return nil
}

func validateRule(r RuleConfig) error {
	switch tripwire.RuleKind(r.Type) {
	case tripwire.RuleOnChange, tripwire.RuleOnDecrease, tripwire.RuleOnIncrease:
	case tripwire.RuleOnChangeFrom:
		if r.From == nil {
			return errors.New("on_change_from requires from")
		}
	case tripwire.RuleOnChangeTo:
		if r.To == nil {
			return errors.New("on_change_to requires to")
		}
	case tripwire.RuleOnChangeFromTo:
		if r.From == nil || r.To == nil {
			return errors.New("on_change_from_to requires from and to")
		}
	case tripwire.RuleLessThan, tripwire.RuleLessThanOrEqualTo, tripwire.RuleEqualTo,
		tripwire.RuleMoreThan, tripwire.RuleMoreThanOrEqualTo:
		if r.Threshold == nil {
			return fmt.Errorf("%s requires threshold", r.Type)
		}
	case "":
		return errors.New("type is required")
	default:
		return fmt.Errorf("unknown rule type %q", r.Type)
	}
	return nil
}
