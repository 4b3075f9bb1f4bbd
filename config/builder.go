package config

import (
	"fmt"

	"github.com/jpalmerr/tripwire"
)

// BuildSites converts parsed configuration into SDK Site values, in file
// order.
func BuildSites(cfg *Config) ([]tripwire.Site, error) {
	sites := make([]tripwire.Site, 0, len(cfg.Sites))
	for i, sc := range cfg.Sites {
		s, err := buildSite(cfg, sc)
		if err != nil {
			return nil, &Error{Path: fmt.Sprintf("sites[%d] (%s)", i, sc.Name), Err: err}
		}
		sites = append(sites, s)
	}
	return sites, nil
}

// buildSite converts a single SiteConfig to an SDK Site.
func buildSite(cfg *Config, sc SiteConfig) (tripwire.Site, error) {
	var opts []tripwire.SiteOption

	if sc.Interval != 0 {
		opts = append(opts, tripwire.WithInterval(sc.Interval.Duration()))
	}

	timeout := sc.Timeout
	if timeout == 0 && sc.UseBrowser && cfg.Browser != nil {
		timeout = cfg.Browser.Timeout
	}
	if timeout != 0 {
		opts = append(opts, tripwire.WithTimeout(timeout.Duration()))
	}

	if sc.UseBrowser {
		opts = append(opts, tripwire.WithBrowser())
	}

	if len(sc.Transformers) > 0 {
		ts := make([]tripwire.Transformer, 0, len(sc.Transformers))
		for _, tc := range sc.Transformers {
			ts = append(ts, buildTransformer(tc))
		}
		opts = append(opts, tripwire.WithTransformers(ts...))
	}

	if len(sc.Rules) > 0 {
		rules := make([]tripwire.Rule, 0, len(sc.Rules))
		for _, rc := range sc.Rules {
			r, err := buildRule(rc)
			if err != nil {
				return tripwire.Site{}, err
			}
			rules = append(rules, r)
		}
		opts = append(opts, tripwire.WithRules(rules...))
	}

	if len(sc.Notifiers) > 0 {
		channels := make([]tripwire.Channel, 0, len(sc.Notifiers))
		for _, n := range sc.Notifiers {
			channels = append(channels, tripwire.Channel(n))
		}
		opts = append(opts, tripwire.WithChannels(channels...))
	}

	return tripwire.NewSite(sc.Name, sc.URL, sc.Selector, opts...)
}

func buildTransformer(tc TransformerConfig) tripwire.Transformer {
	if tripwire.TransformerKind(tc.Type) == tripwire.TransformRegexExtract {
		return tripwire.RegexExtract(tc.Pattern)
	}
	return tripwire.Replace(tc.From, tc.To)
}

func buildRule(rc RuleConfig) (tripwire.Rule, error) {
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	var threshold float64
	if rc.Threshold != nil {
		threshold = *rc.Threshold
	}

	switch tripwire.RuleKind(rc.Type) {
	case tripwire.RuleOnChange:
		return tripwire.OnChange(), nil
	case tripwire.RuleOnChangeFrom:
		return tripwire.OnChangeFrom(str(rc.From)), nil
	case tripwire.RuleOnChangeTo:
		return tripwire.OnChangeTo(str(rc.To)), nil
	case tripwire.RuleOnChangeFromTo:
		return tripwire.OnChangeFromTo(str(rc.From), str(rc.To)), nil
	case tripwire.RuleLessThan:
		return tripwire.LessThan(threshold), nil
	case tripwire.RuleLessThanOrEqualTo:
		return tripwire.LessThanOrEqualTo(threshold), nil
	case tripwire.RuleEqualTo:
		return tripwire.EqualTo(threshold), nil
	case tripwire.RuleMoreThan:
		return tripwire.MoreThan(threshold), nil
	case tripwire.RuleMoreThanOrEqualTo:
		return tripwire.MoreThanOrEqualTo(threshold), nil
	case tripwire.RuleOnDecrease:
		return tripwire.OnDecrease(), nil
	case tripwire.RuleOnIncrease:
		return tripwire.OnIncrease(), nil
	default:
		return tripwire.Rule{}, fmt.Errorf("unknown rule type %q", rc.Type)
	}
}

// Options converts the file's global settings and channel sections into
// SDK options. Sites are not included; pass them with [tripwire.WithSites].
func Options(cfg *Config) []tripwire.Option {
	var opts []tripwire.Option

	if cfg.UserAgent != "" {
		opts = append(opts, tripwire.WithUserAgent(cfg.UserAgent))
	}
	if cfg.StatusPort != 0 {
		opts = append(opts, tripwire.WithStatusPort(cfg.StatusPort))
	}
	if b := cfg.Browser; b != nil {
		opts = append(opts, tripwire.WithBrowserEndpoint(b.URL))
		if b.Stealth {
			opts = append(opts, tripwire.WithStealth())
		}
	}
	if n := cfg.Ntfy; n != nil {
		opts = append(opts, tripwire.WithNtfy(tripwire.NtfyConfig{
			Server:   n.Server,
			Topic:    n.Topic,
			Token:    n.Token,
			Priority: n.Priority,
		}))
	}
	if tg := cfg.Telegram; tg != nil {
		opts = append(opts, tripwire.WithTelegram(tripwire.TelegramConfig{
			Token:  tg.Token,
			ChatID: tg.ChatID,
			APIURL: tg.APIURL,
		}))
	}
	if e := cfg.Email; e != nil {
		opts = append(opts, tripwire.WithEmail(tripwire.EmailConfig{
			Host:     e.Host,
			Port:     e.Port,
			Username: e.Username,
			Password: e.Password,
			From:     e.From,
			To:       e.To,
		}))
	}
	if k := cfg.Kafka; k != nil {
		opts = append(opts, tripwire.WithKafka(tripwire.KafkaConfig{
			Brokers: k.Brokers,
			Topic:   k.Topic,
		}))
	}

	return opts
}
