package tripwire

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// RuleKind identifies one of the eleven rule kinds.
type RuleKind string

const (
	RuleOnChange          RuleKind = "on_change"
	RuleOnChangeFrom      RuleKind = "on_change_from"
	RuleOnChangeTo        RuleKind = "on_change_to"
	RuleOnChangeFromTo    RuleKind = "on_change_from_to"
	RuleLessThan          RuleKind = "less_than"
	RuleLessThanOrEqualTo RuleKind = "less_than_or_equal_to"
	RuleEqualTo           RuleKind = "equal_to"
	RuleMoreThan          RuleKind = "more_than"
	RuleMoreThanOrEqualTo RuleKind = "more_than_or_equal_to"
	RuleOnDecrease        RuleKind = "on_decrease"
	RuleOnIncrease        RuleKind = "on_increase"
)

// RuleKinds lists every rule kind in declaration order.
var RuleKinds = []RuleKind{
	RuleOnChange,
	RuleOnChangeFrom,
	RuleOnChangeTo,
	RuleOnChangeFromTo,
	RuleLessThan,
	RuleLessThanOrEqualTo,
	RuleEqualTo,
	RuleMoreThan,
	RuleMoreThanOrEqualTo,
	RuleOnDecrease,
	RuleOnIncrease,
}

// Rule is a predicate over a site's previous and current value. When a
// rule matches, the site's notifiers fire.
//
// Rule is a closed tagged variant; build it with one of the constructors
// ([OnChange], [MoreThan], ...). Rules are immutable values and evaluating
// them has no side effects.
type Rule struct {
	kind      RuleKind
	from      string
	to        string
	threshold float64
}

// OnChange matches when a previous value exists and differs from the current one.
func OnChange() Rule { return Rule{kind: RuleOnChange} }

// OnChangeFrom matches when the value changes away from from.
func OnChangeFrom(from string) Rule { return Rule{kind: RuleOnChangeFrom, from: from} }

// OnChangeTo matches when the value changes to to.
func OnChangeTo(to string) Rule { return Rule{kind: RuleOnChangeTo, to: to} }

// OnChangeFromTo matches when the previous value is from and the current
// value is to.
func OnChangeFromTo(from, to string) Rule {
	return Rule{kind: RuleOnChangeFromTo, from: from, to: to}
}

// LessThan matches when the current value is a number below threshold.
func LessThan(threshold float64) Rule { return Rule{kind: RuleLessThan, threshold: threshold} }

// LessThanOrEqualTo matches when the current value is a number at or below threshold.
func LessThanOrEqualTo(threshold float64) Rule {
	return Rule{kind: RuleLessThanOrEqualTo, threshold: threshold}
}

// EqualTo matches when the current value is a number equal to threshold.
// Comparison is exact floating-point equality.
func EqualTo(threshold float64) Rule { return Rule{kind: RuleEqualTo, threshold: threshold} }

// MoreThan matches when the current value is a number above threshold.
func MoreThan(threshold float64) Rule { return Rule{kind: RuleMoreThan, threshold: threshold} }

// MoreThanOrEqualTo matches when the current value is a number at or above threshold.
func MoreThanOrEqualTo(threshold float64) Rule {
	return Rule{kind: RuleMoreThanOrEqualTo, threshold: threshold}
}

// OnDecrease matches when both values are numbers and the current one is lower.
func OnDecrease() Rule { return Rule{kind: RuleOnDecrease} }

// OnIncrease matches when both values are numbers and the current one is higher.
func OnIncrease() Rule { return Rule{kind: RuleOnIncrease} }

// Kind returns the rule kind.
func (r Rule) Kind() RuleKind { return r.kind }

// From returns the expected previous value of OnChangeFrom and OnChangeFromTo rules.
func (r Rule) From() string { return r.from }

// To returns the expected current value of OnChangeTo and OnChangeFromTo rules.
func (r Rule) To() string { return r.to }

// Threshold returns the threshold of comparison rules.
func (r Rule) Threshold() float64 { return r.threshold }

// String describes the rule for logs and notifications.
func (r Rule) String() string {
	switch r.kind {
	case RuleOnChangeFrom:
		return fmt.Sprintf("%s(%q)", r.kind, r.from)
	case RuleOnChangeTo:
		return fmt.Sprintf("%s(%q)", r.kind, r.to)
	case RuleOnChangeFromTo:
		return fmt.Sprintf("%s(%q, %q)", r.kind, r.from, r.to)
	case RuleLessThan, RuleLessThanOrEqualTo, RuleEqualTo, RuleMoreThan, RuleMoreThanOrEqualTo:
		return fmt.Sprintf("%s(%s)", r.kind, strconv.FormatFloat(r.threshold, 'g', -1, 64))
	default:
		return string(r.kind)
	}
}

// Matches reports whether the rule matches the transition from prev to cur.
func (r Rule) Matches(prev Value, cur string) bool {
	return r.matches(prev, cur, nil)
}

func (r Rule) matches(prev Value, cur string, logger *slog.Logger) bool {
	last, hasLast := prev.Get()

	switch r.kind {
	case RuleOnChange:
		return hasLast && last != cur
	case RuleOnChangeFrom:
		return hasLast && last != cur && last == r.from
	case RuleOnChangeTo:
		return hasLast && last != cur && cur == r.to
	case RuleOnChangeFromTo:
		return hasLast && last == r.from && cur == r.to
	}

	n, ok := parseNumber(cur, "current", logger)
	if !ok {
		return false
	}

	switch r.kind {
	case RuleLessThan:
		return n < r.threshold
	case RuleLessThanOrEqualTo:
		return n <= r.threshold
	case RuleEqualTo:
		return n == r.threshold
	case RuleMoreThan:
		return n > r.threshold
	case RuleMoreThanOrEqualTo:
		return n >= r.threshold
	case RuleOnDecrease, RuleOnIncrease:
		if !hasLast {
			return false
		}
		p, ok := parseNumber(last, "previous", logger)
		if !ok {
			return false
		}
		if r.kind == RuleOnDecrease {
			return p > n
		}
		return p < n
	default:
		return false
	}
}

// parseNumber parses s as a plain decimal float64. Hex floats and digit
// separators are rejected even though strconv accepts them. Values out of
// range saturate to ±Inf instead of failing. Failures are logged at debug
// level.
func parseNumber(s, which string, logger *slog.Logger) (float64, bool) {
	if hasLiteralSyntax(s) {
		if logger != nil {
			logger.Debug("value is not a number", "which", which, "value", s)
		}
		return 0, false
	}

	n, err := strconv.ParseFloat(s, 64)
	if err == nil {
		return n, true
	}
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		return n, true
	}
	if logger != nil {
		logger.Debug("value is not a number", "which", which, "value", s)
	}
	return 0, false
}

// hasLiteralSyntax reports whether s uses Go literal forms: an underscore
// digit separator or a 0x prefix after an optional sign.
func hasLiteralSyntax(s string) bool {
	if strings.Contains(s, "_") {
		return true
	}
	s = strings.TrimLeft(s, "+-")
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Evaluate returns the first rule in rules that matches the transition
// from prev to cur, and whether any rule matched.
//
// Evaluate is pure: repeated calls with the same arguments return the same
// result. Values that must be numeric but fail to parse make the rule not
// match; the failure is logged to logger at debug level. A nil logger
// discards these messages.
func Evaluate(logger *slog.Logger, rules []Rule, prev Value, cur string) (Rule, bool) {
	if logger == nil {
		logger = discardLogger
	}

	for _, r := range rules {
		if r.matches(prev, cur, logger) {
			return r, true
		}
	}
	return Rule{}, false
}
