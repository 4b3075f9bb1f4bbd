package tripwire

import (
	"fmt"
	"regexp"
	"strings"
)

// TransformerKind identifies the kind of a [Transformer].
type TransformerKind string

const (
	// TransformRegexExtract keeps the capture groups of a regular expression.
	TransformRegexExtract TransformerKind = "regex_extract"

	// TransformReplace replaces literal substrings.
	TransformReplace TransformerKind = "replace"
)

// Transformer is one step of the text pipeline that turns extracted page
// text into the value rules are evaluated against.
//
// Transformer is a closed tagged variant: build it with [RegexExtract] or
// [Replace]. Transformers are immutable values.
type Transformer struct {
	kind    TransformerKind
	pattern string
	from    string
	to      string
}

// RegexExtract returns a [Transformer] that runs pattern against the value
// and keeps the text of every capture group that participated in the first
// match, concatenated in group order with no separator.
//
// For example, pattern `(\d+)-(\d+)` turns "12-34" into "1234". Optional
// groups that did not participate contribute nothing.
//
// The pattern is compiled when the transformer is applied, so an invalid
// pattern surfaces as [ErrInvalidPattern] at that point.
func RegexExtract(pattern string) Transformer {
	return Transformer{kind: TransformRegexExtract, pattern: pattern}
}

// Replace returns a [Transformer] that replaces every non-overlapping
// occurrence of from with to. Replace never fails. An empty from leaves the
// value unchanged.
func Replace(from, to string) Transformer {
	return Transformer{kind: TransformReplace, from: from, to: to}
}

// Kind returns the transformer kind.
func (t Transformer) Kind() TransformerKind { return t.kind }

// Pattern returns the regular expression of a RegexExtract transformer.
func (t Transformer) Pattern() string { return t.pattern }

// From returns the search string of a Replace transformer.
func (t Transformer) From() string { return t.from }

// To returns the replacement string of a Replace transformer.
func (t Transformer) To() string { return t.to }

// String describes the transformer for logs and errors.
func (t Transformer) String() string {
	switch t.kind {
	case TransformRegexExtract:
		return fmt.Sprintf("regex_extract(%q)", t.pattern)
	case TransformReplace:
		return fmt.Sprintf("replace(%q, %q)", t.from, t.to)
	default:
		return "unknown"
	}
}

// Apply runs the transformer against value.
func (t Transformer) Apply(value string) (string, error) {
	switch t.kind {
	case TransformRegexExtract:
		return regexExtract(t.pattern, value)
	case TransformReplace:
		if t.from == "" {
			return value, nil
		}
		return strings.ReplaceAll(value, t.from, t.to), nil
	default:
		return "", fmt.Errorf("unknown transformer kind %q", t.kind)
	}
}

// regexExtract concatenates the participating capture groups of the first
// match of pattern in value.
func regexExtract(pattern, value string) (string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	idx := re.FindStringSubmatchIndex(value)
	if idx == nil {
		return "", ErrPatternNoMatch
	}

	var sb strings.Builder
	// pairs after the first describe the capture groups; -1 means the group
	// did not participate
	for i := 2; i+1 < len(idx); i += 2 {
		if idx[i] < 0 {
			continue
		}
		sb.WriteString(value[idx[i]:idx[i+1]])
	}
	return sb.String(), nil
}

// ApplyTransformers runs transformers over value in order, feeding the
// output of each into the next.
//
// The pipeline is atomic: if any transformer fails, ApplyTransformers
// returns a [*TransformError] and no partial value. An empty list returns
// value unchanged.
func ApplyTransformers(value string, transformers []Transformer) (string, error) {
	for i, t := range transformers {
		next, err := t.Apply(value)
		if err != nil {
			return "", &TransformError{Index: i, Transformer: t, Err: err}
		}
		value = next
	}
	return value, nil
}
