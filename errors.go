package tripwire

import (
	"errors"
	"fmt"
)

// Sentinel errors for the value pipeline. Use [errors.Is] to test for them;
// they are always wrapped in one of the typed errors below.
var (
	// ErrNoMatch is returned by [Extract] when the selector matches no node.
	ErrNoMatch = errors.New("no element matches selector")

	// ErrInvalidPattern is returned when a RegexExtract pattern does not compile.
	ErrInvalidPattern = errors.New("invalid regular expression")

	// ErrPatternNoMatch is returned when a RegexExtract pattern does not match.
	ErrPatternNoMatch = errors.New("regular expression did not match")
)

// Stage names the step of a tick in which an error occurred.
type Stage string

const (
	StageSelector  Stage = "selector"
	StageFetch     Stage = "fetch"
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageNotify    Stage = "notify"

	// StagePanic marks a monitor stopped by a recovered panic.
	StagePanic Stage = "panic"
)

// SelectorError reports a selector expression that failed to compile.
// A site whose selector does not compile never starts monitoring.
type SelectorError struct {
	Selector string
	Err      error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("failed to parse selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorError) Unwrap() error { return e.Err }

// FetchError reports a failure to acquire page content.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractError reports that extraction from page markup failed.
type ExtractError struct {
	Selector string
	Err      error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("failed to extract %q: %v", e.Selector, e.Err)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// TransformError reports the failure of one transformer in a pipeline.
type TransformError struct {
	// Index is the position of the failing transformer in the pipeline.
	Index       int
	Transformer Transformer
	Err         error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transformer %d (%s): %v", e.Index, e.Transformer, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// NotifyError reports a failed notification delivery.
type NotifyError struct {
	Channel Channel
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("failed to notify via %s: %v", e.Channel, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// TickError is the error a monitor terminates with when a tick fails.
// It records which site and which stage failed; the cause is available
// via [errors.As] or [errors.Unwrap].
type TickError struct {
	Site  string
	Stage Stage
	Tick  int
	Err   error
}

func (e *TickError) Error() string {
	if e.Stage == StageSelector {
		return fmt.Sprintf("site %q: %v", e.Site, e.Err)
	}
	return fmt.Sprintf("site %q: tick %d: %s: %v", e.Site, e.Tick, e.Stage, e.Err)
}

func (e *TickError) Unwrap() error { return e.Err }
