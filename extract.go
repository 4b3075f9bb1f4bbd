package tripwire

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Selector is a compiled CSS selector.
//
// Selector is created by [CompileSelector] and is safe for concurrent use,
// although each site monitor compiles and owns its own.
type Selector struct {
	expr    string
	matcher cascadia.Selector
}

// String returns the source expression of the selector.
func (s Selector) String() string {
	return s.expr
}

// CompileSelector compiles a CSS selector expression such as
// "div.product > span.price" or "#stock".
//
// Returns a [*SelectorError] if the expression is empty or invalid.
func CompileSelector(expr string) (Selector, error) {
	if strings.TrimSpace(expr) == "" {
		return Selector{}, &SelectorError{Selector: expr, Err: fmt.Errorf("selector is empty")}
	}

	m, err := cascadia.Compile(expr)
	if err != nil {
		return Selector{}, &SelectorError{Selector: expr, Err: err}
	}

	return Selector{expr: expr, matcher: m}, nil
}

// MustCompileSelector is like [CompileSelector] but panics if the
// expression is invalid.
func MustCompileSelector(expr string) Selector {
	sel, err := CompileSelector(expr)
	if err != nil {
		panic("tripwire: " + err.Error())
	}
	return sel
}

// Extract returns the text of the first node in markup matched by sel.
//
// The text is the concatenation, in document order, of every text node
// beneath the matched element, with nothing inserted between them. Markup
// is parsed leniently, the way a browser would.
//
// Returns an [*ExtractError] wrapping [ErrNoMatch] if no node matches.
func Extract(markup string, sel Selector) (string, error) {
	if sel.matcher == nil {
		return "", &ExtractError{Selector: sel.expr, Err: fmt.Errorf("selector not compiled")}
	}

	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", &ExtractError{Selector: sel.expr, Err: fmt.Errorf("failed to parse markup: %w", err)}
	}

	first := goquery.NewDocumentFromNode(root).FindMatcher(sel.matcher).First()
	if first.Length() == 0 {
		return "", &ExtractError{Selector: sel.expr, Err: ErrNoMatch}
	}

	return first.Text(), nil
}
