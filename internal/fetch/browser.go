package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ErrBrowserClosed is returned by [Browser.Render] after [Browser.Close].
var ErrBrowserClosed = errors.New("browser: closed")

// Browser renders pages through a remote Chrome instance speaking the
// DevTools protocol.
//
// The websocket connection is opened lazily on the first render and shared
// by every site. Each render runs in its own incognito context, so cookies
// and storage never leak between sites or between ticks. A failed render
// drops the connection and the next render reconnects.
type Browser struct {
	controlURL string
	stealth    bool
	logger     *slog.Logger

	mu     sync.Mutex
	conn   *rod.Browser
	cancel context.CancelFunc
	closed bool
}

// NewBrowser creates a Browser for the DevTools endpoint at controlURL.
//
// controlURL may be a websocket URL or an HTTP address such as
// "http://127.0.0.1:9222"; the latter is resolved to the websocket URL on
// connect. With stealth set, pages are created with the go-rod stealth
// evasions applied.
func NewBrowser(controlURL string, stealth bool, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Browser{
		controlURL: controlURL,
		stealth:    stealth,
		logger:     logger,
	}
}

// Render navigates to pageURL, waits for the load event and returns the
// serialized document. The whole operation is bounded by timeout.
func (b *Browser) Render(ctx context.Context, pageURL string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := b.connection()
	if err != nil {
		return "", err
	}

	html, err := b.render(ctx, conn, pageURL)
	if err != nil && ctx.Err() == nil {
		// the connection may be broken; start fresh next time
		b.reset(conn)
	}
	return html, err
}

func (b *Browser) render(ctx context.Context, conn *rod.Browser, pageURL string) (string, error) {
	incognito, err := conn.Context(ctx).Incognito()
	if err != nil {
		return "", fmt.Errorf("browser: create incognito context: %w", err)
	}
	defer func() {
		// Close on an incognito browser only disposes its context
		if err := incognito.Close(); err != nil {
			b.logger.Debug("browser: dispose context failed", "error", err)
		}
	}()

	var page *rod.Page
	if b.stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return "", fmt.Errorf("browser: create page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.Navigate(pageURL); err != nil {
		return "", fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("browser: wait load %s: %w", pageURL, err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: read document: %w", err)
	}
	return html, nil
}

// connection returns the shared connection, dialing it if needed.
func (b *Browser) connection() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrowserClosed
	}
	if b.conn != nil {
		return b.conn, nil
	}

	wsURL, err := launcher.ResolveURL(b.controlURL)
	if err != nil {
		return nil, fmt.Errorf("browser: resolve %s: %w", b.controlURL, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	conn := rod.New().ControlURL(wsURL).Context(connCtx)
	if err := conn.Connect(); err != nil {
		cancel()
		return nil, fmt.Errorf("browser: connect %s: %w", b.controlURL, err)
	}

	b.logger.Info("browser: connected", "url", b.controlURL, "stealth", b.stealth)
	b.conn = conn
	b.cancel = cancel
	return conn, nil
}

// reset drops conn if it is still the shared connection.
func (b *Browser) reset(conn *rod.Browser) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn != conn {
		return
	}
	b.cancel()
	b.conn = nil
	b.cancel = nil
}

// Close drops the connection without closing the remote browser.
// Safe to call multiple times and on a nil Browser.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.cancel != nil {
		b.cancel()
	}
	b.conn = nil
	b.cancel = nil
}
