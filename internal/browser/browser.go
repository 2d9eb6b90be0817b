// Package browser owns the shared headless browser session used by the
// rendered strategy and the API endpoint auto-detector. The browser is
// pooled, lazily created, reused across sequential detections and
// crawls, and explicitly closed on shutdown. Page creation is guarded by
// a semaphore; the underlying handle is not safe for unbounded
// concurrent use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	cdpfetch "github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jonesrussell/insight-crawler/internal/config"
	"github.com/jonesrussell/insight-crawler/internal/logger"
)

// maxConcurrentPages bounds simultaneous tabs on the shared browser.
const maxConcurrentPages = 2

// settleDelay is the wait after document ready for late XHR-driven
// rendering to finish.
const settleDelay = 2 * time.Second

// ErrBrowserUnavailable is returned when the browser cannot be started.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// blockedResourceTypes are aborted during navigation for speed; none of
// them affect the DOM text we extract.
var blockedResourceTypes = map[network.ResourceType]bool{
	network.ResourceTypeImage:      true,
	network.ResourceTypeStylesheet: true,
	network.ResourceTypeFont:       true,
	network.ResourceTypeMedia:      true,
}

// Manager is the explicit lifecycle owner of the shared browser.
type Manager struct {
	cfg config.BrowserConfig
	log logger.Logger

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	sem chan struct{}
}

// NewManager creates a Manager. The browser process starts on first use,
// not here.
func NewManager(cfg config.BrowserConfig, log logger.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		log: log,
		sem: make(chan struct{}, maxConcurrentPages),
	}
}

// Close shuts the browser down. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
}

// teardownLocked discards the browser handle. Caller holds mu.
func (m *Manager) teardownLocked() {
	if m.browserCancel != nil {
		m.browserCancel()
		m.browserCancel = nil
		m.browserCtx = nil
	}

	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCancel = nil
		m.allocCtx = nil
	}
}

// Discard drops the pooled browser so the next use recreates it. Called
// after a session crash.
func (m *Manager) Discard() {
	m.log.Warn("discarding browser session")
	m.Close()
}

// ensureBrowser lazily starts the allocator and shared browser context.
func (m *Manager) ensureBrowser() (context.Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browserCtx != nil && m.browserCtx.Err() == nil {
		return m.browserCtx, nil
	}

	m.teardownLocked()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.WindowSize(1920, 1080),
	)

	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}

	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx)

	// Start the process now so a broken Chrome install fails fast.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.teardownLocked()
		return nil, fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
	}

	m.log.Info("browser session started")

	return m.browserCtx, nil
}

// acquirePage creates a tab context bounded by timeout. The returned
// release func closes the tab and frees the page slot.
func (m *Manager) acquirePage(ctx context.Context, timeout time.Duration) (context.Context, func(), error) {
	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("acquire page: %w", ctx.Err())
	}

	browserCtx, err := m.ensureBrowser()
	if err != nil {
		<-m.sem
		return nil, nil, err
	}

	if timeout <= 0 {
		timeout = m.cfg.Timeout
	}

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, timeout)

	release := func() {
		timeoutCancel()
		tabCancel()
		<-m.sem
	}

	return timeoutCtx, release, nil
}

// RenderResult is the outcome of one rendered navigation.
type RenderResult struct {
	// HTML is the serialized DOM after rendering settled.
	HTML string
	// FinalURL is the location after redirects.
	FinalURL string
}

// Render navigates to a URL with non-essential resources blocked, waits
// for the page to settle, and returns the rendered DOM. A crashed
// session is discarded so the next call recreates the browser.
func (m *Manager) Render(ctx context.Context, pageURL string) (*RenderResult, error) {
	tabCtx, release, err := m.acquirePage(ctx, m.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer release()

	enableResourceBlocking(tabCtx)

	var result RenderResult

	runErr := chromedp.Run(tabCtx,
		cdpfetch.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settleDelay),
		chromedp.OuterHTML("html", &result.HTML, chromedp.ByQuery),
		chromedp.Location(&result.FinalURL),
	)
	if runErr != nil {
		if isSessionError(runErr) {
			m.Discard()
		}

		return nil, fmt.Errorf("render %s: %w", pageURL, runErr)
	}

	return &result, nil
}

// largestImageScript finds the largest visible image at least 200px on
// both axes, skipping icons and tracking pixels.
const largestImageScript = `(() => {
	let best = "";
	let bestArea = 0;
	for (const img of document.querySelectorAll("img")) {
		const w = img.naturalWidth || img.width;
		const h = img.naturalHeight || img.height;
		if (w < 200 || h < 200) continue;
		if (w * h > bestArea) { bestArea = w * h; best = img.currentSrc || img.src; }
	}
	return best;
})()`

// LargestImage evaluates the rendered page for the largest qualifying
// image, used as a thumbnail when no selector matches.
func (m *Manager) LargestImage(ctx context.Context, pageURL string) (string, error) {
	tabCtx, release, err := m.acquirePage(ctx, m.cfg.Timeout)
	if err != nil {
		return "", err
	}
	defer release()

	var src string

	runErr := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(largestImageScript, &src),
	)
	if runErr != nil {
		return "", fmt.Errorf("largest image %s: %w", pageURL, runErr)
	}

	return src, nil
}

// enableResourceBlocking aborts image/style/font/media requests on the
// tab.
func enableResourceBlocking(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev any) {
		paused, ok := ev.(*cdpfetch.EventRequestPaused)
		if !ok {
			return
		}

		go func() {
			exec := chromedp.FromContext(tabCtx)
			cdpCtx := cdp.WithExecutor(tabCtx, exec.Target)

			if blockedResourceTypes[paused.ResourceType] {
				_ = cdpfetch.FailRequest(paused.RequestID, network.ErrorReasonBlockedByClient).Do(cdpCtx)
				return
			}

			_ = cdpfetch.ContinueRequest(paused.RequestID).Do(cdpCtx)
		}()
	})
}

// isSessionError reports whether an error indicates the browser process
// itself died rather than a page-level failure.
func isSessionError(err error) bool {
	msg := err.Error()

	return strings.Contains(msg, "chrome failed to start") ||
		strings.Contains(msg, "websocket url timeout") ||
		strings.Contains(msg, "target crashed")
}
