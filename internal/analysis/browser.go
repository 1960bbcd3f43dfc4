package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// navigationStatusJS reads the HTTP status of the main document. Chrome
// reports 0 when the status is unavailable.
const navigationStatusJS = `() => {
	const nav = performance.getEntriesByType('navigation')[0];
	return nav && nav.responseStatus ? nav.responseStatus : 0;
}`

// defaultRenderedStatus is assumed when the browser cannot report one.
const defaultRenderedStatus = 200

// BrowserRenderer renders pages in headless Chrome for sites whose content
// only exists after scripts run. Chrome is launched lazily on first use and
// shared by all workers; each render uses its own tab.
type BrowserRenderer struct {
	cfg config.BrowserConfig
	log logger.Logger

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewBrowserRenderer creates a renderer. Chrome is not started until Render.
func NewBrowserRenderer(cfg config.BrowserConfig, log logger.Logger) *BrowserRenderer {
	return &BrowserRenderer{cfg: cfg, log: log}
}

func (b *BrowserRenderer) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errors.New("browser renderer is closed")
	}
	if b.browser != nil {
		return b.browser, nil
	}

	l := launcher.New().Headless(!b.cfg.ShowWindow)
	if b.cfg.BinPath != "" {
		l = l.Bin(b.cfg.BinPath)
	}
	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	if err := browser.IgnoreCertErrors(true); err != nil {
		b.log.Warn("Browser could not ignore certificate errors", logger.Error(err))
	}

	b.log.Info("Headless browser started", logger.String("control_url", wsURL))
	b.browser = browser
	b.lnch = l
	return browser, nil
}

// Render opens url in a new tab and returns the DOM after load.
func (b *BrowserRenderer) Render(ctx context.Context, url string) (*Page, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, &FetchError{Kind: KindNavigationFailed, URL: url, Err: err}
	}

	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	p, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, transportError(url, fmt.Errorf("open tab: %w", err))
	}
	defer func() {
		// The tab is closed even when ctx already expired.
		if closeErr := p.Context(context.WithoutCancel(ctx)).Close(); closeErr != nil {
			b.log.Debug("Failed to close browser tab", logger.Error(closeErr))
		}
	}()

	if err := p.Navigate(url); err != nil {
		return nil, transportError(url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, transportError(url, err)
	}

	htmlText, err := p.HTML()
	if err != nil {
		return nil, transportError(url, fmt.Errorf("read dom: %w", err))
	}

	finalURL := url
	if info, infoErr := p.Info(); infoErr == nil && info.URL != "" {
		finalURL = info.URL
	}

	status := defaultRenderedStatus
	if res, evalErr := p.Eval(navigationStatusJS); evalErr == nil && res.Value.Int() > 0 {
		status = res.Value.Int()
	}

	return &Page{
		RequestedURL: url,
		FinalURL:     finalURL,
		StatusCode:   status,
		HTML:         htmlText,
		Rendered:     true,
	}, nil
}

// Close shuts Chrome down. Render fails afterwards.
func (b *BrowserRenderer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.browser == nil {
		return nil
	}

	err := b.browser.Close()
	b.lnch.Kill()
	b.browser = nil
	return err
}
