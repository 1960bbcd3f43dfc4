package analysis

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

// Analyzer picks the page that best describes a domain and extracts it.
// The about page wins when one exists; otherwise the home page is used.
type Analyzer struct {
	static  Renderer
	browser Renderer
	cfg     config.FetchConfig
	extract ExtractOptions
	log     logger.Logger
}

// NewAnalyzer creates an analyzer. browser may be nil to disable the
// headless fallback.
func NewAnalyzer(static, browser Renderer, cfg config.FetchConfig, log logger.Logger) *Analyzer {
	return &Analyzer{
		static:  static,
		browser: browser,
		cfg:     cfg,
		extract: ExtractOptions{
			MinChars:  cfg.MinBodyChars,
			MaxChars:  cfg.MaxTextChars,
			MaxTokens: DefaultMaxTokens,
		},
		log: log,
	}
}

// Analyze retrieves and extracts the site of domainName. ctx bounds the
// whole retrieval. About probing stops early enough to leave the home page
// part of that budget.
func (a *Analyzer) Analyze(ctx context.Context, domainName string) (*Document, error) {
	base := a.cfg.Scheme + "://" + domainName

	probeCtx, cancelProbe := a.probeContext(ctx)
	doc := a.probeAbout(probeCtx, base)
	cancelProbe()
	if doc != nil {
		doc.Domain = domainName
		doc.HasAboutPage = true
		return doc, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, transportError(base, err)
	}

	page, err := a.render(ctx, base)
	if err != nil {
		return nil, err
	}
	if !page.OK() {
		return nil, statusError(base, page.StatusCode)
	}

	doc, err = Extract(page, a.extract)
	if err != nil {
		return nil, err
	}
	doc.Domain = domainName
	return doc, nil
}

// probeContext derives the context about probing runs on. When ctx has a
// deadline, HomeTimeout (capped at half the time left) is held back for the
// home page.
func (a *Analyzer) probeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || a.cfg.HomeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	reserve := min(a.cfg.HomeTimeout, time.Until(deadline)/2)
	return context.WithDeadline(ctx, deadline.Add(-reserve))
}

// probeAbout tries the configured about paths in order. A path counts only
// when it answers below 400, did not redirect away from an about URL and
// carries more than MinAboutChars of text.
func (a *Analyzer) probeAbout(ctx context.Context, base string) *Document {
	for _, path := range a.cfg.AboutPaths {
		if ctx.Err() != nil {
			return nil
		}

		url := base + path
		page, err := a.probe(ctx, url)
		if err != nil {
			a.log.Debug("About page unavailable", logger.String("url", url), logger.Error(err))
			continue
		}
		if !page.OK() || !strings.Contains(strings.ToLower(page.FinalURL), "about") {
			continue
		}

		doc, err := Extract(page, a.extract)
		if err != nil || utf8.RuneCountInString(doc.Text) <= a.cfg.MinAboutChars {
			continue
		}

		a.log.Info("Found about page", logger.String("url", page.FinalURL))
		return doc
	}
	return nil
}

// probe renders one about URL under AboutTimeout.
func (a *Analyzer) probe(ctx context.Context, url string) (*Page, error) {
	if a.cfg.AboutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.AboutTimeout)
		defer cancel()
	}
	return a.render(ctx, url)
}

// render fetches statically and escalates to the browser when the static
// page is a JavaScript shell or the site refused a plain client.
func (a *Analyzer) render(ctx context.Context, url string) (*Page, error) {
	page, err := a.static.Render(ctx, url)
	if err != nil || a.browser == nil || ctx.Err() != nil {
		return page, err
	}

	switch {
	case page.OK() && IsSufficient(page.HTML):
		return page, nil
	case !page.OK() && statusError(url, page.StatusCode).Kind != KindBlocked:
		return page, nil
	}

	rendered, browserErr := a.browser.Render(ctx, url)
	if browserErr != nil {
		a.log.Debug("Browser fallback failed", logger.String("url", url), logger.Error(browserErr))
		return page, nil
	}
	return rendered, nil
}
