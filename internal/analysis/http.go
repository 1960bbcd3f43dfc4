package analysis

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/domain-profiler/internal/config"
)

// maxRedirects matches the net/http default.
const maxRedirects = 10

// HTTPRenderer fetches pages with a plain GET. It covers static sites; pages
// that need JavaScript are handed to a BrowserRenderer.
type HTTPRenderer struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewHTTPRenderer creates a renderer. Deadlines come from the request
// context; the client timeout is only a backstop.
func NewHTTPRenderer(cfg config.FetchConfig) *HTTPRenderer {
	return &HTTPRenderer{
		client: &http.Client{
			Timeout: cfg.Timeout + 5*time.Second,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		userAgent:    cfg.UserAgent,
		maxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Render GETs url and returns the page whatever its status.
func (r *HTTPRenderer) Render(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, &FetchError{Kind: KindNavigationFailed, URL: url, Err: err}
	}
	req.Header.Set("User-Agent", r.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, transportError(url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBodyBytes))
	if err != nil {
		return nil, transportError(url, fmt.Errorf("read body: %w", err))
	}

	return &Page{
		RequestedURL: url,
		FinalURL:     resp.Request.URL.String(),
		StatusCode:   resp.StatusCode,
		HTML:         string(body),
	}, nil
}
