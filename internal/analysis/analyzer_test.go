package analysis_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

var longParagraph = strings.Repeat("We bake sourdough bread and pastries every morning in our family bakery. ", 6)

func htmlPage(title, body string) string {
	return "<html lang=\"en\"><head><title>" + title + "</title></head><body>" +
		"<nav>Home Login Subscribe</nav>" + body + "<footer>Privacy policy</footer></body></html>"
}

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		Timeout:       5 * time.Second,
		UserAgent:     "test-agent",
		MaxBodyBytes:  1 << 20,
		AboutPaths:    []string{"/about", "/about-us", "/about.html"},
		MinBodyChars:  50,
		MinAboutChars: 100,
		MaxTextChars:  5000,
		Scheme:        "http",
	}
}

func newAnalyzer(t *testing.T, mux http.Handler, browser analysis.Renderer) (*analysis.Analyzer, string) {
	t.Helper()
	return newAnalyzerWithConfig(t, mux, browser, testFetchConfig())
}

func newAnalyzerWithConfig(t *testing.T, mux http.Handler, browser analysis.Renderer, cfg config.FetchConfig) (*analysis.Analyzer, string) {
	t.Helper()

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	a := analysis.NewAnalyzer(analysis.NewHTTPRenderer(cfg), browser, cfg, logger.NewNop())
	return a, strings.TrimPrefix(srv.URL, "http://")
}

func TestAnalyzer_UsesAboutPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/about-us", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(htmlPage("About", "<main><p>"+longParagraph+"</p></main>")))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.NotFound(w, nil)
	})

	a, host := newAnalyzer(t, mux, nil)

	doc, err := a.Analyze(context.Background(), host)
	require.NoError(t, err)

	assert.True(t, doc.HasAboutPage)
	assert.Equal(t, host, doc.Domain)
	assert.Contains(t, doc.URL, "/about-us")
	assert.Equal(t, "en", doc.Lang)
	assert.Contains(t, doc.Text, "sourdough")
	assert.NotContains(t, doc.Text, "Subscribe")
}

func TestAnalyzer_AboutRedirectToHomeIsIgnored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(htmlPage("Bakery", "<article>"+longParagraph+"</article>")))
	})

	a, host := newAnalyzer(t, mux, nil)

	doc, err := a.Analyze(context.Background(), host)
	require.NoError(t, err)
	assert.False(t, doc.HasAboutPage)
	assert.Equal(t, "Bakery", doc.Title)
}

func TestAnalyzer_BodyTooShort(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(htmlPage("Tiny", "<p>Hello</p>")))
	})

	a, host := newAnalyzer(t, mux, nil)

	_, err := a.Analyze(context.Background(), host)
	require.ErrorIs(t, err, analysis.ErrBodyTooShort)
	assert.Equal(t, "body is too short", analysis.Diagnostic(err))
}

func TestAnalyzer_Blocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	a, host := newAnalyzer(t, mux, nil)

	_, err := a.Analyze(context.Background(), host)
	var fe *analysis.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, analysis.KindBlocked, fe.Kind)
	assert.Equal(t, "blocked", analysis.Diagnostic(err))
}

func TestAnalyzer_Timeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	a, host := newAnalyzer(t, mux, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := a.Analyze(ctx, host)
	assert.Less(t, time.Since(start), 2*time.Second)

	var fe *analysis.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, analysis.KindTimeout, fe.Kind)
	assert.Equal(t, "timeout", analysis.Diagnostic(err))
}

func TestAnalyzer_NavigationFailed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	cfg := testFetchConfig()
	a := analysis.NewAnalyzer(analysis.NewHTTPRenderer(cfg), nil, cfg, logger.NewNop())

	_, err := a.Analyze(context.Background(), host)
	var fe *analysis.FetchError
	require.True(t, errors.As(err, &fe), "got %v", err)
	assert.Equal(t, analysis.KindNavigationFailed, fe.Kind)
}

type stubRenderer struct {
	html  string
	calls int
}

func (s *stubRenderer) Render(_ context.Context, url string) (*analysis.Page, error) {
	s.calls++
	return &analysis.Page{RequestedURL: url, FinalURL: url, StatusCode: http.StatusOK, HTML: s.html, Rendered: true}, nil
}

func TestAnalyzer_BrowserFallbackForScriptShell(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<html><body><div id="root"></div><script src="/app.js"></script></body></html>`))
	})

	browser := &stubRenderer{html: htmlPage("Rendered", "<main>"+longParagraph+"</main>")}
	a, host := newAnalyzer(t, mux, browser)

	doc, err := a.Analyze(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, doc.Rendered)
	assert.Equal(t, "Rendered", doc.Title)
	assert.Equal(t, 1, browser.calls)
}

// hangingAboutMux serves a valid home page while /about never answers.
func hangingAboutMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/about", func(_ http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(htmlPage("Bakery", "<article>"+longParagraph+"</article>")))
	})
	return mux
}

func TestAnalyzer_SlowAboutPageTimesOutAlone(t *testing.T) {
	cfg := testFetchConfig()
	cfg.AboutTimeout = 200 * time.Millisecond
	a, host := newAnalyzerWithConfig(t, hangingAboutMux(), nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	doc, err := a.Analyze(ctx, host)
	require.NoError(t, err)
	assert.False(t, doc.HasAboutPage)
	assert.Equal(t, "Bakery", doc.Title)
}

func TestAnalyzer_ProbingLeavesTimeForHomePage(t *testing.T) {
	cfg := testFetchConfig()
	cfg.AboutTimeout = 10 * time.Second
	cfg.HomeTimeout = 15 * time.Second
	a, host := newAnalyzerWithConfig(t, hangingAboutMux(), nil, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	doc, err := a.Analyze(ctx, host)
	require.NoError(t, err)
	assert.Equal(t, "Bakery", doc.Title)
	assert.Less(t, time.Since(start), 2*time.Second)
}
