// Package analysis retrieves a domain's site and turns it into a Document
// ready for classification.
package analysis

import "context"

// Page is the raw result of rendering one URL.
type Page struct {
	RequestedURL string
	FinalURL     string
	StatusCode   int
	HTML         string
	// Rendered is true when a headless browser produced the HTML.
	Rendered bool
}

// OK reports whether the site answered without an error status.
func (p *Page) OK() bool {
	return p.StatusCode > 0 && p.StatusCode < 400
}

// Renderer retrieves one URL. Transport failures are returned as *FetchError;
// error statuses are returned as a Page for the caller to judge.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

// Document is the cleaned content of the page chosen for a domain.
type Document struct {
	Domain      string
	URL         string
	Title       string
	Description string
	// Lang is the declared <html lang> value, possibly empty.
	Lang         string
	Text         string
	Tokens       []string
	HasComments  bool
	HasAboutPage bool
	Rendered     bool
}
