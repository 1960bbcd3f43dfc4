package analysis

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const (
	noiseSelector   = "script, style, noscript, template, svg, iframe, nav, header, footer, form"
	contentSelector = `main, [role="main"], .content, .main-content, article`
	blockSelector   = "p, div, li, br, h1, h2, h3, h4, h5, h6, td, th, section, article, main, blockquote, dd, dt"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	// symbolRe drops everything except letters, digits, whitespace and basic punctuation.
	symbolRe = regexp.MustCompile(`[^\p{L}\p{N}_\s\-.,!?]`)
)

// ExtractOptions bounds the text kept from a page.
type ExtractOptions struct {
	MinChars  int
	MaxChars  int
	MaxTokens int
}

// Extract parses page HTML into a Document. Main content is preferred, then a
// readability pass, then the whole body; ErrBodyTooShort is returned when none
// has MinChars of text.
func Extract(page *Page, opts ExtractOptions) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse html from %s: %w", page.FinalURL, err)
	}

	out := &Document{
		URL:         page.FinalURL,
		Title:       cleanText(doc.Find("title").First().Text()),
		Description: cleanText(doc.Find(`meta[name="description"]`).AttrOr("content", "")),
		Lang:        strings.TrimSpace(doc.Find("html").AttrOr("lang", "")),
		HasComments: DetectComments(page.HTML),
		Rendered:    page.Rendered,
	}

	doc.Find(noiseSelector).Remove()
	doc.Find(blockSelector).AppendNodes(&html.Node{Type: html.TextNode, Data: " "})

	text := cleanText(doc.Find(contentSelector).First().Text())
	if utf8.RuneCountInString(text) < opts.MinChars {
		text = readableText(page)
	}
	if utf8.RuneCountInString(text) < opts.MinChars {
		text = cleanText(doc.Find("body").Text())
	}
	if utf8.RuneCountInString(text) < opts.MinChars {
		return nil, ErrBodyTooShort
	}

	out.Text = truncateRunes(text, opts.MaxChars)
	out.Tokens = ExtractTokens(out.Text, opts.MaxTokens)
	return out, nil
}

// readableText returns the article text readability finds in the page, or ""
// when it finds nothing.
func readableText(page *Page) string {
	pageURL, err := url.Parse(page.FinalURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
	if err != nil {
		return ""
	}
	return cleanText(article.TextContent)
}

func cleanText(s string) string {
	s = symbolRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes]))
}
