package analysis

import "strings"

// Thresholds for deciding that static HTML is a JavaScript shell.
const (
	minHTMLBytes    = 256
	minVisibleChars = 200
	minTextRatio    = 0.10
)

var shellIndicators = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	"<noscript>you need to enable javascript",
	"<noscript>enable javascript",
}

// IsSufficient reports whether static HTML carries enough visible text to be
// analyzed without running its scripts.
func IsSufficient(html string) bool {
	if len(html) < minHTMLBytes {
		return false
	}

	lower := strings.ToLower(html)
	text, markup := textMarkupRatio(lower)
	if text+markup == 0 || text < minVisibleChars {
		return false
	}
	if float64(text)/float64(text+markup) < minTextRatio {
		return false
	}

	for _, ind := range shellIndicators {
		if strings.Contains(lower, ind) {
			return false
		}
	}
	return true
}

// textMarkupRatio counts visible non-space bytes against markup bytes in
// lower-cased HTML. Script and style bodies count as markup.
func textMarkupRatio(s string) (text, markup int) {
	inTag := false
	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '<':
			for _, raw := range []string{"script", "style"} {
				if strings.HasPrefix(s[i:], "<"+raw) {
					end := strings.Index(s[i:], "</"+raw)
					if end < 0 {
						return text, markup + len(s) - i
					}
					markup += end
					i += end
				}
			}
			inTag = true
			markup++
		case ch == '>':
			inTag = false
			markup++
		case inTag:
			markup++
		case ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r':
			text++
		}
		i++
	}
	return text, markup
}
