package analysis

import (
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// commentIndicators are markers of an on-page discussion system.
var commentIndicators = []string{
	"comment",
	"reply",
	"discuss",
	"disqus",
	"livefyre",
	"facebook comment",
	"commento",
	"utterances",
	"giscus",
}

var commentMatcher = ahocorasick.NewStringMatcher(commentIndicators)

// DetectComments reports whether raw HTML references a comment system.
func DetectComments(html string) bool {
	return commentMatcher.Contains([]byte(strings.ToLower(html)))
}
