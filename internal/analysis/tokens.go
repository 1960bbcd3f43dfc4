package analysis

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultMaxTokens caps the keyword tokens kept per document.
const DefaultMaxTokens = 500

const (
	minTokenLength  = 3
	maxPhraseTokens = 30
)

// junkWords are site scaffolding and marketing filler that say nothing about
// what a site is about.
var junkWords = toSet(
	"account", "login", "signup", "subscribe", "sign", "register", "create", "click",
	"platform", "solution", "experience", "support", "discount", "offers", "order",
	"shop", "app", "center", "categories", "policy", "privacy", "help", "b2b", "search",
	"value", "promotion", "delivery", "products", "production", "contact", "username",
	"password", "terms", "conditions", "newsletter", "settings", "mobile", "website",
	"visit", "start", "email", "cookie", "cookies", "menu", "home", "read", "more",
)

var stopWords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can", "had", "her",
	"was", "one", "our", "out", "has", "him", "his", "how", "its", "may", "new", "now",
	"old", "see", "two", "who", "did", "get", "let", "say", "she", "too", "use", "with",
	"that", "this", "from", "they", "have", "will", "your", "what", "when", "where",
	"which", "there", "their", "them", "then", "than", "been", "were", "into", "more",
	"about", "also", "just", "like", "only", "over", "such", "some", "very", "each",
	"here", "most", "other", "these", "those", "would", "could", "should", "because",
	"while", "after", "before", "being", "does", "doing", "both", "same", "own", "off",
	"why", "yes", "yet", "via", "per", "upon", "within", "without", "every", "much",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func isContentWord(w string) bool {
	if len([]rune(w)) < minTokenLength {
		return false
	}
	if _, junk := junkWords[w]; junk {
		return false
	}
	if _, stop := stopWords[w]; stop {
		return false
	}
	for _, r := range w {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// ExtractTokens returns the most telling words and two-word phrases of text,
// most frequent first, deduplicated and capped at maxTokens.
func ExtractTokens(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})

	type ranked struct {
		token string
		count int
		first int
	}
	counts := make(map[string]*ranked)
	bump := func(token string, pos int) {
		if r, ok := counts[token]; ok {
			r.count++
			return
		}
		counts[token] = &ranked{token: token, count: 1, first: pos}
	}

	phrases := make(map[string]*ranked)
	for i, w := range words {
		w = strings.Trim(w, "-")
		if !isContentWord(w) {
			continue
		}
		bump(w, i)

		if i+1 < len(words) {
			next := strings.Trim(words[i+1], "-")
			if isContentWord(next) {
				phrase := w + " " + next
				if r, ok := phrases[phrase]; ok {
					r.count++
				} else {
					phrases[phrase] = &ranked{token: phrase, count: 1, first: i}
				}
			}
		}
	}

	byRank := func(list []*ranked) {
		sort.Slice(list, func(i, j int) bool {
			if list[i].count != list[j].count {
				return list[i].count > list[j].count
			}
			return list[i].first < list[j].first
		})
	}

	// Phrases only count when they repeat; single occurrences are noise.
	repeated := make([]*ranked, 0, len(phrases))
	for _, r := range phrases {
		if r.count > 1 {
			repeated = append(repeated, r)
		}
	}
	byRank(repeated)
	if len(repeated) > maxPhraseTokens {
		repeated = repeated[:maxPhraseTokens]
	}

	singles := make([]*ranked, 0, len(counts))
	for _, r := range counts {
		singles = append(singles, r)
	}
	byRank(singles)

	tokens := make([]string, 0, min(maxTokens, len(repeated)+len(singles)))
	for _, list := range [][]*ranked{repeated, singles} {
		for _, r := range list {
			if len(tokens) == maxTokens {
				return tokens
			}
			tokens = append(tokens, r.token)
		}
	}
	return tokens
}
