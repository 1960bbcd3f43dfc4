package classify

import (
	"context"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/domain"
)

// Rule groups. A document gets the best-scoring rule of each labelling group;
// signal groups only count hits.
const (
	groupContentType = "content_type"
	groupTopic       = "topic"
	groupCommercial  = "commercial"
	groupSpam        = "spam"
	groupPolitical   = "political"
)

const (
	heuristicKeywords   = 10
	heuristicSummaryLen = 400
	signalThreshold     = 2
	spamQualityPenalty  = 0.5
)

type rule struct {
	group    string
	label    string
	keywords []string
}

var heuristicRules = []rule{
	{groupContentType, "ecommerce", []string{"add to cart", "checkout", "free shipping", "buy now", "shopping cart", "in stock", "out of stock", "returns"}},
	{groupContentType, "news", []string{"breaking news", "reporter", "editorial", "headlines", "newsroom", "press release", "correspondent", "latest news"}},
	{groupContentType, "docs", []string{"documentation", "api reference", "getting started", "installation", "quickstart", "configuration", "reference guide", "changelog"}},
	{groupContentType, "forum", []string{"forum", "thread", "replies", "members online", "new topic", "posts", "moderator"}},
	{groupContentType, "blog", []string{"blog", "posted by", "posted on", "archives", "tags", "recent posts", "leave a comment"}},
	{groupContentType, "portfolio", []string{"portfolio", "my work", "selected work", "case study", "case studies", "hire me", "commissions"}},
	{groupContentType, "marketplace", []string{"marketplace", "sellers", "vendors", "listings", "sell on"}},
	{groupContentType, "landing", []string{"request a demo", "free trial", "get started today", "book a demo", "pricing plans"}},
	{groupContentType, "corporate", []string{"our company", "our team", "careers", "investors", "headquarters", "our clients", "our services", "leadership"}},
	{groupContentType, "personal", []string{"about me", "my name is", "i am a", "my journey", "my family", "personal website"}},

	{groupTopic, "technology", []string{"software", "developer", "cloud", "api", "programming", "data", "ai", "machine learning", "startup", "saas"}},
	{groupTopic, "food", []string{"recipe", "recipes", "cooking", "restaurant", "bakery", "bread", "menu", "chef", "kitchen", "baking"}},
	{groupTopic, "travel", []string{"travel", "hotel", "flights", "destination", "tour", "vacation", "itinerary", "booking"}},
	{groupTopic, "health", []string{"health", "medical", "clinic", "patients", "doctor", "wellness", "therapy", "fitness", "nutrition"}},
	{groupTopic, "finance", []string{"finance", "investment", "bank", "loan", "mortgage", "insurance", "trading", "crypto", "tax"}},
	{groupTopic, "sports", []string{"football", "soccer", "basketball", "league", "match", "team", "tournament", "score"}},
	{groupTopic, "education", []string{"school", "university", "course", "students", "learning", "teacher", "curriculum", "campus"}},
	{groupTopic, "art", []string{"art", "gallery", "artist", "painting", "illustration", "exhibition", "design", "photography"}},
	{groupTopic, "fashion", []string{"fashion", "clothing", "apparel", "dress", "shoes", "jewelry", "style"}},
	{groupTopic, "gaming", []string{"game", "games", "gaming", "player", "console", "esports"}},
	{groupTopic, "music", []string{"music", "album", "band", "concert", "songs", "tour dates", "record label"}},
	{groupTopic, "real estate", []string{"real estate", "property", "apartment", "rent", "realtor", "homes for sale"}},
	{groupTopic, "politics", []string{"election", "government", "policy", "senate", "parliament", "campaign", "candidate"}},

	{groupCommercial, "commercial", []string{"buy", "price", "pricing", "order", "shop", "sale", "discount", "cart", "subscribe", "quote"}},
	{groupSpam, "spam", []string{"casino", "viagra", "payday loan", "betting", "escort", "replica", "giveaway", "get rich", "crypto signals", "weight loss pills"}},
	{groupPolitical, "political", []string{"election", "democrat", "republican", "liberal", "conservative", "vote", "protest", "immigration", "abortion", "left-wing", "right-wing"}},
}

// communicationGoals, authorTypes, audiences and vibes derive secondary
// labels from the content type.
var (
	communicationGoals = map[string]string{
		"ecommerce": "sell", "marketplace": "sell", "landing": "advertise", "docs": "teach",
		"news": "inform", "corporate": "inform", "blog": "share", "personal": "share",
		"portfolio": "share", "forum": "share",
	}
	authorTypes = map[string]string{
		"ecommerce": "company", "marketplace": "company", "landing": "company",
		"corporate": "company", "news": "organization", "blog": "individual",
		"personal": "individual", "portfolio": "individual",
	}
	audiences = map[string]string{
		"docs": "developer", "ecommerce": "consumer", "marketplace": "consumer",
		"corporate": "professional", "news": "general", "blog": "general",
	}
	contentVibes = map[string]string{
		"docs": "technical", "corporate": "professional", "news": "professional",
		"ecommerce": "commercial", "marketplace": "commercial", "landing": "commercial",
		"blog": "personal", "personal": "personal", "portfolio": "creative", "forum": "casual",
	}
	formalities = map[string]string{
		"docs": "formal", "corporate": "formal", "news": "formal",
		"blog": "informal", "personal": "informal", "forum": "informal",
	}
)

// HeuristicClassifier labels documents with keyword rules. It is used when no
// model is configured and never calls out of process.
type HeuristicClassifier struct {
	matcher  *ahocorasick.Matcher
	patterns []string
	owners   [][]int
}

// NewHeuristicClassifier builds the keyword automaton.
func NewHeuristicClassifier() *HeuristicClassifier {
	h := &HeuristicClassifier{}
	index := make(map[string]int)
	for ruleIdx, r := range heuristicRules {
		for _, kw := range r.keywords {
			pattern := " " + normalizeForMatch(kw) + " "
			i, ok := index[pattern]
			if !ok {
				i = len(h.patterns)
				index[pattern] = i
				h.patterns = append(h.patterns, pattern)
				h.owners = append(h.owners, nil)
			}
			h.owners[i] = append(h.owners[i], ruleIdx)
		}
	}
	h.matcher = ahocorasick.NewStringMatcher(h.patterns)
	return h
}

// Classify never fails for a non-empty document.
func (h *HeuristicClassifier) Classify(ctx context.Context, doc *analysis.Document) (domain.Semantics, error) {
	if err := ctx.Err(); err != nil {
		return domain.Semantics{}, wrapClassification(err)
	}

	hits := h.score(doc.Title + " " + doc.Description + " " + doc.Text)

	contentType := bestLabel(hits, groupContentType)
	spamHits := groupHits(hits, groupSpam)
	sem := domain.Semantics{
		ContentType:         contentType,
		PrimaryTopic:        bestLabel(hits, groupTopic),
		Keywords:            firstN(doc.Tokens, heuristicKeywords),
		Language:            NormalizeLanguage(doc.Lang),
		CommunicationGoal:   communicationGoals[contentType],
		AuthorType:          authorType(doc.Domain, contentType),
		AudienceType:        audiences[contentType],
		ContentVibe:         contentVibes[contentType],
		Formality:           formalities[contentType],
		SiteType:            contentType,
		IsCommercial:        groupHits(hits, groupCommercial) >= signalThreshold || communicationGoals[contentType] == "sell",
		IsSpammy:            spamHits >= signalThreshold,
		IsPoliticallyLoaded: groupHits(hits, groupPolitical) >= signalThreshold,
		HasComments:         doc.HasComments,
		Summary:             summarize(doc),
	}

	quality := qualityScore(doc, sem.IsSpammy)
	sem.QualityScore = &quality
	sem.Normalize()
	return sem, nil
}

// score returns unique keyword hits per rule index.
func (h *HeuristicClassifier) score(text string) map[int]int {
	hits := make(map[int]int)
	for _, idx := range h.matcher.Match([]byte(" " + normalizeForMatch(text) + " ")) {
		for _, ruleIdx := range h.owners[idx] {
			hits[ruleIdx]++
		}
	}
	return hits
}

func bestLabel(hits map[int]int, group string) string {
	best, bestHits := "", 0
	for i, r := range heuristicRules {
		if r.group == group && hits[i] > bestHits {
			best, bestHits = r.label, hits[i]
		}
	}
	return best
}

func groupHits(hits map[int]int, group string) int {
	total := 0
	for i, r := range heuristicRules {
		if r.group == group {
			total += hits[i]
		}
	}
	return total
}

func authorType(domainName, contentType string) string {
	switch {
	case strings.HasSuffix(domainName, ".gov") || strings.Contains(domainName, ".gov."):
		return "government"
	case strings.HasSuffix(domainName, ".edu") || strings.HasSuffix(domainName, ".org"):
		return "organization"
	default:
		return authorTypes[contentType]
	}
}

func summarize(doc *analysis.Document) string {
	body := doc.Description
	if body == "" {
		body = doc.Text
	}
	if utf8.RuneCountInString(body) > heuristicSummaryLen {
		body = string([]rune(body)[:heuristicSummaryLen]) + "..."
	}
	if doc.Title == "" {
		return body
	}
	return doc.Title + ": " + body
}

// qualityScore rewards substantial, varied text.
func qualityScore(doc *analysis.Document, spammy bool) float64 {
	length := math.Min(1, float64(utf8.RuneCountInString(doc.Text))/3000)
	variety := math.Min(1, float64(len(doc.Tokens))/100)
	score := 0.3 + 0.4*length + 0.3*variety
	if spammy {
		score -= spamQualityPenalty
	}
	return math.Round(math.Max(0, math.Min(1, score))*100) / 100
}

func normalizeForMatch(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	}), " ")
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return append([]string(nil), s...)
	}
	return append([]string(nil), s[:n]...)
}
