package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/jonesrussell/domain-profiler/internal/analysis"
	"github.com/jonesrussell/domain-profiler/internal/config"
	"github.com/jonesrussell/domain-profiler/internal/domain"
	"github.com/jonesrussell/domain-profiler/internal/logger"
)

const (
	systemPrompt   = "You are an expert web content analyst. Return only valid JSON as requested."
	llmTemperature = 0.1
	promptTokens   = 500
)

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	objectJSONRe = regexp.MustCompile(`(?s)\{.*\}`)
)

// Allowed values per label. Anything else the model invents is stored as unknown.
var (
	allowedContentTypes = toAllowed("blog", "forum", "docs", "ecommerce", "news", "portfolio",
		"corporate", "personal", "marketplace", "landing", "other")
	allowedGoals       = toAllowed("sell", "teach", "inform", "share", "entertain", "rant", "advertise")
	allowedAuthors     = toAllowed("individual", "company", "organization", "government", "unknown")
	allowedAudiences   = toAllowed("general", "beginner", "expert", "professional", "consumer", "developer")
	allowedVibes       = toAllowed("professional", "casual", "academic", "commercial", "personal", "technical", "creative")
	allowedFormalities = toAllowed("formal", "neutral", "informal")
)

func toAllowed(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func pick(value string, allowed map[string]struct{}) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if _, ok := allowed[value]; ok {
		return value
	}
	return domain.Unknown
}

// llmResponse is the JSON object the prompt asks for.
type llmResponse struct {
	ContentType         string   `json:"semantic_content_type_text"`
	PrimaryTopic        string   `json:"semantic_primary_topic_text"`
	Keywords            []string `json:"semantic_keywords_text_array"`
	Language            string   `json:"semantic_language_primary_text"`
	CommunicationGoal   string   `json:"semantic_communication_goal_text"`
	AuthorType          string   `json:"semantic_author_type_text"`
	AudienceType        string   `json:"semantic_audience_type_text"`
	ContentVibe         string   `json:"semantic_content_vibe_text"`
	Tone                string   `json:"semantic_tone_text"`
	Formality           string   `json:"semantic_formality_text"`
	Vibe                string   `json:"semantic_vibe_text"`
	SiteType            string   `json:"semantic_site_type_text"`
	IsCommercial        bool     `json:"semantic_is_commercial_bool"`
	IsSpammy            bool     `json:"semantic_is_spammy_bool"`
	IsPoliticallyLoaded bool     `json:"semantic_is_politically_loaded_bool"`
	QualityScore        *float64 `json:"semantic_quality_score_float"`
	Summary             string   `json:"natural_language_summary_text"`
}

// LLMClassifier labels documents with an Anthropic model.
type LLMClassifier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	maxInput  int
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewLLMClassifier creates a classifier from cfg. Extra request options are
// appended after the API key, so tests can point the client elsewhere.
func NewLLMClassifier(cfg config.ClassifierConfig, log logger.Logger, opts ...option.RequestOption) *LLMClassifier {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.APIKey)}, opts...)

	rpm := max(cfg.RequestsPerMinute, 1)
	return &LLMClassifier{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(cfg.Model),
		maxTokens: cfg.MaxTokens,
		maxInput:  cfg.MaxInputChars,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
		log:       log,
	}
}

// Classify sends the document to the model and parses its JSON answer.
func (c *LLMClassifier) Classify(ctx context.Context, doc *analysis.Document) (domain.Semantics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.Semantics{}, wrapClassification(fmt.Errorf("rate limiter: %w", err))
	}

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(llmTemperature),
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(c.prompt(doc))),
		},
	})
	if err != nil {
		return domain.Semantics{}, wrapClassification(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	resp, err := parseLLMResponse(text.String())
	if err != nil {
		c.log.Warn("Model returned unparseable output",
			logger.String("domain", doc.Domain),
			logger.Int("output_chars", text.Len()),
		)
		return domain.Semantics{}, wrapClassification(err)
	}

	return resp.toSemantics(doc), nil
}

func (c *LLMClassifier) prompt(doc *analysis.Document) string {
	content := strings.Join(doc.Tokens, " ")
	if content == "" {
		content = doc.Text
	}
	if runes := []rune(content); c.maxInput > 0 && len(runes) > c.maxInput {
		content = string(runes[:c.maxInput])
	}

	return fmt.Sprintf(`Analyze this website content and provide semantic classification in valid JSON format.

WEBSITE DATA:
Title: %s
URL: %s
Description: %s
Content: %s
Has Comments: %t

Return a JSON object with exactly these fields:

{
  "semantic_content_type_text": "blog|forum|docs|ecommerce|news|portfolio|corporate|personal|marketplace|landing|other",
  "semantic_primary_topic_text": "main topic in 1-2 words (e.g. 'technology', 'art', 'fitness')",
  "semantic_keywords_text_array": ["5-10 most relevant keywords or phrases"],
  "semantic_language_primary_text": "ISO 639-1 language code (e.g. 'en', 'es', 'fr')",
  "semantic_communication_goal_text": "sell|teach|inform|share|entertain|rant|advertise",
  "semantic_author_type_text": "individual|company|organization|government|unknown",
  "semantic_audience_type_text": "general|beginner|expert|professional|consumer|developer",
  "semantic_content_vibe_text": "professional|casual|academic|commercial|personal|technical|creative",
  "semantic_tone_text": "tone in one word (e.g. 'friendly', 'neutral', 'urgent')",
  "semantic_formality_text": "formal|neutral|informal",
  "semantic_vibe_text": "overall impression in 1-3 words",
  "semantic_site_type_text": "kind of site in 1-2 words",
  "semantic_is_commercial_bool": true,
  "semantic_is_spammy_bool": false,
  "semantic_is_politically_loaded_bool": false,
  "semantic_quality_score_float": 0.0,
  "natural_language_summary_text": "a %d-word summary of what the site is about, its purpose, audience and key features"
}

Rules:
- Use the exact field names above and return only JSON.
- Quality score: 0.8+ high quality, 0.5-0.8 decent, below 0.5 poor.
- Consider the URL and domain name in the analysis.`,
		doc.Title, doc.URL, doc.Description, content, doc.HasComments, promptTokens/2)
}

// parseLLMResponse accepts bare JSON, a fenced JSON block or a JSON object
// embedded in prose.
func parseLLMResponse(text string) (*llmResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("empty model response")
	}

	candidates := []string{text}
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := objectJSONRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}

	var lastErr error
	for _, candidate := range candidates {
		var resp llmResponse
		if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
			lastErr = err
			continue
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("model response is not valid JSON: %w", lastErr)
}

func (r *llmResponse) toSemantics(doc *analysis.Document) domain.Semantics {
	sem := domain.Semantics{
		ContentType:         pick(r.ContentType, allowedContentTypes),
		PrimaryTopic:        strings.ToLower(strings.TrimSpace(r.PrimaryTopic)),
		Keywords:            r.Keywords,
		Language:            NormalizeLanguage(r.Language),
		CommunicationGoal:   pick(r.CommunicationGoal, allowedGoals),
		AuthorType:          pick(r.AuthorType, allowedAuthors),
		AudienceType:        pick(r.AudienceType, allowedAudiences),
		ContentVibe:         pick(r.ContentVibe, allowedVibes),
		Tone:                strings.ToLower(strings.TrimSpace(r.Tone)),
		Formality:           pick(r.Formality, allowedFormalities),
		Vibe:                strings.ToLower(strings.TrimSpace(r.Vibe)),
		SiteType:            strings.ToLower(strings.TrimSpace(r.SiteType)),
		IsCommercial:        r.IsCommercial,
		IsSpammy:            r.IsSpammy,
		IsPoliticallyLoaded: r.IsPoliticallyLoaded,
		HasComments:         doc.HasComments,
		QualityScore:        r.QualityScore,
		Summary:             strings.TrimSpace(r.Summary),
	}
	if sem.Language == domain.Unknown && doc.Lang != "" {
		sem.Language = NormalizeLanguage(doc.Lang)
	}
	sem.Normalize()
	return sem
}
