package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Unknown is the sentinel stored for every semantic label the analysis did not set.
const Unknown = "unknown"

// Semantics holds the labels produced by classification. Empty strings are
// stored as Unknown.
type Semantics struct {
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
	HasComments         bool     `json:"semantic_has_comments_bool"`
	QualityScore        *float64 `json:"semantic_quality_score_float"`
	Summary             string   `json:"natural_language_summary_text"`
}

// Normalize replaces blank labels with Unknown, trims keywords and clamps the
// quality score into [0, 1].
func (s *Semantics) Normalize() {
	for _, field := range []*string{
		&s.ContentType, &s.PrimaryTopic, &s.Language, &s.CommunicationGoal,
		&s.AuthorType, &s.AudienceType, &s.ContentVibe, &s.Tone, &s.Formality,
		&s.Vibe, &s.SiteType, &s.Summary,
	} {
		*field = strings.TrimSpace(*field)
		if *field == "" {
			*field = Unknown
		}
	}

	keywords := make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	s.Keywords = keywords

	if s.QualityScore != nil {
		q := min(max(*s.QualityScore, 0), 1)
		s.QualityScore = &q
	}
}

// UnknownSemantics returns a label set with every field at its sentinel.
func UnknownSemantics() Semantics {
	s := Semantics{}
	s.Normalize()
	return s
}

// DomainRecord is the terminal, one-per-domain result row.
type DomainRecord struct {
	ID   uuid.UUID `db:"domain_id_uuid"   json:"domain_id"`
	Name string    `db:"domain_name_text" json:"domain_name"`

	ContentType         string         `db:"semantic_content_type_text"          json:"content_type"`
	PrimaryTopic        string         `db:"semantic_primary_topic_text"         json:"primary_topic"`
	Keywords            pq.StringArray `db:"semantic_keywords_text_array"        json:"keywords"`
	Language            string         `db:"semantic_language_primary_text"      json:"language"`
	CommunicationGoal   string         `db:"semantic_communication_goal_text"    json:"communication_goal"`
	AuthorType          string         `db:"semantic_author_type_text"           json:"author_type"`
	AudienceType        string         `db:"semantic_audience_type_text"         json:"audience_type"`
	ContentVibe         string         `db:"semantic_content_vibe_text"          json:"content_vibe"`
	Tone                string         `db:"semantic_tone_text"                  json:"tone"`
	Formality           string         `db:"semantic_formality_text"             json:"formality"`
	Vibe                string         `db:"semantic_vibe_text"                  json:"vibe"`
	SiteType            string         `db:"semantic_site_type_text"             json:"site_type"`
	IsCommercial        bool           `db:"semantic_is_commercial_bool"         json:"is_commercial"`
	IsSpammy            bool           `db:"semantic_is_spammy_bool"             json:"is_spammy"`
	IsPoliticallyLoaded bool           `db:"semantic_is_politically_loaded_bool" json:"is_politically_loaded"`
	HasComments         bool           `db:"semantic_has_comments_bool"          json:"has_comments"`
	QualityScore        *float64       `db:"semantic_quality_score_float"        json:"quality_score,omitempty"`
	Summary             string         `db:"semantic_summary_text"               json:"summary"`

	Status        CrawlStatus `db:"crawl_status_text"        json:"status"`
	FirstSeenAt   *time.Time  `db:"crawl_first_seen_at_ts"   json:"first_seen_at,omitempty"`
	LastAttemptAt *time.Time  `db:"crawl_last_attempt_at_ts" json:"last_attempt_at,omitempty"`
	ProcessedAt   *time.Time  `db:"crawl_processed_at_ts"    json:"processed_at,omitempty"`
	HasAboutPage  bool        `db:"crawl_has_about_bool"     json:"has_about_page"`
	LastError     *string     `db:"crawl_error_text"         json:"last_error,omitempty"`

	ExportedToIndex bool `db:"semantic_exported_to_index_bool" json:"exported_to_index"`

	CreatedAt time.Time `db:"audit_created_at_ts" json:"created_at"`
	UpdatedAt time.Time `db:"audit_updated_at_ts" json:"updated_at"`
}

// NewRecordID derives the stable record id of a domain: a version 5 UUID in
// the URL namespace, so every attempt for the same name gets the same id.
func NewRecordID(domainName string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(domainName))
}
