package classify

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/jonesrussell/domain-profiler/internal/domain"
)

// NormalizeLanguage reduces a BCP 47 tag or a language name to its base
// ISO 639 code ("en-US" -> "en"). Unparseable input yields domain.Unknown.
func NormalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, domain.Unknown) {
		return domain.Unknown
	}

	if tag, err := language.Parse(raw); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}

	if code, ok := languageNames[strings.ToLower(raw)]; ok {
		return code
	}
	return domain.Unknown
}

// languageNames covers models that answer with a name instead of a code.
var languageNames = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"russian":    "ru",
	"japanese":   "ja",
	"chinese":    "zh",
	"korean":     "ko",
	"arabic":     "ar",
	"polish":     "pl",
	"swedish":    "sv",
	"turkish":    "tr",
}
