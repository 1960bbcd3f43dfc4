package classify_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/domain-profiler/internal/classify"
	"github.com/jonesrussell/domain-profiler/internal/domain"
)

func TestNormalizeLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"en", "en"},
		{"en-US", "en"},
		{"pt-BR", "pt"},
		{" FR ", "fr"},
		{"English", "en"},
		{"german", "de"},
		{"", domain.Unknown},
		{"unknown", domain.Unknown},
		{"!!", domain.Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, classify.NormalizeLanguage(tt.in))
		})
	}
}
