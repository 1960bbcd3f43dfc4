package domain_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/domain-profiler/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{"  example.com.  ", "example.com"},
		{"https://www.example.com/about?x=1", "www.example.com"},
		{"example.com:8443", "example.com"},
		{"bücher.de", "xn--bcher-kva.de"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := domain.NormalizeName(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeName_Invalid(t *testing.T) {
	t.Parallel()

	long := strings.Repeat(strings.Repeat("a", 60)+".", 5) + "com"

	for _, in := range []string{"", "localhost", "-bad.com", "a..com", long} {
		_, err := domain.NormalizeName(in)
		require.ErrorIs(t, err, domain.ErrInvalidDomainName, in)
	}
}

func TestPublicSuffix(t *testing.T) {
	t.Parallel()

	suffix := domain.PublicSuffix("shop.example.co.uk")
	require.NotNil(t, suffix)
	assert.Equal(t, "co.uk", *suffix)

	assert.Nil(t, domain.PublicSuffix("com"))
}
