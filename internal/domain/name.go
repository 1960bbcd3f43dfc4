package domain

import (
	"fmt"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// DNS length limits.
const (
	maxDomainNameLength = 253
	maxLabelLength      = 63
)

// NormalizeName turns user or discovery input into the canonical queue key:
// lower-case ASCII (punycode) hostname without scheme, path, port or trailing dot.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(strings.ToLower(raw))
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	if i := strings.IndexAny(name, "/?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(name, ".")

	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDomainName, raw, err)
	}

	if err := validateHostname(ascii); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrInvalidDomainName, raw, err)
	}

	return ascii, nil
}

func validateHostname(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if len(name) > maxDomainNameLength {
		return fmt.Errorf("longer than %d characters", maxDomainNameLength)
	}

	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return fmt.Errorf("missing top-level domain")
	}
	for _, label := range labels {
		if label == "" || len(label) > maxLabelLength {
			return fmt.Errorf("label %q has invalid length", label)
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return fmt.Errorf("label %q starts or ends with a hyphen", label)
		}
	}
	return nil
}

// PublicSuffix returns the public suffix of an already normalized name, or
// nil when the name is itself a suffix.
func PublicSuffix(name string) *string {
	suffix, _ := publicsuffix.PublicSuffix(name)
	if suffix == "" || suffix == name {
		return nil
	}
	return &suffix
}
