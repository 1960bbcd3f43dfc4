package crawl

import "strings"

// Policy decides whether a claimed domain is skipped without being fetched.
type Policy interface {
	// SkipReason returns a non-empty reason when the domain must be skipped.
	SkipReason(domainName string) string
}

// Blocklist skips listed names and everything below them.
type Blocklist struct {
	entries map[string]struct{}
}

// NewBlocklist builds a blocklist from names such as "example.com" or "gov".
func NewBlocklist(entries []string) *Blocklist {
	b := &Blocklist{entries: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		e = strings.Trim(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			b.entries[e] = struct{}{}
		}
	}
	return b
}

// SkipReason walks the name from the full host up to its last label.
func (b *Blocklist) SkipReason(domainName string) string {
	name := domainName
	for {
		if _, ok := b.entries[name]; ok {
			return "blocklisted: " + name
		}
		i := strings.IndexByte(name, '.')
		if i < 0 {
			return ""
		}
		name = name[i+1:]
	}
}

// Len returns the number of entries.
func (b *Blocklist) Len() int {
	return len(b.entries)
}
