// Package domain contains the data types shared by the queue, the orchestrator
// and the analysis steps.
package domain

import "time"

// IngestionEntry is a candidate domain waiting in the ingestion queue.
type IngestionEntry struct {
	DomainName   string     `db:"domain_name_text"   json:"domain_name"`
	PublicSuffix *string    `db:"public_suffix_text" json:"public_suffix,omitempty"`
	DiscoveredAt time.Time  `db:"discovered_at_ts"   json:"discovered_at"`
	LockedAt     *time.Time `db:"locked_at_ts"       json:"locked_at,omitempty"`
}

// IsLocked reports whether a worker currently owns the entry.
func (e *IngestionEntry) IsLocked() bool {
	return e.LockedAt != nil
}

// ClaimToken returns the lock timestamp that identifies this claim. Finalize
// only removes the entry while the same token is still in place.
func (e *IngestionEntry) ClaimToken() time.Time {
	if e.LockedAt == nil {
		return time.Time{}
	}
	return *e.LockedAt
}

// LockedFor returns how long the entry has been locked as of now.
func (e *IngestionEntry) LockedFor(now time.Time) time.Duration {
	if e.LockedAt == nil {
		return 0
	}
	return now.Sub(*e.LockedAt)
}
