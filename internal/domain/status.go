package domain

import "fmt"

// CrawlStatus is the lifecycle state of a domain.
type CrawlStatus string

// Crawl statuses. Pending is implicit while the domain is still in the
// ingestion queue; the record table only ever stores it as a column default.
const (
	StatusPending    CrawlStatus = "pending"
	StatusProcessing CrawlStatus = "processing"
	StatusSuccess    CrawlStatus = "success"
	StatusFailed     CrawlStatus = "failed"
	StatusSkipped    CrawlStatus = "skipped"
)

// transitions lists the legal forward moves. Terminal statuses have no entry:
// only restoration (delete + requeue) moves a domain out of them.
var transitions = map[CrawlStatus][]CrawlStatus{
	StatusPending:    {StatusProcessing, StatusSuccess, StatusFailed, StatusSkipped},
	StatusProcessing: {StatusSuccess, StatusFailed, StatusSkipped},
}

// ParseCrawlStatus converts a stored value into a CrawlStatus.
func ParseCrawlStatus(s string) (CrawlStatus, error) {
	status := CrawlStatus(s)
	if err := status.Validate(); err != nil {
		return "", err
	}
	return status, nil
}

// Validate returns an error for values outside the enum.
func (s CrawlStatus) Validate() error {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusSkipped:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
}

// IsTerminal reports whether s is one of success, failed or skipped.
func (s CrawlStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusSkipped
}

// CanTransition reports whether from -> to is a legal lifecycle move.
func CanTransition(from, to CrawlStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalStatuses returns the statuses a finalize may write.
func TerminalStatuses() []CrawlStatus {
	return []CrawlStatus{StatusSuccess, StatusFailed, StatusSkipped}
}

func (s CrawlStatus) String() string {
	return string(s)
}
