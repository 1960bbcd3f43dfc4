package domain

import "errors"

var (
	// ErrInvalidStatus is returned for a status value outside the enum.
	ErrInvalidStatus = errors.New("invalid crawl status")
	// ErrNotTerminal is returned when a finalize carries a non-terminal status.
	ErrNotTerminal = errors.New("outcome status is not terminal")
	// ErrMissingReason is returned when a failed or skipped outcome has no diagnostic.
	ErrMissingReason = errors.New("outcome requires a reason")
	// ErrInvalidDomainName is returned for names that are not valid DNS hostnames.
	ErrInvalidDomainName = errors.New("invalid domain name")
)
