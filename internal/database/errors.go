package database

import "errors"

// Callers check these with errors.Is.
var (
	// ErrQueueEmpty is returned by ClaimOne when no unlocked entry exists.
	ErrQueueEmpty = errors.New("ingestion queue is empty")
	// ErrLockLost is returned by Finalize when the entry is gone or carries a
	// different claim token. Nothing was written.
	ErrLockLost = errors.New("ingestion lock lost")
	// ErrAlreadyFinalized is returned when the record is already terminal. The
	// queue entry was still removed.
	ErrAlreadyFinalized = errors.New("domain already finalized")
	// ErrRecordNotFound is returned when no record exists for a domain.
	ErrRecordNotFound = errors.New("domain record not found")
	// ErrEntryNotLocked is returned by Unlock for a missing or unlocked entry.
	ErrEntryNotLocked = errors.New("ingestion entry not locked")
)
