package domain

import "fmt"

// Outcome is what a worker hands to finalize for one claimed domain.
type Outcome struct {
	Status       CrawlStatus
	Semantics    Semantics
	HasAboutPage bool
	// Reason is the diagnostic for failed and skipped outcomes.
	Reason string
}

// SuccessOutcome builds a success outcome with normalized labels.
func SuccessOutcome(sem Semantics, hasAbout bool) Outcome {
	sem.Normalize()
	return Outcome{Status: StatusSuccess, Semantics: sem, HasAboutPage: hasAbout}
}

// FailedOutcome builds a failed outcome. Semantic labels stay at their
// sentinels and the summary carries the diagnostic.
func FailedOutcome(reason string, hasAbout bool) Outcome {
	sem := UnknownSemantics()
	sem.Summary = reason
	return Outcome{Status: StatusFailed, Semantics: sem, HasAboutPage: hasAbout, Reason: reason}
}

// SkippedOutcome records an upstream policy decision such as a blacklist hit.
func SkippedOutcome(reason string) Outcome {
	sem := UnknownSemantics()
	sem.Summary = reason
	return Outcome{Status: StatusSkipped, Semantics: sem, Reason: reason}
}

// Validate rejects outcomes that finalize must never write. An outcome is
// the move out of processing, whether or not a processing marker was stored.
func (o Outcome) Validate() error {
	if err := o.Status.Validate(); err != nil {
		return err
	}
	if !CanTransition(StatusProcessing, o.Status) {
		return fmt.Errorf("%w: %s", ErrNotTerminal, o.Status)
	}
	if o.Status != StatusSuccess && o.Reason == "" {
		return fmt.Errorf("%w: %s", ErrMissingReason, o.Status)
	}
	return nil
}

// LastError returns the diagnostic to persist, nil for success.
func (o Outcome) LastError() *string {
	if o.Status == StatusSuccess || o.Reason == "" {
		return nil
	}
	reason := o.Reason
	return &reason
}
