package analysis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchErrorKind classifies why a site could not be retrieved.
type FetchErrorKind string

// Fetch error kinds.
const (
	KindTimeout          FetchErrorKind = "timeout"
	KindNavigationFailed FetchErrorKind = "navigation_failed"
	KindBlocked          FetchErrorKind = "blocked"
)

// Diagnostic returns the human-readable summary stored on failed records.
func (k FetchErrorKind) Diagnostic() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindBlocked:
		return "blocked"
	default:
		return "navigation failed"
	}
}

// ErrBodyTooShort is returned when a page has too little visible text to classify.
var ErrBodyTooShort = errors.New("body is too short")

// FetchError describes a failed retrieval of URL.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind.Diagnostic(), e.URL)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind.Diagnostic(), e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Diagnostic maps an analysis error to the short reason recorded on the
// domain: the fetch kind, "body is too short", or the error text.
func Diagnostic(err error) string {
	var fe *FetchError
	switch {
	case errors.As(err, &fe):
		return fe.Kind.Diagnostic()
	case errors.Is(err, ErrBodyTooShort):
		return ErrBodyTooShort.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout.Diagnostic()
	default:
		return err.Error()
	}
}

// transportError wraps an error returned before any response arrived.
func transportError(url string, err error) *FetchError {
	kind := KindNavigationFailed
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = KindTimeout
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

// statusError wraps a response the site answered with an error status.
func statusError(url string, status int) *FetchError {
	kind := KindNavigationFailed
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusProxyAuthRequired,
		http.StatusTooManyRequests, http.StatusUnavailableForLegalReasons:
		kind = KindBlocked
	}
	return &FetchError{Kind: kind, URL: url, Err: fmt.Errorf("status %d", status)}
}
