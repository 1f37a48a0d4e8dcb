package poller

import (
	"errors"
	"fmt"
)

// ErrFetch is the sentinel matched by every [FetchError] via errors.Is.
var ErrFetch = errors.New("fetch failed")

// FailureKind classifies why a fetch did not produce a snapshot.
type FailureKind string

const (
	// FailureTransport means the request never produced a response.
	FailureTransport FailureKind = "transport"

	// FailureRedirect means the response came from a different URL than requested.
	FailureRedirect FailureKind = "redirect"

	// FailureStatus means the response carried a non-2xx status code.
	FailureStatus FailureKind = "status"

	// FailureBody means the body could not be read or did not hold the expected fields.
	FailureBody FailureKind = "body"
)

// FetchError describes an expected fetch failure.
//
// Fetch failures are ordinary values: the scheduler logs them and moves on.
type FetchError struct {
	Identifier string
	Kind       FailureKind
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %q: %s: %s", e.Identifier, e.Kind, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports ErrFetch as a match so callers need not type-assert.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}
