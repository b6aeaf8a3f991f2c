package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure by how the run must react to it.
type ErrorKind string

const (
	// KindConfiguration marks an unreadable or malformed repository list or
	// credential bundle. Fatal: the run aborts before processing repositories.
	KindConfiguration ErrorKind = "ConfigurationError"
	// KindCredential marks a repository with no usable access token.
	KindCredential ErrorKind = "CredentialError"
	// KindAccess marks a remote denial (401/403/404). Recorded, never retried.
	KindAccess ErrorKind = "AccessError"
	// KindTransient marks network failures, throttling and 5xx responses.
	// Retried a bounded number of times before being recorded.
	KindTransient ErrorKind = "TransientError"
	// KindProtocol marks an unexpected API response shape. Not retried.
	KindProtocol ErrorKind = "ProtocolError"
	// KindPublish marks a rejected metrics or audit-log write, recorded
	// separately from fetch failures.
	KindPublish ErrorKind = "PublishError"
	// KindUnknown covers failures no other kind claims.
	KindUnknown ErrorKind = "UnknownError"
)

// Error tags an underlying failure with the kind the orchestrator
// dispatches on.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a kind-tagged error wrapping err.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Errors that carry no kind report KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
