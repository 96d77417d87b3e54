package domain

import (
	"errors"
	"fmt"
)

// ErrEmptyTurn is returned when a turn is requested with no input or no history.
var ErrEmptyTurn = errors.New("empty turn")

// ErrClassificationSchema is returned when the classifier output fails structural validation.
var ErrClassificationSchema = errors.New("classification does not match schema")

// ErrUnknownHandler is returned when the classifier names a handler that is not registered.
var ErrUnknownHandler = errors.New("unknown handler")

// ErrHandlerNotFound is returned by registry lookups.
var ErrHandlerNotFound = errors.New("handler not found")

// ErrHandlerRuntime is returned when a dispatched handler fails.
var ErrHandlerRuntime = errors.New("handler failed")

// ErrRemoteService is returned when the backing inference service fails.
var ErrRemoteService = errors.New("remote service error")

// ErrDomainMismatch is returned when the classifier can select a handler that is not registered.
var ErrDomainMismatch = errors.New("classifier domain does not match registered handlers")

// ErrSessionNotFound is returned when a session ID cannot be found in the store.
var ErrSessionNotFound = errors.New("session not found")

// RemoteErrorKind classifies failures of the inference service.
type RemoteErrorKind string

const (
	RemoteAuth        RemoteErrorKind = "auth"
	RemoteRateLimit   RemoteErrorKind = "rate_limit"
	RemoteTimeout     RemoteErrorKind = "timeout"
	RemoteSchema      RemoteErrorKind = "schema"
	RemoteUnavailable RemoteErrorKind = "unavailable"
)

// RemoteError wraps a failure of the inference service, preserving its cause.
type RemoteError struct {
	Kind RemoteErrorKind
	Err  error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote service error (%s): %v", e.Kind, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the original cause.
func (e *RemoteError) Unwrap() []error {
	errs := []error{ErrRemoteService, e.Err}
	if e.Kind == RemoteSchema {
		errs = append(errs, ErrClassificationSchema)
	}
	return errs
}

// NewRemoteError wraps err as a remote service failure of the given kind.
func NewRemoteError(kind RemoteErrorKind, err error) *RemoteError {
	return &RemoteError{Kind: kind, Err: err}
}
