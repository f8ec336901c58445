package artifact

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an artifact store failure.
type ErrorKind string

const (
	// KindUnreachable covers transport failures, timeouts and server-side errors. Retryable.
	KindUnreachable ErrorKind = "unreachable"
	// KindNotFound means the store does not know the address.
	KindNotFound ErrorKind = "not_found"
	// KindMalformedResponse means the store answered with something unusable.
	KindMalformedResponse ErrorKind = "malformed_response"
)

// StoreError is returned by backends and by the Adapter.
type StoreError struct {
	kind    ErrorKind
	message string
	wrapped error
}

func (e *StoreError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("artifact store: %s: %v", e.message, e.wrapped)
	}
	return "artifact store: " + e.message
}

func (e *StoreError) Kind() ErrorKind { return e.kind }
func (e *StoreError) Unwrap() error   { return e.wrapped }

// NewUnreachableError creates a retryable transport error.
func NewUnreachableError(err error, msg string) error {
	return &StoreError{kind: KindUnreachable, message: msg, wrapped: err}
}

// NewNotFoundError creates an error for an unknown address.
func NewNotFoundError(msg string) error {
	return &StoreError{kind: KindNotFound, message: msg}
}

// NewMalformedResponseError creates an error for an unusable store response.
func NewMalformedResponseError(err error, msg string) error {
	return &StoreError{kind: KindMalformedResponse, message: msg, wrapped: err}
}

func hasKind(err error, kind ErrorKind) bool {
	var se *StoreError
	return errors.As(err, &se) && se.kind == kind
}

// IsUnreachable reports whether err is a StoreError of kind KindUnreachable.
func IsUnreachable(err error) bool { return hasKind(err, KindUnreachable) }

// IsNotFound reports whether err is a StoreError of kind KindNotFound.
func IsNotFound(err error) bool { return hasKind(err, KindNotFound) }

// IsMalformedResponse reports whether err is a StoreError of kind KindMalformedResponse.
func IsMalformedResponse(err error) bool { return hasKind(err, KindMalformedResponse) }
