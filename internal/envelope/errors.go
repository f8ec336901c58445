package envelope

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure to open an envelope.
type ErrorKind string

const (
	// KindMalformed means the envelope is structurally unusable.
	KindMalformed ErrorKind = "malformed_envelope"
	// KindKeyMismatch means the envelope is well formed but does not open
	// under the given key, or opens to something that is not the expected payload.
	KindKeyMismatch ErrorKind = "authentication_or_key_mismatch"
)

// DecryptionError is returned by Open and Parse.
type DecryptionError struct {
	kind    ErrorKind
	message string
	wrapped error
}

func (e *DecryptionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *DecryptionError) Kind() ErrorKind { return e.kind }
func (e *DecryptionError) Unwrap() error   { return e.wrapped }

// NewMalformedError creates an error for an envelope that cannot be decoded.
func NewMalformedError(msg string) error {
	return &DecryptionError{kind: KindMalformed, message: msg}
}

// WrapMalformedError wraps err as a malformed envelope error.
func WrapMalformedError(err error, msg string) error {
	return &DecryptionError{kind: KindMalformed, message: msg, wrapped: err}
}

// NewKeyMismatchError creates an error for an envelope that does not open under the key.
func NewKeyMismatchError(msg string) error {
	return &DecryptionError{kind: KindKeyMismatch, message: msg}
}

// WrapKeyMismatchError wraps err as a key mismatch error.
func WrapKeyMismatchError(err error, msg string) error {
	return &DecryptionError{kind: KindKeyMismatch, message: msg, wrapped: err}
}

// IsMalformed reports whether err is a DecryptionError of kind KindMalformed.
func IsMalformed(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de) && de.kind == KindMalformed
}

// IsKeyMismatch reports whether err is a DecryptionError of kind KindKeyMismatch.
func IsKeyMismatch(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de) && de.kind == KindKeyMismatch
}
