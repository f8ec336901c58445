package exam

import "errors"

var (
	// ErrNotFound is returned for an unknown exam ID.
	ErrNotFound = errors.New("exam not found")
	// ErrInvalidTransition is returned when a decision targets an exam that is not pending.
	ErrInvalidTransition = errors.New("exam is not pending review")
	// ErrNotOwner is returned when an institute acts on another institute's exam.
	ErrNotOwner = errors.New("exam belongs to another institute")
	// ErrNotApproved is returned when results are released for an exam that is not approved.
	ErrNotApproved = errors.New("exam is not approved")
	// ErrForbidden is returned when the caller's role may not perform the operation.
	ErrForbidden = errors.New("operation not permitted for role")
	// ErrIntegrity is returned when stored content decrypts but does not match its checksum or shape.
	ErrIntegrity = errors.New("stored exam content failed integrity check")
)
