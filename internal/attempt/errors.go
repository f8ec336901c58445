package attempt

import "errors"

var (
	ErrNotFound               = errors.New("exam not found")
	ErrNotApproved            = errors.New("exam is not approved")
	ErrAlreadyAttempted       = errors.New("exam already attempted")
	ErrSubmissionWindowClosed = errors.New("submission window has closed")
	// ErrExamUnavailable wraps the artifact store or decryption failure that
	// kept the exam content from being loaded.
	ErrExamUnavailable = errors.New("exam content unavailable")
	ErrForbidden       = errors.New("only students may take exams")
)
