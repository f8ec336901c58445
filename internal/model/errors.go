package model

import (
	"fmt"
	"strings"
)

// Problem is a single validation failure. Index is the zero-based question
// index it refers to, or -1 when it concerns the request as a whole.
type Problem struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	if p.Index < 0 {
		return fmt.Sprintf("%s: %s", p.Field, p.Message)
	}
	return fmt.Sprintf("question %d: %s: %s", p.Index, p.Field, p.Message)
}

// ValidationError reports malformed caller input.
type ValidationError struct {
	Problems []Problem
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a problem.
func (e *ValidationError) Add(index int, field, message string) {
	e.Problems = append(e.Problems, Problem{Index: index, Field: field, Message: message})
}

// OrNil returns e if it holds any problem, nil otherwise.
func (e *ValidationError) OrNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// NewValidationError returns a ValidationError with a single problem.
func NewValidationError(index int, field, message string) *ValidationError {
	return &ValidationError{Problems: []Problem{{Index: index, Field: field, Message: message}}}
}
