package agent

import "fmt"

// ValidationError reports a message whose structural fields do not match its
// role. It is raised synchronously at the add call site, before any append,
// so history never holds a structurally invalid entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid message: field %s: %s", e.Field, e.Reason)
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
