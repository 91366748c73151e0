package scheduler

import "fmt"

// The four failure classes a save/delete can surface. The transport layer
// matches them with errors.As and maps each to a status code; anything else
// is an internal store failure.

type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

type DuplicateError struct {
	Message string
}

func (e *DuplicateError) Error() string { return e.Message }

func duplicateErrorf(format string, args ...any) error {
	return &DuplicateError{Message: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func notFoundErrorf(format string, args ...any) error {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string { return e.Message }

func permissionErrorf(format string, args ...any) error {
	return &PermissionError{Message: fmt.Sprintf(format, args...)}
}
