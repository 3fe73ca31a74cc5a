package catalog

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Service matches exactly one of them
// with errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage error")
	ErrInvalidInput = errors.New("invalid input")
)

// Error carries a kind, a detail meant for the caller, and the underlying
// failure when there is one.
type Error struct {
	Kind   error
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind, cause error, format string, args ...any) *Error {
	detail := fmt.Sprintf(format, args...)
	if cause != nil {
		detail = detail + ": " + cause.Error()
	}
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

// Detail returns the caller facing message for err.
func Detail(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Detail
	}
	return err.Error()
}
