// Package apperr defines the closed set of error variants surfaced by the
// version-control engine. Callers dispatch on the Code via CodeOf or Is
// rather than on concrete error values.
package apperr

import "errors"

// Code classifies an engine error.
type Code string

const (
	// CodeNotFound: file, project or version does not exist (or is soft-deleted).
	CodeNotFound Code = "not_found"
	// CodeNotAuthorized: the caller may not act on the project.
	CodeNotAuthorized Code = "not_authorized"
	// CodeAlreadyExists: a file with the same name already exists in the project.
	CodeAlreadyExists Code = "already_exists"
	// CodeNotPulled: the operation requires the caller to hold the file.
	CodeNotPulled Code = "not_pulled"
	// CodeAlreadyPulled: the file is already held.
	CodeAlreadyPulled Code = "already_pulled"
	// CodeStaleVersion: a push landed after the caller's hold began.
	CodeStaleVersion Code = "stale_version"
	// CodeStorageWrite: blob store write or delete failure.
	CodeStorageWrite Code = "storage_write"
	// CodeStorageRead: blob store read failure.
	CodeStorageRead Code = "storage_read"
	// CodeUnknown: unexpected internal failure, wraps its cause.
	CodeUnknown Code = "unknown"
)

// Error is a tagged engine error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap returns an error with the given code and message wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the code from err. Errors outside the taxonomy report
// CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
