// Package domainerrors carries the coded error taxonomy shared by every engine
// service. Services return these; the transport layer maps codes to statuses.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code identifies which invariant or infrastructure condition blocked an operation.
type Code string

const (
	// CodeInvalidTransition: a state guard rejected the requested transition.
	CodeInvalidTransition Code = "invalid_transition"
	// CodeAlreadyTerminal: mutation attempted on an entity that reached a closed state.
	CodeAlreadyTerminal Code = "already_terminal"
	// CodeConflictingRequest: a uniqueness invariant would be violated.
	CodeConflictingRequest Code = "conflicting_request"
	// CodeAlreadyResolved: a revocation request was resolved before.
	CodeAlreadyResolved Code = "already_resolved"
	// CodeInvalidBallotSet: the tally engine received input it cannot count.
	// This is a data-integrity error, not a user error.
	CodeInvalidBallotSet Code = "invalid_ballot_set"

	CodeNotFound   Code = "not_found"
	CodeValidation Code = "validation"
	CodeInternal   Code = "internal"
	CodeTimeout    Code = "timeout"
)

// Error is a coded error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal for
// uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Message returns the outermost coded message, or a generic one for uncoded errors.
func Message(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
