package repository

import (
	"errors"
	"strings"
)

// Kind classifies a repository failure. Every error surfaced by Repository
// methods is one of these, each with a stable user-presentable message.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorization
	KindValidation
	KindNotFound
	KindNetwork
	KindUnavailable
)

// Error is a classified repository failure.
type Error struct {
	Kind    Kind
	Message string
	// FieldErrors holds the per-field validation messages for KindValidation.
	FieldErrors []string
	cause       error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the failure kind from err. Unclassified errors report
// KindUnknown.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

func authorizationError(message string) *Error {
	if message == "" {
		message = "You do not have permission to access this record"
	}
	return &Error{Kind: KindAuthorization, Message: message}
}

func validationError(fieldErrors []string) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     strings.Join(fieldErrors, "\n"),
		FieldErrors: fieldErrors,
	}
}

func notFoundError(message string, cause error) *Error {
	if message == "" {
		message = "Event not found"
	}
	return &Error{Kind: KindNotFound, Message: message, cause: cause}
}

func networkError(cause error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: "Network error. Please check your connection",
		cause:   cause,
	}
}

func unavailableError(cause error) *Error {
	return &Error{
		Kind:    KindUnavailable,
		Message: "Service is currently unavailable. Please try again later",
		cause:   cause,
	}
}

func unknownError(message string, cause error) *Error {
	if message == "" {
		message = "An unexpected error occurred"
	}
	return &Error{Kind: KindUnknown, Message: message, cause: cause}
}
