// Package identity defines the contract the service assumes of its identity
// collaborator: email/password verification, account creation, and a cached
// current-session user. Errors carry a fixed vocabulary of codes so callers
// can present stable messages.
package identity

import (
	"context"
	"errors"

	"wisher-api/domain"
)

// Error codes issued by identity providers.
const (
	CodeInvalidEmail    = "invalid-email"
	CodeWrongPassword   = "wrong-password"
	CodeUserNotFound    = "user-not-found"
	CodeUserDisabled    = "user-disabled"
	CodeTooManyRequests = "too-many-requests"
	CodeEmailInUse      = "email-in-use"
	CodeWeakPassword    = "weak-password"
)

// Error is a classified identity failure with a user-presentable message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// CodeOf extracts the identity error code from err, or "" when err is not an
// identity error.
func CodeOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

func codeError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Provider verifies credentials and tracks the current session. SignIn and
// SignUp return the authenticated identity; CurrentUser is non-blocking and
// reads the cached session.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (domain.User, error)
	SignUp(ctx context.Context, email, password, name string) (domain.User, error)
	SignOut(ctx context.Context) error
	CurrentUser() (domain.User, bool)
}
