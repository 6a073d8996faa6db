// Package apperr defines the error kinds the accounts service reports to callers.
//
// Services return *Error values; handlers map the Kind to a status code and show
// Message() to the client. Wrapped causes stay available for logs only.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Internal Kind = iota
	InvalidCredentials
	AccountDisabled
	NotFound
	NoActiveSession
	AlreadyExists
	InvalidInput
	Unauthorized
)

var kindNames = map[Kind]string{
	Internal:           "internal",
	InvalidCredentials: "invalid_credentials",
	AccountDisabled:    "account_disabled",
	NotFound:           "not_found",
	NoActiveSession:    "no_active_session",
	AlreadyExists:      "already_exists",
	InvalidInput:       "invalid_input",
	Unauthorized:       "unauthorized",
}

var kindMessages = map[Kind]string{
	Internal:           "internal error",
	InvalidCredentials: "invalid username or password",
	AccountDisabled:    "account is disabled, contact an administrator",
	NotFound:           "user not found",
	NoActiveSession:    "user has no active session",
	AlreadyExists:      "user already exists",
	InvalidInput:       "invalid input",
	Unauthorized:       "missing or invalid token",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. Each matches any *Error of the same kind.
var (
	ErrInternal           = &Error{Kind: Internal}
	ErrInvalidCredentials = &Error{Kind: InvalidCredentials}
	ErrAccountDisabled    = &Error{Kind: AccountDisabled}
	ErrNotFound           = &Error{Kind: NotFound}
	ErrNoActiveSession    = &Error{Kind: NoActiveSession}
	ErrAlreadyExists      = &Error{Kind: AlreadyExists}
	ErrInvalidInput       = &Error{Kind: InvalidInput}
	ErrUnauthorized       = &Error{Kind: Unauthorized}
)

// Error is a typed operation error.
// Detail, when set, replaces the default client message (used by InvalidInput).
// Err is the underlying cause and is never shown to clients.
type Error struct {
	Op     string
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so errors.Is(err, ErrNotFound) works for any op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Message is the text safe to return to a client.
func (e *Error) Message() string {
	if e.Detail != "" && e.Kind == InvalidInput {
		return e.Detail
	}
	return kindMessages[e.Kind]
}

// E builds an *Error for op.
func E(op string, kind Kind) *Error {
	return &Error{Op: op, Kind: kind}
}

// Wrap builds an *Error carrying cause.
func Wrap(op string, kind Kind, cause error) *Error {
	return &Error{Op: op, Kind: kind, Err: cause}
}

// Invalid builds an InvalidInput error with a client-facing detail.
func Invalid(op, detail string) *Error {
	return &Error{Op: op, Kind: InvalidInput, Detail: detail}
}

// KindOf returns the Kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client message for err. Unknown errors read as internal.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message()
	}
	return kindMessages[Internal]
}
