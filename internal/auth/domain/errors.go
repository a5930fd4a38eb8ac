package domain

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a rejection. Callers compare with errors.Is against
// the Err* values below.
type ErrorKind string

const (
	KindInvalidCredentials      ErrorKind = "invalid_credentials"
	KindTwoFactorSessionExpired ErrorKind = "two_factor_session_expired"
	KindInvalidTwoFactorCode    ErrorKind = "invalid_two_factor_code"
	KindAccountConflict         ErrorKind = "account_conflict"
	KindUserNotFound            ErrorKind = "user_not_found"
	KindTokenRevoked            ErrorKind = "token_revoked"
	KindTokenInvalid            ErrorKind = "token_invalid"
	KindInvalidRefreshToken     ErrorKind = "invalid_refresh_token"
	KindInternalFailure         ErrorKind = "internal_failure"
	KindInvalidRequest          ErrorKind = "invalid_request"
	KindTwoFactorNotEnrolled    ErrorKind = "two_factor_not_enrolled"
	KindTwoFactorAlreadyEnabled ErrorKind = "two_factor_already_enabled"
	KindUnauthenticated         ErrorKind = "unauthenticated"
)

// Error is the single error type the auth service returns to its callers.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error // cause, never rendered
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped copies still compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// WithCause returns a copy of e carrying err for logs.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

var (
	ErrInvalidCredentials      = &Error{Kind: KindInvalidCredentials, Status: http.StatusUnauthorized, Message: "Invalid credentials"}
	ErrTwoFactorSessionExpired = &Error{Kind: KindTwoFactorSessionExpired, Status: http.StatusUnauthorized, Message: "Two-factor session expired, please log in again"}
	ErrInvalidTwoFactorCode    = &Error{Kind: KindInvalidTwoFactorCode, Status: http.StatusUnauthorized, Message: "Invalid two-factor code"}
	ErrAccountConflict         = &Error{Kind: KindAccountConflict, Status: http.StatusConflict, Message: "An account with this email is linked to a different provider"}
	ErrUserNotFound            = &Error{Kind: KindUserNotFound, Status: http.StatusNotFound, Message: "User not found"}
	ErrTokenRevoked            = &Error{Kind: KindTokenRevoked, Status: http.StatusUnauthorized, Message: "Token has been revoked"}
	ErrTokenInvalid            = &Error{Kind: KindTokenInvalid, Status: http.StatusUnauthorized, Message: "Token is invalid"}
	ErrInvalidRefreshToken     = &Error{Kind: KindInvalidRefreshToken, Status: http.StatusUnauthorized, Message: "Invalid refresh token"}
	ErrInternalFailure         = &Error{Kind: KindInternalFailure, Status: http.StatusInternalServerError, Message: "Internal server error"}
	ErrInvalidRequest          = &Error{Kind: KindInvalidRequest, Status: http.StatusBadRequest, Message: "Invalid request"}
	ErrTwoFactorNotEnrolled    = &Error{Kind: KindTwoFactorNotEnrolled, Status: http.StatusBadRequest, Message: "Two-factor authentication is not set up"}
	ErrTwoFactorAlreadyEnabled = &Error{Kind: KindTwoFactorAlreadyEnabled, Status: http.StatusConflict, Message: "Two-factor authentication is already enabled"}
	ErrUnauthenticated         = &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: "Authentication required"}
)

// Internal wraps an unexpected failure as InternalFailure.
func Internal(err error) *Error { return ErrInternalFailure.WithCause(err) }

// AsError returns err as *Error, mapping anything else to InternalFailure.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return Internal(err)
}
