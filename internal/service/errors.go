package service

import (
	"errors"
	"net/http"
)

var (
	// ErrCredentialNotFound is returned by Verify when no active credential
	// matches the presented secret.
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrInvalidArgument marks caller mistakes such as a blank credential
	// name or a missing owner when system keys are disabled.
	ErrInvalidArgument = errors.New("invalid argument")

	ErrAlreadyAllowListed = errors.New("already allow-listed")
	ErrNotAllowListed     = errors.New("not allow-listed")
)

// ErrorCode is the stable machine-readable kind of an expected auth failure.
// Clients branch on it, so values never change.
type ErrorCode string

const (
	CodeMalformedHeader  ErrorCode = "MALFORMED_HEADER"
	CodeEmptyAPIKey      ErrorCode = "EMPTY_API_KEY"
	CodeInvalidAPIKey    ErrorCode = "INVALID_API_KEY"
	CodeMissingAPIKey    ErrorCode = "MISSING_API_KEY"
	CodeMalformedToken   ErrorCode = "MALFORMED_TOKEN"
	CodeTokenExpired     ErrorCode = "TOKEN_EXPIRED"
	CodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	CodeUserNotFound     ErrorCode = "USER_NOT_FOUND"

	CodeInvalidProviderToken ErrorCode = "INVALID_PROVIDER_TOKEN"
	CodeAccessDenied         ErrorCode = "ACCESS_DENIED"

	// Route policy, applied after the chain.
	CodeAuthenticationRequired ErrorCode = "AUTHENTICATION_REQUIRED"
	CodeForbidden              ErrorCode = "FORBIDDEN"
)

// Status returns the HTTP status for the code.
func (c ErrorCode) Status() int {
	switch c {
	case CodeMalformedHeader, CodeEmptyAPIKey, CodeMalformedToken:
		return http.StatusBadRequest
	case CodeAccessDenied, CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidAPIKey, CodeMissingAPIKey, CodeTokenExpired, CodeInvalidSignature,
		CodeUserNotFound, CodeInvalidProviderToken, CodeAuthenticationRequired:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// AuthError is an expected, taxonomized authentication failure. Anything
// that is not an *AuthError is a defect.
type AuthError struct {
	Code    ErrorCode
	Message string
	Details []string
}

func (e *AuthError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status for the error's code.
func (e *AuthError) Status() int {
	return e.Code.Status()
}

// NewAuthError builds an AuthError.
func NewAuthError(code ErrorCode, message string, details ...string) *AuthError {
	return &AuthError{Code: code, Message: message, Details: details}
}

// AsAuthError unwraps err into an *AuthError.
func AsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
