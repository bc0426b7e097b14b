// Package apperr defines the typed errors that flow from the services to the
// HTTP layer. Every error carries a machine-readable Code which decides the
// HTTP status; errors.Is matches on the Code alone so callers can compare
// against the package sentinels even when a field or cause is attached.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodeUnauthenticated       Code = "unauthenticated"
	CodeValidation            Code = "validation_error"
	CodeMissingField          Code = "missing_field"
	CodeNotFound              Code = "not_found"
	CodeConflict              Code = "conflict"
	CodeRateLimited           Code = "rate_limited"
	CodeExpired               Code = "otp_expired"
	CodeInvalidCode           Code = "invalid_code"
	CodeReferenceExhausted    Code = "reference_generation_exhausted"
	CodeTransactionFailure    Code = "transaction_failure"
	CodeUnauthorizedOwnership Code = "unauthorized_ownership"
	CodeForbidden             Code = "forbidden"
	CodeVerificationRequired  Code = "verification_required"
)

// Error is the single error type returned by services.
type Error struct {
	Code       Code
	Message    string
	Field      string // offending input field for validation errors
	RetryAfter int    // seconds, rate limited errors only
	Err        error  // underlying cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrUnauthenticated       = &Error{Code: CodeUnauthenticated, Message: "authentication required"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "resource not found"}
	ErrConflict              = &Error{Code: CodeConflict, Message: "conflict"}
	ErrRateLimited           = &Error{Code: CodeRateLimited, Message: "too many requests"}
	ErrExpired               = &Error{Code: CodeExpired, Message: "OTP code has expired. Please request a new one."}
	ErrInvalidCode           = &Error{Code: CodeInvalidCode, Message: "Invalid or expired OTP code"}
	ErrReferenceExhausted    = &Error{Code: CodeReferenceExhausted, Message: "unable to generate a unique payment reference"}
	ErrTransactionFailure    = &Error{Code: CodeTransactionFailure, Message: "transaction failed"}
	ErrUnauthorizedOwnership = &Error{Code: CodeUnauthorizedOwnership, Message: "you do not own this vehicle"}
	ErrForbidden             = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrVerificationRequired  = &Error{Code: CodeVerificationRequired, Message: "Please verify your account to continue."}
	ErrValidation            = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrMissingField          = &Error{Code: CodeMissingField, Message: "missing required field"}
)

// Validation reports malformed input for a single field.
func Validation(field, reason string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: fmt.Sprintf("%s: %s", field, reason)}
}

// MissingField reports an absent required field.
func MissingField(field string) *Error {
	return &Error{Code: CodeMissingField, Field: field, Message: fmt.Sprintf("%s is required", field)}
}

// NotFound names the missing entity.
func NotFound(what string) *Error {
	return &Error{Code: CodeNotFound, Message: what + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// RateLimited carries the number of seconds the caller should wait.
func RateLimited(retryAfter int) *Error {
	return &Error{
		Code:       CodeRateLimited,
		RetryAfter: retryAfter,
		Message:    fmt.Sprintf("Please wait %d seconds before requesting a new OTP", retryAfter),
	}
}

// TransactionFailure wraps a persistence error surfaced by an atomic operation.
func TransactionFailure(cause error) *Error {
	return &Error{Code: CodeTransactionFailure, Message: "transaction failed", Err: cause}
}

// Wrap keeps typed errors as they are and wraps anything else as a
// transaction failure.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return TransactionFailure(err)
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status maps err to the HTTP status the API returns for it.
func Status(err error) int {
	e, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeValidation, CodeMissingField, CodeExpired, CodeInvalidCode:
		return http.StatusUnprocessableEntity
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeUnauthorizedOwnership, CodeForbidden, CodeVerificationRequired:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
