package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeRateLimited        Code = "rate_limited"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
)

// Reason is the machine-readable detail carried by authentication failures.
// Clients use it to choose between a silent re-authentication and a full logout.
type Reason string

const (
	ReasonTokenExpired   Reason = "TOKEN_EXPIRED"
	ReasonTokenInvalid   Reason = "TOKEN_INVALID"
	ReasonTripNotFound   Reason = "TRIP_NOT_FOUND"
	ReasonRoleMismatch   Reason = "ROLE_MISMATCH"
	ReasonMemberNotFound Reason = "MEMBER_NOT_FOUND"
	ReasonMemberInactive Reason = "MEMBER_INACTIVE"
	ReasonInvalidPIN     Reason = "INVALID_PIN"
)

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Reason  Reason
	// RetryAfter is the number of seconds a rate-limited caller should wait.
	RetryAfter int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// NewWithReason creates a domain error carrying a machine-readable reason.
func NewWithReason(code Code, reason Reason, msg string) error {
	return &Error{Code: code, Reason: reason, Message: msg}
}

// RateLimited creates a rate limit error carrying the retry hint in seconds.
func RateLimited(retryAfter int, msg string) error {
	return &Error{Code: CodeRateLimited, RetryAfter: retryAfter, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code and reason are preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Reason: existing.Reason, RetryAfter: existing.RetryAfter, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// ReasonOf returns the reason of the outermost domain error in the chain, or "".
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}
