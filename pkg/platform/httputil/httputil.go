package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dErrors "tripkey/pkg/domain-errors"
)

// ExposeInternalErrors adds the wrapped cause of internal errors to responses.
// Set once at startup, only in development.
var ExposeInternalErrors = false

// ErrorResponse is the JSON envelope for every failed request.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	// Code is the machine-readable reason for authentication failures.
	Code       string `json:"code,omitempty"`
	RetryAfter int    `json:"retryAfter,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Errors after WriteHeader cannot change the status code, so we ignore encoding errors.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		domainErr = &dErrors.Error{Code: dErrors.CodeInternal, Err: err}
	}

	status := DomainCodeToHTTPStatus(domainErr.Code)
	resp := ErrorResponse{
		Error: DomainCodeToHTTPCode(domainErr.Code),
		Code:  string(domainErr.Reason),
	}
	if domainErr.Code == dErrors.CodeInternal {
		resp.Description = "internal server error"
		if ExposeInternalErrors && domainErr.Err != nil {
			resp.Detail = domainErr.Err.Error()
		}
	} else {
		resp.Description = domainErr.Message
	}
	if domainErr.Code == dErrors.CodeRateLimited {
		resp.RetryAfter = domainErr.RetryAfter
		w.Header().Set("Retry-After", strconv.Itoa(domainErr.RetryAfter))
	}
	WriteJSON(w, status, resp)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput, dErrors.CodeInvariantViolation:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the "error" field of the JSON body.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation, dErrors.CodeInvariantViolation:
		return "validation_error"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeRateLimited:
		return "rate_limit_exceeded"
	case dErrors.CodeTimeout:
		return "timeout"
	default:
		return "internal_error"
	}
}
