package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrRateLimited    = errors.New("rate limited")
	ErrConfiguration  = errors.New("configuration error")
)

// kind ties a sentinel to its wire code and HTTP status. When exposeCause is
// set, FromError keeps the wrapped error text as the public message.
type kind struct {
	sentinel    error
	code        string
	status      int
	message     string
	exposeCause bool
}

// Order matters: the first sentinel matched by errors.Is wins.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found", false},
	{ErrAlreadyExists, "ALREADY_EXISTS", http.StatusConflict, "resource already exists", false},
	{ErrConflict, "CONFLICT", http.StatusConflict, "", true},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, "", true},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "unauthorized", false},
	{ErrForbidden, "FORBIDDEN", http.StatusForbidden, "forbidden", false},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "rate limited", false},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable", false},
	{ErrConfiguration, "CONFIGURATION_ERROR", http.StatusInternalServerError, "service is not configured", false},
}

// AppError is an error with a stable code and HTTP status attached.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(sentinel error, message string) *AppError {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
		}
	}
	return &AppError{Code: "INTERNAL_ERROR", Message: message, Status: http.StatusInternalServerError, Err: sentinel}
}

// NotFound reports a missing resource by type and id.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError { return newAppError(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return newAppError(ErrUnauthorized, message) }

func Forbidden(message string) *AppError { return newAppError(ErrForbidden, message) }

// Conflict reports a request that clashes with the current resource state.
func Conflict(message string) *AppError { return newAppError(ErrConflict, message) }

func RateLimited(message string) *AppError { return newAppError(ErrRateLimited, message) }

func ServiceUnavailable(message string) *AppError { return newAppError(ErrServiceUnavail, message) }

// Configuration reports missing or unusable settings, such as absent
// credentials for an outbound integration. It maps to 500.
func Configuration(message string) *AppError { return newAppError(ErrConfiguration, message) }

// Internal hides err behind a generic message.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// FromError converts any error into an AppError. An AppError in the chain
// is returned as is, a known sentinel gets its code and status, and
// anything else becomes Internal.
func FromError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if !errors.Is(err, k.sentinel) {
			continue
		}
		msg := k.message
		if k.exposeCause {
			msg = err.Error()
		}
		return &AppError{Code: k.code, Message: msg, Status: k.status, Err: err}
	}
	return Internal(err)
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return FromError(err).Status
}
