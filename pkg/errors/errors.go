package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the common failure categories. Code that does not
// care about HTTP can match on these with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrAlreadyExists     = errors.New("resource already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotEligible       = errors.New("not eligible")
	ErrUsageLimitReached = errors.New("usage limit exceeded")
	ErrBelowMinimumOrder = errors.New("below minimum order")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal error")
)

// AppError is a structured application error with an HTTP status mapping.
// Rejections travel as plain data (code + human message) so the API layer
// can map them to responses deterministically.
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

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with id %s not found", resource, id),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return &AppError{
		Code:    "ALREADY_EXISTS",
		Message: fmt.Sprintf("%s with %s %q already exists", resource, field, value),
		Status:  http.StatusConflict,
		Err:     ErrAlreadyExists,
	}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// NotEligible creates a 422 error carrying the specific eligibility
// failure reason for UX messaging.
func NotEligible(reason string) *AppError {
	return &AppError{
		Code:    "NOT_ELIGIBLE",
		Message: reason,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrNotEligible,
	}
}

// UsageLimitExceeded creates a 409 error. Clients should stop offering the
// code once they see this.
func UsageLimitExceeded(message string) *AppError {
	return &AppError{
		Code:    "USAGE_LIMIT_EXCEEDED",
		Message: message,
		Status:  http.StatusConflict,
		Err:     ErrUsageLimitReached,
	}
}

// BelowMinimumOrder creates a 422 error for orders under the system-wide
// discount floor.
func BelowMinimumOrder(message string) *AppError {
	return &AppError{
		Code:    "BELOW_MINIMUM_ORDER",
		Message: message,
		Status:  http.StatusUnprocessableEntity,
		Err:     ErrBelowMinimumOrder,
	}
}

// Internal creates a 500 error.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUsageLimitReached):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotEligible), errors.Is(err, ErrBelowMinimumOrder):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
