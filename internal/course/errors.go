package course

import (
	"errors"
	"fmt"
	"net/http"

	"coursehub/internal/models"
	"coursehub/internal/storage"
)

// ServiceError represents errors from the course service with HTTP context
type ServiceError struct {
	Code       string
	Message    string
	StatusCode int
	Details    map[string]string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Error constructors for common service errors

func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidRequestError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

// NewValidationError reports a request body that parsed but failed
// validation. The underlying error text becomes the message.
func NewValidationError(err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeValidation,
		Message:    err.Error(),
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}

func NewUnauthorizedError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInternalError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       models.ErrorCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// fromStorage maps storage sentinels onto service errors. what names the
// entity for not-found messages, e.g. "Course".
func fromStorage(err error, what string) *ServiceError {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return NewNotFoundError(what + " not found")
	case errors.Is(err, storage.ErrConflict):
		return NewConflictError(what + " already exists")
	case errors.Is(err, storage.ErrInvalidReference):
		return &ServiceError{
			Code:       models.ErrorCodeValidation,
			Message:    "referenced record does not exist",
			StatusCode: http.StatusBadRequest,
			Err:        err,
		}
	default:
		return NewInternalError("storage operation failed", err)
	}
}

// Common authorization failures
var (
	errAuthRequired = NewUnauthorizedError("Authentication required")
	errForbidden    = NewForbiddenError("You are not allowed to perform this operation")
)
