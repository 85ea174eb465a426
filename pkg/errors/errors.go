package errors

import (
	"errors"
	"fmt"
	"net/http"

	"walldraft/internal/domain"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeNotFound       ErrorType = "not_found"
	ErrorTypeUnauthorized   ErrorType = "unauthorized"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeQuotaExceeded  ErrorType = "quota_exceeded"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeInvalidSession ErrorType = "invalid_session"
	ErrorTypeInternal       ErrorType = "internal"
	ErrorTypeNetwork        ErrorType = "network"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"error"`
	Details    string                 `json:"details,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	StatusCode int                    `json:"-"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details ...string) *AppError {
	detail := ""
	if len(details) > 0 {
		detail = details[0]
	}
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		Details:    detail,
		StatusCode: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewForbiddenError creates a new forbidden error
func NewForbiddenError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewQuotaExceededError carries the limit numbers so clients can render an upgrade prompt.
func NewQuotaExceededError(q *domain.QuotaExceededError) *AppError {
	return &AppError{
		Type:    ErrorTypeQuotaExceeded,
		Message: "Plan limit reached",
		Fields: map[string]interface{}{
			"kind":     q.Kind,
			"limit":    q.Limit,
			"current":  q.Current,
			"planName": q.PlanName,
		},
		StatusCode: http.StatusPaymentRequired,
		Cause:      q,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewInvalidSessionError creates an error for operations on closed collaboration sessions
func NewInvalidSessionError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidSession,
		Message:    message,
		StatusCode: http.StatusGone,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// FromDomain maps a service error onto the HTTP error taxonomy. Invalid share tokens
// collapse into not found so callers cannot tell which check failed.
func FromDomain(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var quotaErr *domain.QuotaExceededError
	var validationErr *domain.ValidationError
	switch {
	case errors.As(err, &quotaErr):
		return NewQuotaExceededError(quotaErr)
	case errors.As(err, &validationErr):
		return NewValidationError(validationErr.Message, validationErr.Field)
	case errors.Is(err, domain.ErrDraftNotFound), errors.Is(err, domain.ErrInvalidToken):
		return NewNotFoundError("Draft not found")
	case errors.Is(err, domain.ErrPlanNotFound):
		return NewNotFoundError("Plan not found")
	case errors.Is(err, domain.ErrUserNotFound):
		return NewNotFoundError("User not found")
	case errors.Is(err, domain.ErrRequestNotFound):
		return NewNotFoundError("Plan upgrade request not found")
	case errors.Is(err, domain.ErrNotFound):
		return NewNotFoundError("Not found")
	case errors.Is(err, domain.ErrForbidden):
		return NewForbiddenError("Insufficient permission")
	case errors.Is(err, domain.ErrConflict):
		return NewConflictError(conflictMessage(err))
	case errors.Is(err, domain.ErrInvalidSession):
		return NewInvalidSessionError("Collaboration session is closed")
	default:
		return NewInternalError("Internal server error", err)
	}
}

func conflictMessage(err error) string {
	if err == nil || err == domain.ErrConflict {
		return "Conflict"
	}
	return err.Error()
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}
