package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInvalidToken   = errors.New("invalid token")
	ErrInvalidSession = errors.New("invalid session")
	ErrQuotaExceeded  = errors.New("quota exceeded")

	ErrDraftNotFound   = fmt.Errorf("draft %w", ErrNotFound)
	ErrPlanNotFound    = fmt.Errorf("plan %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrRequestNotFound = fmt.Errorf("plan upgrade request %w", ErrNotFound)
)

// ValidationError represents a validation error with field and message information.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

// QuotaExceededError carries the numbers the client needs to render an upgrade prompt.
type QuotaExceededError struct {
	Kind     ResourceKind
	Limit    int
	Current  int
	PlanName string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded on plan %q: %d of %d used", e.Kind, e.PlanName, e.Current, e.Limit)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match.
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}
