package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so callers can use errors.Is against the predefined values.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
	ErrInvalidTransition  = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrConcurrency        = New("CONCURRENCY_CONFLICT", http.StatusConflict, "concurrent update detected, retry later")
)

// Business-rule violations raised by the capacity and certification engine.
var (
	ErrRoleIncompatible      = New("ROLE_INCOMPATIBLE", http.StatusUnprocessableEntity, "instructor cannot act in the requested role")
	ErrModalityMismatch      = New("MODALITY_MISMATCH", http.StatusUnprocessableEntity, "role is not required by the placement modality")
	ErrCapacityExceeded      = New("CAPACITY_EXCEEDED", http.StatusUnprocessableEntity, "instructor monthly capacity exceeded")
	ErrDuplicateAssignment   = New("DUPLICATE_ASSIGNMENT", http.StatusConflict, "an active assignment already exists for this placement and role")
	ErrNotReassignable       = New("NOT_REASSIGNABLE", http.StatusConflict, "assignment cannot be reassigned")
	ErrExceedsProgrammed     = New("EXCEEDS_PROGRAMMED", http.StatusUnprocessableEntity, "executed hours would exceed programmed hours")
	ErrInstructorUnavailable = New("INSTRUCTOR_UNAVAILABLE", http.StatusUnprocessableEntity, "instructor unavailable")
	ErrDuplicateEntry        = New("DUPLICATE_ENTRY", http.StatusConflict, "an hour entry already exists for this date and activity")
	ErrHoursMismatchModality = New("HOURS_MISMATCH_MODALITY", http.StatusUnprocessableEntity, "hours do not match the modality rule")
	ErrNotPending            = New("NOT_PENDING", http.StatusConflict, "entry is not pending")
	ErrPrerequisitesNotMet   = New("PREREQUISITES_NOT_MET", http.StatusUnprocessableEntity, "certification prerequisites not met")
	ErrAlreadyCertified      = New("ALREADY_CERTIFIED", http.StatusConflict, "placement already has an open or granted certification")
	ErrLimitReached          = New("LIMIT_REACHED", http.StatusConflict, "maximum number of records reached")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithDetails returns a copy of the error carrying itemized details for the caller.
func WithDetails(err *Error, message string, details interface{}) *Error {
	clone := Clone(err, message)
	if clone != nil {
		clone.Details = details
	}
	return clone
}

// Internal wraps an unexpected failure as an internal error with context.
func Internal(err error, message string) *Error {
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, message)
}
