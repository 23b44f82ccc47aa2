package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
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

// Is matches errors by code so clones of a predefined error compare equal to it.
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
)

// Workflow errors surfaced by the fulfillment engine.
var (
	ErrInvalidPhase               = New("INVALID_PHASE", http.StatusBadRequest, "invalid phase")
	ErrFrameRequired              = New("FRAME_REQUIRED", http.StatusBadRequest, "frame selection is required")
	ErrStudentNotFound            = New("STUDENT_NOT_FOUND", http.StatusNotFound, "student not found")
	ErrFrameNotFound              = New("FRAME_NOT_FOUND", http.StatusNotFound, "frame not found")
	ErrFrameUnavailable           = New("FRAME_UNAVAILABLE", http.StatusConflict, "frame is not available")
	ErrConcurrentModification     = New("CONCURRENT_MODIFICATION", http.StatusConflict, "record was modified concurrently")
	ErrFrameRetired               = New("FRAME_RETIRED", http.StatusConflict, "frame is lost or damaged")
	ErrFrameNotAllocatedToStudent = New("FRAME_NOT_ALLOCATED_TO_STUDENT", http.StatusUnprocessableEntity, "frame is not allocated to student")
	ErrAllocatedFrameMismatch     = New("ALLOCATED_FRAME_MISMATCH", http.StatusUnprocessableEntity, "student allocation is inconsistent")
)

// Category groups error codes by how callers are expected to react.
type Category string

const (
	CategoryValidation  Category = "validation"
	CategoryConflict    Category = "conflict"
	CategoryConsistency Category = "consistency"
	CategoryInternal    Category = "internal"
)

// CategoryOf classifies an error for logging and metrics.
func CategoryOf(err error) Category {
	appErr := FromError(err)
	if appErr == nil {
		return ""
	}
	switch appErr.Code {
	case ErrFrameNotAllocatedToStudent.Code, ErrAllocatedFrameMismatch.Code:
		return CategoryConsistency
	case ErrFrameUnavailable.Code, ErrConcurrentModification.Code, ErrFrameRetired.Code, ErrConflict.Code:
		return CategoryConflict
	case ErrInternal.Code:
		return CategoryInternal
	}
	if appErr.Status >= http.StatusInternalServerError {
		return CategoryInternal
	}
	return CategoryValidation
}

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
