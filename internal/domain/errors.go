package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"         // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"    // Authentication required
	EFORBIDDEN    = "forbidden"       // Permission denied
	ENOTFOUND     = "not_found"       // Resource not found
	ECONFLICT     = "conflict"        // Resource conflict (e.g., duplicate)
	EQUOTA        = "quota_exceeded"  // Monthly usage limit reached
	EPHASE        = "phase_violation" // Operation not allowed in the competition's current phase
	ERATELIMIT    = "rate_limit"      // Rate limit exceeded
	EUNAVAILABLE  = "unavailable"     // External collaborator failed
	EINTERNAL     = "internal"        // Internal server error
)

// Rejection reasons reported to clients alongside the error code.
const (
	ReasonPhaseClosed     = "phase_closed"
	ReasonWordCount       = "word_count_out_of_range"
	ReasonQuotaExceeded   = "quota_exceeded"
	ReasonAlreadyEntered  = "already_entered"
	ReasonNoCompetition   = "no_active_competition"
	ReasonInvalidWinners  = "invalid_winner_list"
	ReasonInvalidCriteria = "invalid_judging_criteria"
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "submission.submit")
	Message string // Human-readable message
	Reason  string // Optional typed rejection reason
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// ErrorReason returns the typed rejection reason, if any.
func ErrorReason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Rejected creates a validation error carrying a typed rejection reason.
func Rejected(op, reason, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
		Reason:  reason,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// PhaseViolation creates an error for an operation attempted outside its phase.
func PhaseViolation(op string, phase Phase, message string) *Error {
	return &Error{
		Code:    EPHASE,
		Op:      op,
		Message: fmt.Sprintf("%s (current phase: %s)", message, phase),
		Reason:  ReasonPhaseClosed,
	}
}

// QuotaExceeded creates an error for a consumed-out monthly counter.
func QuotaExceeded(op string, counter Counter, used, limit int64) *Error {
	return &Error{
		Code:    EQUOTA,
		Op:      op,
		Message: fmt.Sprintf("Monthly %s limit reached (%d of %d used)", counter.Label(), used, limit),
		Reason:  ReasonQuotaExceeded,
	}
}

// Unavailable creates an error for a failed external collaborator.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// AddFieldError adds a field error to an existing validation error.
// If err is not a ValidationError, returns a new one.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}
