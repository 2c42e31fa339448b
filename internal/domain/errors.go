package domain

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeTransient   ErrorType = "transient"
	ErrorTypeCapability  ErrorType = "capability"
	ErrorTypeBreakerOpen ErrorType = "breaker_open"
	ErrorTypeInternal    ErrorType = "internal"
)

// Error is the structured error carried across package boundaries. Type
// drives caller decisions, Details carry context for logs and advisors.
type Error struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause}
}

func NewNotFoundError(resource, id string) *Error {
	return &Error{
		Type:    ErrorTypeNotFound,
		Message: fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{"resource": resource, "id": id},
	}
}

func NewValidationError(message string) *Error {
	return newError(ErrorTypeValidation, message, nil)
}

func NewConflictError(message string, cause error) *Error {
	return newError(ErrorTypeConflict, message, cause)
}

func NewTransientError(message string, cause error) *Error {
	return newError(ErrorTypeTransient, message, cause)
}

func NewCapabilityError(nodeType string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeCapability,
		Message: fmt.Sprintf("capability %s failed", nodeType),
		Details: map[string]interface{}{"node_type": nodeType},
		Cause:   cause,
	}
}

func NewInternalError(message string, cause error) *Error {
	return newError(ErrorTypeInternal, message, cause)
}

var (
	ErrNotFound           = errors.New("resource not found")
	ErrBreakerOpen        = errors.New("circuit breaker is open")
	ErrTooManyRequests    = errors.New("too many requests in half-open state")
	ErrCancelled          = errors.New("execution cancelled")
	ErrAlreadyCompleted   = errors.New("execution already completed")
	ErrCapabilityNotFound = errors.New("capability not registered")
	ErrLockNotAcquired    = errors.New("lock not acquired")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrClosed             = errors.New("component closed")
)

func typeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrCapabilityNotFound) {
		return true
	}
	t, ok := typeOf(err)
	return ok && t == ErrorTypeNotFound
}

func IsValidation(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeValidation
}

func IsConflict(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeConflict
}

func IsTransient(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeTransient
}

func IsCapabilityFailure(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeCapability
}

func IsBreakerOpen(err error) bool {
	if errors.Is(err, ErrBreakerOpen) {
		return true
	}
	t, ok := typeOf(err)
	return ok && t == ErrorTypeBreakerOpen
}
