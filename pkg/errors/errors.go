package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the base interface for all application errors
type AppError interface {
	error
	HTTPStatus() int
	Code() string
}

// Kind classifies an engine failure.
type Kind string

const (
	KindWorkflowNotFound            Kind = "WORKFLOW_NOT_FOUND"
	KindRequestNotFound             Kind = "REQUEST_NOT_FOUND"
	KindNoStepsDefined              Kind = "NO_STEPS_DEFINED"
	KindConditionUnsatisfiable      Kind = "CONDITION_UNSATISFIABLE"
	KindInvalidTransition           Kind = "INVALID_TRANSITION"
	KindNotCurrentApprover          Kind = "NOT_CURRENT_APPROVER"
	KindDelegationNotAllowed        Kind = "DELEGATION_NOT_ALLOWED"
	KindRevisionLimitExceeded       Kind = "REVISION_LIMIT_EXCEEDED"
	KindConcurrentModification      Kind = "CONCURRENT_MODIFICATION"
	KindStoreUnavailable            Kind = "STORE_UNAVAILABLE"
	KindNotificationDeliveryFailure Kind = "NOTIFICATION_DELIVERY_FAILURE"
	KindApproverUnresolved          Kind = "APPROVER_UNRESOLVED"
)

var defaultMessages = map[Kind]string{
	KindWorkflowNotFound:            "workflow not found",
	KindRequestNotFound:             "approval request not found",
	KindNoStepsDefined:              "workflow has no steps defined",
	KindConditionUnsatisfiable:      "mandatory step conditions are not satisfied",
	KindInvalidTransition:           "invalid state transition",
	KindNotCurrentApprover:          "actor is not the current approver",
	KindDelegationNotAllowed:        "delegation not allowed",
	KindRevisionLimitExceeded:       "revision limit exceeded",
	KindConcurrentModification:      "request was modified concurrently",
	KindStoreUnavailable:            "store unavailable",
	KindNotificationDeliveryFailure: "notification delivery failed",
	KindApproverUnresolved:          "approver could not be resolved",
}

// Sentinels for errors.Is matching. Any *Error with the same Kind matches.
var (
	ErrWorkflowNotFound            = &Error{Kind: KindWorkflowNotFound}
	ErrRequestNotFound             = &Error{Kind: KindRequestNotFound}
	ErrNoStepsDefined              = &Error{Kind: KindNoStepsDefined}
	ErrConditionUnsatisfiable      = &Error{Kind: KindConditionUnsatisfiable}
	ErrInvalidTransition           = &Error{Kind: KindInvalidTransition}
	ErrNotCurrentApprover          = &Error{Kind: KindNotCurrentApprover}
	ErrDelegationNotAllowed        = &Error{Kind: KindDelegationNotAllowed}
	ErrRevisionLimitExceeded       = &Error{Kind: KindRevisionLimitExceeded}
	ErrConcurrentModification      = &Error{Kind: KindConcurrentModification}
	ErrStoreUnavailable            = &Error{Kind: KindStoreUnavailable}
	ErrNotificationDeliveryFailure = &Error{Kind: KindNotificationDeliveryFailure}
	ErrApproverUnresolved          = &Error{Kind: KindApproverUnresolved}
)

// Error is a typed engine error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindWorkflowNotFound, KindRequestNotFound:
		return http.StatusNotFound
	case KindNoStepsDefined, KindConditionUnsatisfiable, KindRevisionLimitExceeded, KindApproverUnresolved:
		return http.StatusUnprocessableEntity
	case KindInvalidTransition, KindConcurrentModification:
		return http.StatusConflict
	case KindNotCurrentApprover, KindDelegationNotAllowed:
		return http.StatusForbidden
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Code() string {
	return string(e.Kind)
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient store failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// ValidationError represents invalid input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func (e *ValidationError) Code() string {
	return "VALIDATION_ERROR"
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// PermissionError represents an actor acting outside their role on a request
type PermissionError struct {
	Action   string
	Resource string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: cannot %s %s", e.Action, e.Resource)
}

func (e *PermissionError) HTTPStatus() int {
	return http.StatusForbidden
}

func (e *PermissionError) Code() string {
	return "PERMISSION_DENIED"
}

// NewPermissionError creates a new PermissionError
func NewPermissionError(action, resource string) *PermissionError {
	return &PermissionError{Action: action, Resource: resource}
}

// GetHTTPStatus returns the HTTP status code for an error
// Returns 500 if the error doesn't implement AppError
func GetHTTPStatus(err error) int {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// GetErrorCode returns the error code for an error
// Returns "INTERNAL_ERROR" if the error doesn't implement AppError
func GetErrorCode(err error) string {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return "INTERNAL_ERROR"
}

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an error to an ErrorResponse
func ToResponse(err error) ErrorResponse {
	return ErrorResponse{
		Code:    GetErrorCode(err),
		Message: err.Error(),
	}
}
