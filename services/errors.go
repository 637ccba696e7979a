package services

import (
	"errors"
	"net/http"
)

// Error codes surfaced to API clients. Resource failures carry enough
// detail for the caller to reconcile without a re-fetch.
const (
	CodeInvalidStateTransition   = "INVALID_STATE_TRANSITION"
	CodeSlotUnavailable          = "SLOT_UNAVAILABLE"
	CodeSlotFull                 = "SLOT_FULL"
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodeConflictUnresolved       = "CONFLICT_UNRESOLVED"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeResourceReleaseMismatch  = "RESOURCE_RELEASE_MISMATCH"
	CodeStaleWrite               = "STALE_WRITE"
	CodeNotFound                 = "NOT_FOUND"
	CodeValidation               = "VALIDATION_ERROR"
	CodePaymentMismatch          = "PAYMENT_MISMATCH"
	CodePaymentExpired           = "PAYMENT_EXPIRED"
	CodeTechnicianNotInSlot      = "TECHNICIAN_NOT_IN_SLOT"
	CodeVehicleNotOwned          = "VEHICLE_NOT_OWNED"
	CodeConflictAlreadyResolved  = "CONFLICT_ALREADY_RESOLVED"
	CodeRequestAlreadyDecided    = "REQUEST_ALREADY_DECIDED"
	CodeDatabase                 = "DATABASE_ERROR"
)

// Error is a service-layer failure with a stable code and, for failed
// transitions, a snapshot of the unchanged state so clients can see
// why the operation was refused.
type Error struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *Error) Error() string {
	return e.Message
}

// WithDetail attaches a detail field and returns the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = map[string]interface{}{}
	}
	e.Details[key] = value
	return e
}

// HTTPStatus maps the error code to an HTTP response status
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeVehicleNotOwned:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeInvalidStateTransition, CodeSlotFull, CodeSlotUnavailable,
		CodeInsufficientStock, CodeConflictUnresolved,
		CodeResourceReleaseMismatch, CodeStaleWrite,
		CodePaymentMismatch, CodePaymentExpired,
		CodeTechnicianNotInSlot, CodeConflictAlreadyResolved,
		CodeRequestAlreadyDecided:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewError builds a service error
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// AsServiceError extracts a *Error from err, wrapping unknown errors
// as DATABASE_ERROR
func AsServiceError(err error) *Error {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return &Error{Code: CodeDatabase, Message: err.Error()}
}

// IsCode reports whether err is a service error with the given code
func IsCode(err error, code string) bool {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Code == code
	}
	return false
}
