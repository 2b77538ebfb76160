package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation             ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound               ErrorType = "NOT_FOUND"
	ErrorTypeInvalidStateTransition ErrorType = "INVALID_STATE_TRANSITION"
	ErrorTypeConflict               ErrorType = "CONFLICT"
	ErrorTypeRefundExceedsAvailable ErrorType = "REFUND_EXCEEDS_AVAILABLE"
	ErrorTypeDriverUnavailable      ErrorType = "DRIVER_UNAVAILABLE"
	ErrorTypePaymentDeclined        ErrorType = "PAYMENT_DECLINED"
	ErrorTypeExternal               ErrorType = "EXTERNAL_ERROR"
	ErrorTypeStorage                ErrorType = "STORAGE_ERROR"
	ErrorTypeInternal               ErrorType = "INTERNAL_ERROR"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidDate      ErrorCode = "INVALID_DATE"
	ErrCodeInvalidDuration  ErrorCode = "INVALID_DURATION_UNIT"
	ErrCodeInvalidFilter    ErrorCode = "INVALID_FILTER"

	ErrCodeBookingNotFound   ErrorCode = "BOOKING_NOT_FOUND"
	ErrCodeVehicleNotFound   ErrorCode = "VEHICLE_NOT_FOUND"
	ErrCodeDriverNotFound    ErrorCode = "DRIVER_NOT_FOUND"
	ErrCodePaymentNotFound   ErrorCode = "PAYMENT_NOT_FOUND"
	ErrCodeBookingConflict   ErrorCode = "BOOKING_CONFLICT"
	ErrCodeVehicleNotBooking ErrorCode = "VEHICLE_NOT_AVAILABLE"
	ErrCodeDuplicateNumber   ErrorCode = "DUPLICATE_BOOKING_NUMBER"

	ErrCodeInvalidTransition   ErrorCode = "INVALID_STATE_TRANSITION"
	ErrCodeCancellationClosed  ErrorCode = "CANCELLATION_WINDOW_CLOSED"
	ErrCodeNoShowTooEarly      ErrorCode = "NO_SHOW_BEFORE_START"
	ErrCodeStatusChanged       ErrorCode = "STATUS_CHANGED"
	ErrCodeBookingClosed       ErrorCode = "BOOKING_CLOSED"
	ErrCodeRefundExceeds       ErrorCode = "REFUND_EXCEEDS_AVAILABLE"
	ErrCodeRefundNotAllowed    ErrorCode = "REFUND_NOT_ALLOWED"
	ErrCodeDriverUnavailable   ErrorCode = "DRIVER_UNAVAILABLE"
	ErrCodePaymentDeclined     ErrorCode = "PAYMENT_DECLINED"
	ErrCodeGatewayUnavailable  ErrorCode = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayTimeout      ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeStorageFailure      ErrorCode = "STORAGE_FAILURE"
	ErrCodeIdentifierExhausted ErrorCode = "IDENTIFIER_EXHAUSTED"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {
		messages := make([]string, len(validationErrors.Errors))
		for i, err := range validationErrors.Errors {
			messages[i] = err.Message
		}
		return strings.Join(messages, "; ")
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on Type and Code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewInvalidStateTransitionError(entity, from, to string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidStateTransition,
		Code:       ErrCodeInvalidTransition,
		Message:    fmt.Sprintf("cannot move %s from %s to %s", entity, from, to),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{"from": from, "to": to},
	}
}

// NewBookingClosedError rejects money movement into a booking that will
// never run.
func NewBookingClosedError(status string) *AppError {
	return &AppError{
		Type:       ErrorTypeInvalidStateTransition,
		Code:       ErrCodeBookingClosed,
		Message:    fmt.Sprintf("cannot take payment for a %s booking", status),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]string{"status": status},
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewRefundExceedsAvailableError(requested, available int64) *AppError {
	return &AppError{
		Type:       ErrorTypeRefundExceedsAvailable,
		Code:       ErrCodeRefundExceeds,
		Message:    fmt.Sprintf("refund of %d exceeds refundable amount %d", requested, available),
		StatusCode: http.StatusUnprocessableEntity,
		Details:    map[string]int64{"requested": requested, "available": available},
	}
}

func NewDriverUnavailableError(driverID int64, status string) *AppError {
	return &AppError{
		Type:       ErrorTypeDriverUnavailable,
		Code:       ErrCodeDriverUnavailable,
		Message:    fmt.Sprintf("driver %d is %s", driverID, status),
		StatusCode: http.StatusConflict,
	}
}

func NewPaymentDeclinedError(gateway, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypePaymentDeclined,
		Code:       ErrCodePaymentDeclined,
		Message:    fmt.Sprintf("%s declined the payment: %s", gateway, reason),
		StatusCode: http.StatusPaymentRequired,
	}
}

func NewExternalServiceError(message string, code ErrorCode, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

func NewStorageError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeStorage,
		Code:       ErrCodeStorageFailure,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

var (
	ErrBookingNotFound = NewNotFoundError("Booking not found", ErrCodeBookingNotFound)
	ErrVehicleNotFound = NewNotFoundError("Vehicle not found", ErrCodeVehicleNotFound)
	ErrDriverNotFound  = NewNotFoundError("Driver not found", ErrCodeDriverNotFound)
	ErrPaymentNotFound = NewNotFoundError("Payment not found", ErrCodePaymentNotFound)

	ErrBookingConflict     = NewConflictError("vehicle is already booked for the requested period", ErrCodeBookingConflict)
	ErrVehicleNotAvailable = NewConflictError("vehicle not available", ErrCodeVehicleNotBooking)
	ErrDuplicateNumber     = NewConflictError("booking number already exists", ErrCodeDuplicateNumber)

	// ErrBookingStatusChanged is returned when a guarded write finds the
	// booking no longer in the status it was read in.
	ErrBookingStatusChanged = &AppError{
		Type:       ErrorTypeInvalidStateTransition,
		Code:       ErrCodeStatusChanged,
		Message:    "booking status changed concurrently",
		StatusCode: http.StatusUnprocessableEntity,
	}
)

// IsAppError unwraps err looking for an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsType(err error, t ErrorType) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Type == t
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
