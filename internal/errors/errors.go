package errors

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
)

// Common error kinds. Every error leaving a core operation is marked with
// exactly one of these so callers can branch with errors.Is.
var (
	ErrNotFound         = new(ErrCodeNotFound, "resource not found")
	ErrAlreadyExists    = new(ErrCodeAlreadyExists, "resource already exists")
	ErrVersionConflict  = new(ErrCodeVersionConflict, "version conflict")
	ErrValidation       = new(ErrCodeValidation, "validation error")
	ErrInvalidOperation = new(ErrCodeInvalidOperation, "invalid operation")
	ErrSystem           = new(ErrCodeSystemError, "system error")

	// Billing kinds
	ErrInvalidReading         = new(ErrCodeInvalidReading, "current reading is lower than previous reading")
	ErrOpenBillExists         = new(ErrCodeOpenBillExists, "client already has an open bill")
	ErrNonPositiveAmount      = new(ErrCodeNonPositiveAmount, "payment amount must be positive")
	ErrBillAlreadySettled     = new(ErrCodeBillAlreadySettled, "bill is already settled")
	ErrStaleBillState         = new(ErrCodeStaleBillState, "bill changed since it was read")
	ErrDuplicateAccountNumber = new(ErrCodeDuplicateAccountNumber, "account number already issued")
	ErrAccountNumberExhausted = new(ErrCodeAccountNumberExhausted, "could not issue a unique account number")
	ErrPersistence            = new(ErrCodePersistence, "persistence failure")

	// ErrDatabase is kept as an alias so storage helpers read naturally
	ErrDatabase = ErrPersistence

	// maps errors to http status codes
	statusCodeMap = map[error]int{
		ErrNotFound:               http.StatusNotFound,
		ErrAlreadyExists:          http.StatusConflict,
		ErrVersionConflict:        http.StatusConflict,
		ErrValidation:             http.StatusBadRequest,
		ErrInvalidOperation:       http.StatusBadRequest,
		ErrSystem:                 http.StatusInternalServerError,
		ErrInvalidReading:         http.StatusUnprocessableEntity,
		ErrOpenBillExists:         http.StatusConflict,
		ErrNonPositiveAmount:      http.StatusUnprocessableEntity,
		ErrBillAlreadySettled:     http.StatusConflict,
		ErrStaleBillState:         http.StatusConflict,
		ErrDuplicateAccountNumber: http.StatusConflict,
		ErrAccountNumberExhausted: http.StatusServiceUnavailable,
		ErrPersistence:            http.StatusInternalServerError,
	}

	// precedence is the lookup order for errors carrying more than one kind.
	// Billing kinds win over the generic ones they may wrap.
	precedence = []error{
		ErrAccountNumberExhausted,
		ErrStaleBillState,
		ErrInvalidReading,
		ErrOpenBillExists,
		ErrNonPositiveAmount,
		ErrBillAlreadySettled,
		ErrDuplicateAccountNumber,
		ErrValidation,
		ErrNotFound,
		ErrAlreadyExists,
		ErrVersionConflict,
		ErrInvalidOperation,
		ErrPersistence,
		ErrSystem,
	}
)

const (
	ErrCodeSystemError      = "system_error"
	ErrCodeNotFound         = "not_found"
	ErrCodeAlreadyExists    = "already_exists"
	ErrCodeVersionConflict  = "version_conflict"
	ErrCodeValidation       = "validation_error"
	ErrCodeInvalidOperation = "invalid_operation"

	ErrCodeInvalidReading         = "invalid_reading"
	ErrCodeOpenBillExists         = "open_bill_exists"
	ErrCodeNonPositiveAmount      = "non_positive_amount"
	ErrCodeBillAlreadySettled     = "bill_already_settled"
	ErrCodeStaleBillState         = "stale_bill_state"
	ErrCodeDuplicateAccountNumber = "duplicate_account_number"
	ErrCodeAccountNumberExhausted = "account_number_exhausted"
	ErrCodePersistence            = "persistence_failure"
)

// InternalError represents a domain error kind
type InternalError struct {
	Code    string // Machine-readable error code
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *InternalError) Error() string {
	if e.Err == nil {
		return e.DisplayError()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err.Error())
}

func (e *InternalError) DisplayError() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// Is implements error matching for wrapped errors
func (e *InternalError) Is(target error) bool {
	if target == nil {
		return false
	}

	t, ok := target.(*InternalError)
	if !ok {
		return errors.Is(e.Err, target)
	}

	return e.Code == t.Code
}

func new(code string, message string) *InternalError {
	return &InternalError{
		Code:    code,
		Message: message,
	}
}

func As(err error, target any) bool {
	return errors.As(err, target)
}

func Is(err, reference error) bool {
	return errors.Is(err, reference)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStaleBillState checks if a payment lost an optimistic concurrency race
func IsStaleBillState(err error) bool {
	return errors.Is(err, ErrStaleBillState)
}

// IsDuplicateAccountNumber checks if client creation collided on the account number
func IsDuplicateAccountNumber(err error) bool {
	return errors.Is(err, ErrDuplicateAccountNumber)
}

// kindOf returns the error kind err is marked with, nil when it carries none
func kindOf(err error) *InternalError {
	for _, kind := range precedence {
		if errors.Is(err, kind) {
			return kind.(*InternalError)
		}
	}
	return nil
}

// Code returns the machine readable code of the error kind err is marked with
func Code(err error) string {
	if kind := kindOf(err); kind != nil {
		return kind.Code
	}
	return ErrCodeSystemError
}

func HTTPStatusFromErr(err error) int {
	if kind := kindOf(err); kind != nil {
		return statusCodeMap[kind]
	}
	return http.StatusInternalServerError
}

// DisplayMessage returns the first non-empty hint attached to err, falling back to the error kind's message
func DisplayMessage(err error) string {
	for _, hint := range errors.GetAllHints(err) {
		if hint != "" {
			return hint
		}
	}
	if kind := kindOf(err); kind != nil {
		return kind.Message
	}
	return "An unexpected error occurred"
}
