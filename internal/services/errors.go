package services

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies a domain error for retry and HTTP mapping.
type ErrorCategory string

const (
	// CategoryValidation marks malformed input, rejected before any state
	// change; safe to retry after correction.
	CategoryValidation ErrorCategory = "validation"
	// CategoryConflict marks terminal outcomes that must not be retried
	// blindly (duplicate purchase, nickname space exhausted).
	CategoryConflict ErrorCategory = "conflict"
	// CategoryResource marks terminal, user-actionable outcomes.
	CategoryResource ErrorCategory = "resource"
	// CategoryInfrastructure marks transient storage failures; retry with
	// backoff. No partial mutation is ever visible for these.
	CategoryInfrastructure ErrorCategory = "infrastructure"
)

// DomainError carries a stable code and category alongside the message.
type DomainError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Cause    error
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is lets sentinel comparisons match on the stable code.
func (e *DomainError) Is(target error) bool {
	var de *DomainError
	if errors.As(target, &de) {
		return e.Code == de.Code
	}
	return false
}

// HTTPStatus maps the error onto the status the handler should send.
func (e *DomainError) HTTPStatus() int {
	switch e.Code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyPurchased:
		return http.StatusConflict
	case CodeSelfPurchase, CodeInsufficientBalance:
		return http.StatusBadRequest
	case CodeInvalidReferralCode, CodeValidationFailed:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeEmailTaken, CodeNicknameExhausted:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

const (
	CodeNotFound            = "NOT_FOUND"
	CodeSelfPurchase        = "SELF_PURCHASE"
	CodeAlreadyPurchased    = "ALREADY_PURCHASED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeInvalidReferralCode = "INVALID_REFERRAL_CODE"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeEmailTaken          = "EMAIL_ALREADY_REGISTERED"
	CodeNicknameExhausted   = "NICKNAME_EXHAUSTED"
	CodeForbidden           = "FORBIDDEN"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
)

var (
	ErrNotFound            = &DomainError{Category: CategoryResource, Code: CodeNotFound, Message: "listing not found"}
	ErrSelfPurchase        = &DomainError{Category: CategoryResource, Code: CodeSelfPurchase, Message: "cannot purchase own listing"}
	ErrAlreadyPurchased    = &DomainError{Category: CategoryConflict, Code: CodeAlreadyPurchased, Message: "listing already purchased"}
	ErrInsufficientBalance = &DomainError{Category: CategoryResource, Code: CodeInsufficientBalance, Message: "insufficient point balance"}
	ErrInvalidReferralCode = &DomainError{Category: CategoryValidation, Code: CodeInvalidReferralCode, Message: "referral code does not resolve to an account"}
	ErrEmailTaken          = &DomainError{Category: CategoryConflict, Code: CodeEmailTaken, Message: "email already registered"}
	ErrNicknameExhausted   = &DomainError{Category: CategoryConflict, Code: CodeNicknameExhausted, Message: "could not claim a unique nickname"}
	ErrForbidden           = &DomainError{Category: CategoryResource, Code: CodeForbidden, Message: "not the owner of this listing"}
)

func validationError(msg string) *DomainError {
	return &DomainError{Category: CategoryValidation, Code: CodeValidationFailed, Message: msg}
}

func storageError(op string, cause error) *DomainError {
	return &DomainError{
		Category: CategoryInfrastructure,
		Code:     CodeStorageUnavailable,
		Message:  op,
		Cause:    cause,
	}
}
