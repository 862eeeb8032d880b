package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the ledger can return.
type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindNotFound    ErrorKind = "not_found"
	KindState       ErrorKind = "state"
	KindConcurrency ErrorKind = "concurrency"
	KindMandate     ErrorKind = "mandate"
	KindIntegrity   ErrorKind = "integrity"
)

// Retryable reports whether retrying the same unit of work may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindConcurrency
}

var (
	ErrInvalidAmount          = errors.New("amount must be greater than zero")
	ErrInvalidSelector        = errors.New("exactly one of units, amount or all_units is required")
	ErrInvalidUnits           = errors.New("units must be greater than zero")
	ErrInvalidNav             = errors.New("nav must be greater than zero")
	ErrInvalidFrequency       = errors.New("invalid frequency")
	ErrInvalidPaymentMode     = errors.New("invalid payment mode")
	ErrInvalidFinancialYear   = errors.New("invalid financial year")
	ErrInvalidDateRange       = errors.New("end date is before start date")
	ErrSameScheme             = errors.New("source and target scheme are the same")
	ErrFolioOwnership         = errors.New("folio does not belong to investor")
	ErrValidationFailed       = errors.New("request validation failed")
	ErrSchemeNotFound         = errors.New("scheme not found")
	ErrFolioNotFound          = errors.New("folio not found")
	ErrRegistrationNotFound   = errors.New("registration not found")
	ErrMandateNotFound        = errors.New("mandate not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrSchemeClosedForInvest  = errors.New("scheme closed for investment")
	ErrSchemeClosedForRedeem  = errors.New("scheme closed for redemption")
	ErrBelowMinimumInvestment = errors.New("below minimum investment")
	ErrInsufficientUnits      = errors.New("insufficient units")
	ErrNothingToRedeem        = errors.New("nothing to redeem")
	ErrInvalidIdcwOption      = errors.New("idcw option must be payout or reinvestment")
	ErrNoUnitsForIdcw         = errors.New("folio holds no units on the record date")
	ErrRegistrationNotActive  = errors.New("registration not active")
	ErrInvalidTransition      = errors.New("invalid registration status transition")
	ErrLockTimeout            = errors.New("lock wait timeout")
	ErrDeadlock               = errors.New("deadlock detected")
	ErrMandateInactive        = errors.New("mandate not active")
	ErrMandateOverLimit       = errors.New("amount exceeds mandate limit")
	ErrMandateExpired         = errors.New("mandate expired")
	ErrLotUnderflow           = errors.New("redemption exceeds available purchase lots")
	ErrUnpairedLeg            = errors.New("paired transaction leg missing")
)

// Error is the typed failure returned by every ledger operation.
// Reason is one of the sentinel errors above so callers can branch with errors.Is.
type Error struct {
	Kind   ErrorKind
	Reason error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %v: %s", e.Kind, e.Reason, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Reason
}

func newError(kind ErrorKind, reason error, format string, args ...any) *Error {
	detail := format
	if len(args) > 0 {
		detail = fmt.Sprintf(format, args...)
	}
	return &Error{Kind: kind, Reason: reason, Detail: detail}
}

func ValidationError(reason error, format string, args ...any) *Error {
	return newError(KindValidation, reason, format, args...)
}

func NotFoundError(reason error, format string, args ...any) *Error {
	return newError(KindNotFound, reason, format, args...)
}

func StateError(reason error, format string, args ...any) *Error {
	return newError(KindState, reason, format, args...)
}

func ConcurrencyError(reason error, format string, args ...any) *Error {
	return newError(KindConcurrency, reason, format, args...)
}

func MandateError(reason error, format string, args ...any) *Error {
	return newError(KindMandate, reason, format, args...)
}

func IntegrityError(reason error, format string, args ...any) *Error {
	return newError(KindIntegrity, reason, format, args...)
}

// KindOf returns the kind of a ledger error, or "" for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
