package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable, enumerated category of a failure surfaced by the core.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindRateUnavailable   ErrorKind = "RATE_UNAVAILABLE"
	KindAmountOutOfRange  ErrorKind = "AMOUNT_OUT_OF_RANGE"
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindAccountInactive   ErrorKind = "ACCOUNT_INACTIVE"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindUnauthorized      ErrorKind = "UNAUTHORIZED"
	KindTenantMismatch    ErrorKind = "TENANT_MISMATCH"
	KindInvalidStatus     ErrorKind = "INVALID_STATUS"
	KindWrongLevel        ErrorKind = "WRONG_LEVEL"
	KindAlreadyApproved   ErrorKind = "ALREADY_APPROVED"
	KindAlreadyRedeemed   ErrorKind = "ALREADY_REDEEMED"
	KindExpired           ErrorKind = "EXPIRED"
	KindTokenMalformed    ErrorKind = "TOKEN_MALFORMED"
	KindTokenInvalid      ErrorKind = "TOKEN_INVALID"
	KindTokenExpired      ErrorKind = "TOKEN_EXPIRED"
	KindNameMismatch      ErrorKind = "NAME_MISMATCH"
	KindConflict          ErrorKind = "CONFLICT"
	KindContention        ErrorKind = "CONTENTION"
	KindLedgerError       ErrorKind = "LEDGER_ERROR"
	KindStoreUnavailable  ErrorKind = "STORE_UNAVAILABLE"
	KindInternal          ErrorKind = "INTERNAL"
)

// DomainError carries a kind plus an optional human message and cause.
type DomainError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same kind, so callers can use
// errors.Is(err, models.ErrNotFound) regardless of message or cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation        = &DomainError{Kind: KindValidation}
	ErrRateUnavailable   = &DomainError{Kind: KindRateUnavailable}
	ErrAmountOutOfRange  = &DomainError{Kind: KindAmountOutOfRange}
	ErrInsufficientFunds = &DomainError{Kind: KindInsufficientFunds}
	ErrAccountInactive   = &DomainError{Kind: KindAccountInactive}
	ErrNotFound          = &DomainError{Kind: KindNotFound}
	ErrUnauthorized      = &DomainError{Kind: KindUnauthorized}
	ErrTenantMismatch    = &DomainError{Kind: KindTenantMismatch}
	ErrInvalidStatus     = &DomainError{Kind: KindInvalidStatus}
	ErrWrongLevel        = &DomainError{Kind: KindWrongLevel}
	ErrAlreadyApproved   = &DomainError{Kind: KindAlreadyApproved}
	ErrAlreadyRedeemed   = &DomainError{Kind: KindAlreadyRedeemed}
	ErrExpired           = &DomainError{Kind: KindExpired}
	ErrTokenMalformed    = &DomainError{Kind: KindTokenMalformed}
	ErrTokenInvalid      = &DomainError{Kind: KindTokenInvalid}
	ErrTokenExpired      = &DomainError{Kind: KindTokenExpired}
	ErrNameMismatch      = &DomainError{Kind: KindNameMismatch}
	ErrConflict          = &DomainError{Kind: KindConflict}
	ErrContention        = &DomainError{Kind: KindContention}
	ErrLedger            = &DomainError{Kind: KindLedgerError}
	ErrStoreUnavailable  = &DomainError{Kind: KindStoreUnavailable}
	ErrInternal          = &DomainError{Kind: KindInternal}
)

// NewError builds a DomainError with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind to an underlying cause.
func WrapError(kind ErrorKind, err error, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err, or KindInternal for errors the core did not classify.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// ErrDuplicateCode is wrapped by Conflict errors when a secret code is already live in the tenant.
var ErrDuplicateCode = errors.New("secret code already in use")
