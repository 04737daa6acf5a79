// Package apperr defines the error kinds surfaced by the ledger, payment,
// coupon, purchase and session components. Callers branch on Kind, never on
// the message text.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	InvalidAmount       Kind = "invalid_amount"
	InsufficientBalance Kind = "insufficient_balance"
	NotFound            Kind = "not_found"
	Expired             Kind = "expired"
	BelowMinimum        Kind = "below_minimum"
	LimitReached        Kind = "limit_reached"
	AlreadyRedeemed     Kind = "already_redeemed"
	SignatureMismatch   Kind = "signature_mismatch"
	ItemNotPriced       Kind = "item_not_priced"
	Unauthorized        Kind = "unauthorized"

	Forbidden   Kind = "forbidden"
	Invalid     Kind = "invalid"
	Conflict    Kind = "conflict"
	Unavailable Kind = "unavailable"
	Internal    Kind = "internal"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return Internal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether the failure was transient (store or gateway
// unavailable) and the caller may retry with backoff.
func Retryable(err error) bool {
	return IsKind(err, Unavailable)
}

// Message returns the user-facing message of the first *Error in err's chain.
func Message(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
