// Package errcode defines the caller-visible failure taxonomy of the escrow ledger.
//
// Every rejected operation returns an *Error carrying one Code. The operation
// that produced it has no effect: no state change, no transfer.
package errcode

import (
	"errors"
	"fmt"
)

// Code identifies a class of rejected operation.
type Code string

const (
	InvalidAsset          Code = "InvalidAsset"
	InvalidSender         Code = "InvalidSender"
	InvalidAmount         Code = "InvalidAmount"
	InvalidPrice          Code = "InvalidPrice"
	InvalidDeadline       Code = "InvalidDeadline"
	InvalidOrder          Code = "InvalidOrder"
	OrderInactive         Code = "OrderInactive"
	InvalidWithdrawAmount Code = "InvalidWithdrawAmount"
	InvalidAddress        Code = "InvalidAddress"
	InvalidIndex          Code = "InvalidIndex"
	InsufficientFunds     Code = "InsufficientFunds"
	Unauthorized          Code = "Unauthorized"
	TransferFailed        Code = "TransferFailed"
)

// Error is a coded ledger rejection.
type Error struct {
	Code Code
	Msg  string
	Err  error // optional cause (e.g. bank failure)
}

func (e *Error) Error() string {
	switch {
	case e.Msg == "" && e.Err == nil:
		return string(e.Code)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrInvalidAsset          = &Error{Code: InvalidAsset}
	ErrInvalidSender         = &Error{Code: InvalidSender}
	ErrInvalidAmount         = &Error{Code: InvalidAmount}
	ErrInvalidPrice          = &Error{Code: InvalidPrice}
	ErrInvalidDeadline       = &Error{Code: InvalidDeadline}
	ErrInvalidOrder          = &Error{Code: InvalidOrder}
	ErrOrderInactive         = &Error{Code: OrderInactive}
	ErrInvalidWithdrawAmount = &Error{Code: InvalidWithdrawAmount}
	ErrInvalidAddress        = &Error{Code: InvalidAddress}
	ErrInvalidIndex          = &Error{Code: InvalidIndex}
	ErrInsufficientFunds     = &Error{Code: InsufficientFunds}
	ErrUnauthorized          = &Error{Code: Unauthorized}
	ErrTransferFailed        = &Error{Code: TransferFailed}
)

// New returns a coded error with a formatted message.
func New(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a coded error around cause.
func Wrap(code Code, cause error, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf extracts the code of err, or "" if err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
