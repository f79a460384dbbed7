package executor

import "errors"

// Order failures split into two families the caller can tell apart: user
// errors that require changing the order, and transient errors that are safe
// to retry after a delay.
var (
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidSide          = errors.New("side must be buy or sell")
	ErrUnknownSymbol        = errors.New("symbol is not a tradable pair")
	ErrInsufficientBalance  = errors.New("insufficient cash balance")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
	ErrPriceUnavailable     = errors.New("no usable price for symbol")
	ErrLockTimeout          = errors.New("timed out waiting for account lock")
)

// Retryable reports whether the caller may resubmit the same order unchanged
// after a short delay.
func Retryable(err error) bool {
	return errors.Is(err, ErrPriceUnavailable) || errors.Is(err, ErrLockTimeout)
}

// UserError reports whether the order itself must change before resubmission.
func UserError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidSide) ||
		errors.Is(err, ErrUnknownSymbol) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientHoldings)
}
