// Package adapter maps tool operations onto KIS API calls: market data and
// account reads, and the order operations that mutate brokerage state. Every
// failure leaving this package is an *Error with a stable Kind; raw KIS
// errors never cross the adapter boundary.
package adapter

import (
	"errors"
	"fmt"
)

// Kind is a stable, machine-readable failure category.
type Kind string

const (
	KindAuthentication         Kind = "AUTHENTICATION_ERROR"
	KindInvalidArgument        Kind = "INVALID_ARGUMENT"
	KindInvalidStockCode       Kind = "INVALID_STOCK_CODE"
	KindMarketDataUnavailable  Kind = "MARKET_DATA_UNAVAILABLE"
	KindAccountDataUnavailable Kind = "ACCOUNT_DATA_UNAVAILABLE"
	KindOrderSubmissionFailed  Kind = "ORDER_SUBMISSION_FAILED"
	KindOrderNotFound          Kind = "ORDER_NOT_FOUND"
	KindOrderNotCancellable    Kind = "ORDER_NOT_CANCELLABLE"
)

// Error is the only error type adapters return.
type Error struct {
	Kind    Kind
	Message string
	Err     error // wrapped cause, for logs; never shown to the tool caller
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error keeping cause for diagnostics.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf extracts the Kind from err, if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
