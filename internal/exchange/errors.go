package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies exchange failures. Recorded on FAILED orders.
type ErrorKind string

const (
	KindInsufficientBalance ErrorKind = "InsufficientBalance"
	KindBelowMinNotional    ErrorKind = "BelowMinNotional"
	KindInvalidSymbol       ErrorKind = "InvalidSymbol"
	KindInvalidApiKey       ErrorKind = "InvalidApiKey"
	KindRateLimited         ErrorKind = "RateLimited"
	KindExchangeReject      ErrorKind = "ExchangeReject"
	KindNetworkTimeout      ErrorKind = "NetworkTimeout"
	KindBalanceTimeout      ErrorKind = "BalanceTimeout"
	KindSkippedBySizing     ErrorKind = "SkippedBySizing"
	KindTimeout             ErrorKind = "Timeout"
)

// Error is a typed exchange failure
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps an error with a kind
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the error kind, classifying raw errors by message when no
// typed error is present
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var exErr *Error
	if errors.As(err, &exErr) {
		return exErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetworkTimeout
	}

	return classifyMessage(err.Error())
}

// classifyMessage maps Binance error codes and common network failures to
// kinds. Codes per the Binance API error reference.
func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "-2010") && strings.Contains(lower, "insufficient"),
		strings.Contains(lower, "insufficient balance"):
		return KindInsufficientBalance
	case strings.Contains(msg, "-1013"), strings.Contains(lower, "min_notional"),
		strings.Contains(lower, "notional"):
		return KindBelowMinNotional
	case strings.Contains(msg, "-1121"), strings.Contains(lower, "invalid symbol"):
		return KindInvalidSymbol
	case strings.Contains(msg, "-2014"), strings.Contains(msg, "-2015"),
		strings.Contains(lower, "api-key"), strings.Contains(lower, "signature"):
		return KindInvalidApiKey
	case strings.Contains(msg, "-1003"), strings.Contains(msg, "-1015"),
		strings.Contains(lower, "too many requests"), strings.Contains(lower, "rate limit"):
		return KindRateLimited
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "connection refused"), strings.Contains(lower, "connection reset"):
		return KindNetworkTimeout
	default:
		return KindExchangeReject
	}
}

// IsRetryable reports whether the failure is transient. Rejections and
// credential problems never are.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindNetworkTimeout:
		return true
	default:
		return false
	}
}
