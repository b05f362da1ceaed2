package payments

import (
	"errors"
	"fmt"
)

// ErrPaymentNotFound indicates no payment record matches the session or
// payment-intent reference. The return path surfaces it as a 404; the
// webhook path logs and acknowledges it so the provider stops retrying.
var ErrPaymentNotFound = errors.New("payment not found")

// InvalidRequestError marks user-fixable input problems (400).
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

func invalidRequest(reason string) error {
	return &InvalidRequestError{Reason: reason}
}

// ProviderError wraps a failure talking to the payment provider. It is
// retryable by the caller (502); no local state is mutated when it occurs.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
