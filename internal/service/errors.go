package service

import (
    "errors"
    "fmt"
)

// ValidationError reports a rejected input field.  It is returned before any
// persistence call is attempted.
type ValidationError struct {
    Field   string
    Message string
    Err     error // underlying rule, e.g. inventory.ErrCapacityExceeded
}

func (e *ValidationError) Error() string {
    return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, msg string) error {
    return &ValidationError{Field: field, Message: msg}
}

var (
    // ErrUnauthenticated is returned when a mutating call has no identity.
    ErrUnauthenticated = errors.New("authentication required")

    // ErrContactSupport marks a failure after a partial external effect,
    // such as a captured payment whose confirmation could not be stored.
    // Callers must not retry automatically.
    ErrContactSupport = errors.New("the operation was partially applied, please contact support")

    // ErrPaymentFailed is returned when the payment processor refused to
    // start a payment.  The reservation has been released again.
    ErrPaymentFailed = errors.New("payment could not be started")
)
