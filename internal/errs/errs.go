package errs

import (
	"errors"
	"fmt"
)

// Sentinel errors for access failures.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports user-correctable bad input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a specific field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InsufficientStockError reports that a reservation could not be satisfied.
// Available and Requested identify the first product that failed the check.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// InvalidTransitionError reports a disallowed order status transition.
// Normally indicates a race or a programming defect, not user error.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition from %s to %s", e.From, e.To)
}

// PaymentSessionError reports a failure to open a payment session with the
// provider. The order is left untouched and the session can be retried.
type PaymentSessionError struct {
	Err error
}

func (e *PaymentSessionError) Error() string {
	return fmt.Sprintf("payment session creation failed: %v", e.Err)
}

func (e *PaymentSessionError) Unwrap() error { return e.Err }

// VerificationError reports a transient failure talking to the provider's
// verification endpoint. Callers must not treat this as a failed payment.
type VerificationError struct {
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed: %v", e.Err)
}

func (e *VerificationError) Unwrap() error { return e.Err }
