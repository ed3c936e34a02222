// Package processor is the boundary to the external card processor. Billing
// code talks to the Processor interface; Stripe is the production adapter.
package processor

import (
	"context"
	"errors"
	"fmt"
)

// Payment intent statuses as reported by the processor.
const (
	StatusSucceeded             = "succeeded"
	StatusProcessing            = "processing"
	StatusRequiresAction        = "requires_action"
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresCapture       = "requires_capture"
	StatusCanceled              = "canceled"
)

// Processor is the narrow capability set the billing core needs.
type Processor interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	CreateSetupIntent(ctx context.Context, customerID string) (string, error)
	RetrievePaymentMethod(ctx context.Context, methodID string) (*MethodDetails, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error)
}

// MethodDetails describes a stored card or bank account.
type MethodDetails struct {
	ID       string
	Type     string // card or bank
	Brand    string
	Last4    string
	ExpMonth int
	ExpYear  int
}

// IntentRequest asks the processor to charge a stored method.
type IntentRequest struct {
	CustomerID      string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	// OffSession marks charges made without the customer present (autopay).
	OffSession     bool
	IdempotencyKey string
	Description    string
	Metadata       map[string]string
}

// Intent is the processor's view of a charge attempt.
type Intent struct {
	ID     string
	Status string
	Raw    []byte
}

// Succeeded reports whether funds were captured.
func (i *Intent) Succeeded() bool {
	return i != nil && i.Status == StatusSucceeded
}

// Error is returned for every failed processor call.
type Error struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("processor %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("processor %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinel causes wrapped by Error.
var (
	ErrDeclined      = errors.New("payment declined")
	ErrInvalidInput  = errors.New("invalid processor request")
	ErrUnavailable   = errors.New("processor unavailable")
	ErrNotConfigured = errors.New("processor not configured")
)
