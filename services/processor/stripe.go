package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeProcessor implements Processor on top of the Stripe API.
type StripeProcessor struct {
	client *client.API
}

// NewStripeProcessor creates a processor using its own client instance, not
// the package-level stripe.Key.
func NewStripeProcessor(secretKey string) *StripeProcessor {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &StripeProcessor{client: sc}
}

var _ Processor = (*StripeProcessor)(nil)

func (sp *StripeProcessor) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name: stripe.String(name),
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	cus, err := sp.client.Customers.New(params)
	if err != nil {
		return "", mapStripeError("create_customer", err)
	}
	return cus.ID, nil
}

func (sp *StripeProcessor) CreateSetupIntent(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", &Error{Op: "create_setup_intent", Err: ErrInvalidInput}
	}
	params := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		Usage:              stripe.String(string(stripe.SetupIntentUsageOffSession)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card", "us_bank_account"}),
	}
	params.Context = ctx

	si, err := sp.client.SetupIntents.New(params)
	if err != nil {
		return "", mapStripeError("create_setup_intent", err)
	}
	return si.ClientSecret, nil
}

func (sp *StripeProcessor) RetrievePaymentMethod(ctx context.Context, methodID string) (*MethodDetails, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx

	pm, err := sp.client.PaymentMethods.Get(methodID, params)
	if err != nil {
		return nil, mapStripeError("retrieve_payment_method", err)
	}
	return methodDetails(pm), nil
}

func methodDetails(pm *stripe.PaymentMethod) *MethodDetails {
	details := &MethodDetails{ID: pm.ID}
	switch {
	case pm.Card != nil:
		details.Type = "card"
		details.Brand = string(pm.Card.Brand)
		details.Last4 = pm.Card.Last4
		details.ExpMonth = int(pm.Card.ExpMonth)
		details.ExpYear = int(pm.Card.ExpYear)
	case pm.USBankAccount != nil:
		details.Type = "bank"
		details.Brand = pm.USBankAccount.BankName
		details.Last4 = pm.USBankAccount.Last4
	default:
		details.Type = string(pm.Type)
	}
	return details
}

// CreatePaymentIntent creates and confirms an intent in one call. Off-session
// requests never prompt the customer for authentication.
func (sp *StripeProcessor) CreatePaymentIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountCents <= 0 {
		return nil, &Error{Op: "create_payment_intent", Err: fmt.Errorf("%w: amount must be positive", ErrInvalidInput)}
	}
	if req.CustomerID == "" || req.PaymentMethodID == "" {
		return nil, &Error{Op: "create_payment_intent", Err: fmt.Errorf("%w: customer and payment method are required", ErrInvalidInput)}
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		Confirm:       stripe.Bool(true),
	}
	if req.OffSession {
		params.OffSession = stripe.Bool(true)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := sp.client.PaymentIntents.New(params)
	if err != nil {
		return nil, mapStripeError("create_payment_intent", err)
	}
	return toIntent(pi), nil
}

func (sp *StripeProcessor) RetrievePaymentIntent(ctx context.Context, intentID string) (*Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := sp.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, mapStripeError("retrieve_payment_intent", err)
	}
	return toIntent(pi), nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	intent := &Intent{ID: pi.ID, Status: string(pi.Status)}
	if pi.LastResponse != nil {
		intent.Raw = pi.LastResponse.RawJSON
	}
	return intent
}

// mapStripeError keeps stripe types out of the billing layer.
func mapStripeError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		pe := &Error{Op: op, Code: string(stripeErr.Code), Retryable: classify(err)}
		switch {
		case stripeErr.Type == stripe.ErrorTypeCard:
			pe.Err = fmt.Errorf("%w: %s", ErrDeclined, stripeErr.Msg)
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			pe.Err = fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Msg)
		case stripeErr.HTTPStatusCode == http.StatusBadRequest || stripeErr.HTTPStatusCode == http.StatusNotFound:
			pe.Err = fmt.Errorf("%w: %s", ErrInvalidInput, stripeErr.Msg)
		default:
			pe.Err = err
		}
		return pe
	}
	return &Error{Op: op, Retryable: classify(err), Err: err}
}
