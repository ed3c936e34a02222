package processor

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-process Processor for tests and local development. It
// remembers idempotency keys the way the real API does.
type Fake struct {
	mu sync.Mutex

	Methods map[string]MethodDetails
	// NextStatus is the status returned by the next created intent; empty means succeeded.
	NextStatus string
	// Err, when set, is returned by every call.
	Err error

	Intents      map[string]*Intent
	Requests     []IntentRequest
	byKey        map[string]*Intent
	seq          int
	SetupCalls   int
	CustomerSeen []string
}

// NewFake returns a fake with no stored methods.
func NewFake() *Fake {
	return &Fake{
		Methods: map[string]MethodDetails{},
		Intents: map[string]*Intent{},
		byKey:   map[string]*Intent{},
	}
}

// AddCard registers a card the fake will return from RetrievePaymentMethod.
func (f *Fake) AddCard(id, brand, last4 string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Methods[id] = MethodDetails{ID: id, Type: "card", Brand: brand, Last4: last4, ExpMonth: 12, ExpYear: 2030}
}

// SetIntentStatus changes the status a later RetrievePaymentIntent reports.
func (f *Fake) SetIntentStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in, ok := f.Intents[id]; ok {
		in.Status = status
	}
}

func (f *Fake) CreateCustomer(_ context.Context, name, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.seq++
	f.CustomerSeen = append(f.CustomerSeen, name)
	return fmt.Sprintf("cus_fake_%d", f.seq), nil
}

func (f *Fake) CreateSetupIntent(_ context.Context, customerID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	f.SetupCalls++
	return "seti_secret_" + customerID, nil
}

func (f *Fake) RetrievePaymentMethod(_ context.Context, methodID string) (*MethodDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	m, ok := f.Methods[methodID]
	if !ok {
		return nil, &Error{Op: "retrieve_payment_method", Code: "resource_missing", Err: ErrInvalidInput}
	}
	return &m, nil
}

func (f *Fake) CreatePaymentIntent(_ context.Context, req IntentRequest) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if req.IdempotencyKey != "" {
		if in, ok := f.byKey[req.IdempotencyKey]; ok {
			cp := *in
			return &cp, nil
		}
	}
	f.Requests = append(f.Requests, req)
	f.seq++
	status := f.NextStatus
	if status == "" {
		status = StatusSucceeded
	}
	in := &Intent{ID: fmt.Sprintf("pi_fake_%d", f.seq), Status: status, Raw: []byte(`{"object":"payment_intent"}`)}
	f.Intents[in.ID] = in
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = in
	}
	cp := *in
	return &cp, nil
}

func (f *Fake) RetrievePaymentIntent(_ context.Context, intentID string) (*Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	in, ok := f.Intents[intentID]
	if !ok {
		return nil, &Error{Op: "retrieve_payment_intent", Code: "resource_missing", Err: ErrInvalidInput}
	}
	cp := *in
	return &cp, nil
}

// Disabled is used when no processor key is configured. Every call fails.
type Disabled struct{}

func (Disabled) CreateCustomer(context.Context, string, string) (string, error) {
	return "", &Error{Op: "create_customer", Err: ErrNotConfigured}
}

func (Disabled) CreateSetupIntent(context.Context, string) (string, error) {
	return "", &Error{Op: "create_setup_intent", Err: ErrNotConfigured}
}

func (Disabled) RetrievePaymentMethod(context.Context, string) (*MethodDetails, error) {
	return nil, &Error{Op: "retrieve_payment_method", Err: ErrNotConfigured}
}

func (Disabled) CreatePaymentIntent(context.Context, IntentRequest) (*Intent, error) {
	return nil, &Error{Op: "create_payment_intent", Err: ErrNotConfigured}
}

func (Disabled) RetrievePaymentIntent(context.Context, string) (*Intent, error) {
	return nil, &Error{Op: "retrieve_payment_intent", Err: ErrNotConfigured}
}
