package billing_test

import (
	"errors"
	"testing"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/billing"
	"danceportal_go/services/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneTimePaymentCreditsLedger(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	user := f.user(fam.ID)
	pm := f.attach(fam.ID, "pm_card")
	_, err := f.svc.PostCharge(f.ctx, fam.ID, models.ChargeTuition, 5000, "Tuition")
	require.NoError(t, err)

	payment, err := f.svc.OneTimePayment(f.ctx, billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 5000})
	require.NoError(t, err)
	assert.Equal(t, processor.StatusSucceeded, payment.Status)
	assert.Equal(t, models.PaymentSourceOnline, payment.Source)
	assert.NotEmpty(t, payment.ProcessorPaymentID)
	assert.Zero(t, f.balance(fam.ID))

	require.Len(t, f.proc.Requests, 1)
	req := f.proc.Requests[0]
	assert.Equal(t, "cus_smith", req.CustomerID)
	assert.Equal(t, "pm_card", req.PaymentMethodID)
	assert.Equal(t, "usd", req.Currency)
	assert.False(t, req.OffSession)
	assert.NotEmpty(t, req.IdempotencyKey)
}

func TestOneTimePaymentPostingPolicy(t *testing.T) {
	t.Run("optimistic credits pending intents", func(t *testing.T) {
		f := newFixture(t)
		fam := f.customerFamily("smith")
		user := f.user(fam.ID)
		pm := f.attach(fam.ID, "pm_card")
		f.proc.NextStatus = processor.StatusRequiresAction

		payment, err := f.svc.OneTimePayment(f.ctx, billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 3000})
		require.NoError(t, err)
		assert.Equal(t, processor.StatusRequiresAction, payment.Status)
		assert.Equal(t, int64(-3000), f.balance(fam.ID))
	})

	t.Run("settled waits for success", func(t *testing.T) {
		f := newFixture(t, func(o *billing.Options) { o.Posting = billing.PostSettled })
		fam := f.customerFamily("smith")
		user := f.user(fam.ID)
		pm := f.attach(fam.ID, "pm_card")
		f.proc.NextStatus = processor.StatusProcessing

		payment, err := f.svc.OneTimePayment(f.ctx, billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 3000})
		require.NoError(t, err)
		assert.Zero(t, f.balance(fam.ID))

		synced, err := f.svc.SyncPaymentStatus(f.ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, processor.StatusProcessing, synced.Status)
		assert.Zero(t, f.balance(fam.ID))

		f.proc.SetIntentStatus(payment.ProcessorPaymentID, processor.StatusSucceeded)
		synced, err = f.svc.SyncPaymentStatus(f.ctx, payment.ID)
		require.NoError(t, err)
		assert.Equal(t, processor.StatusSucceeded, synced.Status)
		assert.Equal(t, int64(-3000), f.balance(fam.ID))

		_, err = f.svc.SyncPaymentStatus(f.ctx, payment.ID)
		require.NoError(t, err)
		credits, err := f.store.ListLedgerEntries(f.ctx, repository.LedgerFilter{PaymentID: payment.ID})
		require.NoError(t, err)
		assert.Len(t, credits, 1)
	})
}

func TestSyncPaymentStatusRejectsManualPayments(t *testing.T) {
	f := newFixture(t)
	fam := f.family("smith")
	manual, err := f.svc.PostManualPayment(f.ctx, fam.ID, 100, "cash")
	require.NoError(t, err)

	_, err = f.svc.SyncPaymentStatus(f.ctx, manual.ID)
	assert.ErrorIs(t, err, billing.ErrInvalidState)

	_, err = f.svc.SyncPaymentStatus(f.ctx, 999)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestOneTimePaymentProcessorFailure(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	user := f.user(fam.ID)
	pm := f.attach(fam.ID, "pm_card")
	f.proc.Err = &processor.Error{Op: "create_payment_intent", Code: "card_declined", Err: processor.ErrDeclined}

	_, err := f.svc.OneTimePayment(f.ctx, billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 1000})
	require.ErrorIs(t, err, billing.ErrUpstreamProcessor)
	assert.True(t, errors.Is(err, processor.ErrDeclined))
	assert.False(t, billing.IsRetryable(err))

	payments, err := f.store.ListPayments(f.ctx, repository.PaymentFilter{FamilyID: fam.ID})
	require.NoError(t, err)
	assert.Empty(t, payments)
	assert.Zero(t, f.balance(fam.ID))
}

func TestOneTimePaymentRetryableFailure(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	user := f.user(fam.ID)
	pm := f.attach(fam.ID, "pm_card")
	f.proc.Err = &processor.Error{Op: "create_payment_intent", Retryable: true, Err: processor.ErrUnavailable}

	_, err := f.svc.OneTimePayment(f.ctx, billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 1000})
	require.ErrorIs(t, err, billing.ErrUpstreamProcessor)
	assert.True(t, billing.IsRetryable(err))
}

func TestOneTimePaymentIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	user := f.user(fam.ID)
	pm := f.attach(fam.ID, "pm_card")
	in := billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: pm.ID, AmountCents: 2500, IdempotencyKey: "req-1"}

	first, err := f.svc.OneTimePayment(f.ctx, in)
	require.NoError(t, err)
	second, err := f.svc.OneTimePayment(f.ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.proc.Requests, 1)
	assert.Equal(t, int64(-2500), f.balance(fam.ID))

	in.AmountCents = 9999
	_, err = f.svc.OneTimePayment(f.ctx, in)
	assert.ErrorIs(t, err, billing.ErrInvalidState)
}

func TestOneTimePaymentRejections(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	user := f.user(fam.ID)
	f.attach(fam.ID, "pm_card")

	other := f.customerFamily("other")
	foreign := f.attach(other.ID, "pm_other")

	plain := f.family("plain")
	plainUser := f.user(plain.ID)
	plainMethod := &models.PaymentMethod{FamilyID: plain.ID, ProcessorPaymentMethodID: "pm_plain"}
	require.NoError(t, f.store.CreatePaymentMethod(f.ctx, plainMethod))

	orphan := &models.User{Username: "staff", Role: models.RoleAdmin, Status: models.UserActive}
	require.NoError(t, f.store.CreateUser(f.ctx, orphan))

	tests := []struct {
		name string
		in   billing.OneTimePaymentInput
		want error
	}{
		{"zero amount", billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: foreign.ID}, billing.ErrValidation},
		{"foreign method", billing.OneTimePaymentInput{UserID: user.ID, PaymentMethodID: foreign.ID, AmountCents: 100}, billing.ErrNotFound},
		{"no customer", billing.OneTimePaymentInput{UserID: plainUser.ID, PaymentMethodID: plainMethod.ID, AmountCents: 100}, billing.ErrInvalidState},
		{"user without family", billing.OneTimePaymentInput{UserID: orphan.ID, PaymentMethodID: foreign.ID, AmountCents: 100}, billing.ErrNotFound},
		{"unknown user", billing.OneTimePaymentInput{UserID: 4040, PaymentMethodID: foreign.ID, AmountCents: 100}, billing.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.OneTimePayment(f.ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, f.proc.Requests)
}
