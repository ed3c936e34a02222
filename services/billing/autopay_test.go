package billing_test

import (
	"testing"

	"danceportal_go/services/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func (f *fixture) defaults(familyID uint) []uint {
	f.t.Helper()
	methods, err := f.svc.ListPaymentMethods(f.ctx, familyID)
	require.NoError(f.t, err)
	var ids []uint
	for _, m := range methods {
		if m.IsDefault {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func TestAttachFirstMethodBecomesDefault(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")

	status, err := f.svc.GetAutopayStatus(f.ctx, fam.ID)
	require.NoError(t, err)
	assert.False(t, status.Configured)

	first := f.attach(fam.ID, "pm_first")
	assert.True(t, first.IsDefault)
	assert.Equal(t, "4242", first.Last4)

	status, err = f.svc.GetAutopayStatus(f.ctx, fam.ID)
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.False(t, status.Enabled)
	require.NotNil(t, status.DefaultPaymentMethodID)
	assert.Equal(t, first.ID, *status.DefaultPaymentMethodID)
	assert.Equal(t, 1, status.DraftDay)
	assert.Zero(t, status.GraceDays)

	second := f.attach(fam.ID, "pm_second")
	assert.False(t, second.IsDefault)
	assert.Equal(t, []uint{first.ID}, f.defaults(fam.ID))
}

func TestAttachRejectsDuplicatesAndUnknownMethods(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	f.attach(fam.ID, "pm_card")

	_, err := f.svc.AttachPaymentMethod(f.ctx, fam.ID, "pm_card")
	assert.ErrorIs(t, err, billing.ErrInvalidState)

	_, err = f.svc.AttachPaymentMethod(f.ctx, fam.ID, "pm_missing")
	assert.ErrorIs(t, err, billing.ErrUpstreamProcessor)

	_, err = f.svc.AttachPaymentMethod(f.ctx, fam.ID, "")
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestSetDefaultKeepsSingleDefault(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	a := f.attach(fam.ID, "pm_a")
	b := f.attach(fam.ID, "pm_b")
	c := f.attach(fam.ID, "pm_c")

	for _, id := range []uint{b.ID, c.ID, a.ID, c.ID} {
		pm, err := f.svc.SetDefaultPaymentMethod(f.ctx, fam.ID, id)
		require.NoError(t, err)
		assert.True(t, pm.IsDefault)
		assert.Equal(t, []uint{id}, f.defaults(fam.ID))

		status, err := f.svc.GetAutopayStatus(f.ctx, fam.ID)
		require.NoError(t, err)
		assert.Equal(t, id, *status.DefaultPaymentMethodID)
	}
}

func TestPaymentMethodsAreFamilyScoped(t *testing.T) {
	f := newFixture(t)
	mine := f.customerFamily("mine")
	theirs := f.customerFamily("theirs")
	foreign := f.attach(theirs.ID, "pm_theirs")

	_, err := f.svc.SetDefaultPaymentMethod(f.ctx, mine.ID, foreign.ID)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	_, err = f.svc.EnableAutopay(f.ctx, mine.ID, billing.EnableAutopayInput{PaymentMethodID: foreign.ID})
	assert.ErrorIs(t, err, billing.ErrNotFound)

	assert.Equal(t, []uint{foreign.ID}, f.defaults(theirs.ID))
}

func TestEnableDisableAutopay(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	f.attach(fam.ID, "pm_a")
	b := f.attach(fam.ID, "pm_b")

	status, err := f.svc.EnableAutopay(f.ctx, fam.ID, billing.EnableAutopayInput{
		PaymentMethodID: b.ID,
		DraftDay:        intPtr(5),
		GraceDays:       intPtr(3),
	})
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, b.ID, *status.DefaultPaymentMethodID)
	assert.Equal(t, []uint{b.ID}, f.defaults(fam.ID))

	status, err = f.svc.DisableAutopay(f.ctx, fam.ID)
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, 5, status.DraftDay)
	assert.Equal(t, 3, status.GraceDays)

	status, err = f.svc.EnableAutopay(f.ctx, fam.ID, billing.EnableAutopayInput{PaymentMethodID: b.ID})
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 5, status.DraftDay)
	assert.Equal(t, 3, status.GraceDays)
}

func TestEnableAutopayValidation(t *testing.T) {
	f := newFixture(t)
	fam := f.customerFamily("smith")
	pm := f.attach(fam.ID, "pm_a")

	tests := []struct {
		name string
		in   billing.EnableAutopayInput
	}{
		{"draft day zero", billing.EnableAutopayInput{PaymentMethodID: pm.ID, DraftDay: intPtr(0)}},
		{"draft day 29", billing.EnableAutopayInput{PaymentMethodID: pm.ID, DraftDay: intPtr(29)}},
		{"negative grace", billing.EnableAutopayInput{PaymentMethodID: pm.ID, GraceDays: intPtr(-1)}},
		{"grace too long", billing.EnableAutopayInput{PaymentMethodID: pm.ID, GraceDays: intPtr(31)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EnableAutopay(f.ctx, fam.ID, tt.in)
			assert.ErrorIs(t, err, billing.ErrValidation)
		})
	}
}

func TestDisableAutopayWithoutSettings(t *testing.T) {
	f := newFixture(t)
	fam := f.family("smith")

	_, err := f.svc.DisableAutopay(f.ctx, fam.ID)
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestCreateSetupIntent(t *testing.T) {
	f := newFixture(t)
	plain := f.family("plain")
	linked := f.customerFamily("linked")

	_, err := f.svc.CreateSetupIntent(f.ctx, plain.ID)
	assert.ErrorIs(t, err, billing.ErrInvalidState)

	secret, err := f.svc.CreateSetupIntent(f.ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "seti_secret_cus_linked", secret)
	assert.Equal(t, 1, f.proc.SetupCalls)
}

func TestLinkProcessorCustomer(t *testing.T) {
	f := newFixture(t)
	fam := f.family("smith")

	linked, err := f.svc.LinkProcessorCustomer(f.ctx, fam.ID)
	require.NoError(t, err)
	assert.True(t, linked.HasProcessorCustomer())

	again, err := f.svc.LinkProcessorCustomer(f.ctx, fam.ID)
	require.NoError(t, err)
	assert.Equal(t, linked.ProcessorCustomerID, again.ProcessorCustomerID)
	assert.Len(t, f.proc.CustomerSeen, 1)
}
