package billing_test

import (
	"context"
	"testing"
	"time"

	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/billing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInvoicesSingleEnrollment(t *testing.T) {
	f := newFixture(t)
	fam := f.family("smith")
	ballet := f.class("Ballet Basics", 5000)
	kid := f.student(fam.ID, "Ava")
	f.enroll(kid.ID, ballet.ID, models.EnrollmentActive)

	start, end := month(2025, time.March)
	run, err := f.svc.GenerateInvoices(f.ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Count)

	invoices, err := f.store.ListInvoices(f.ctx, fam.ID)
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	inv := invoices[0]
	assert.Equal(t, int64(5000), inv.TotalCents)
	assert.Equal(t, models.InvoiceDraft, inv.Status)

	charges, err := f.store.ListCharges(f.ctx, repository.ChargeFilter{InvoiceID: inv.ID})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, models.ChargeTuition, charges[0].Kind)
	assert.Equal(t, int64(5000), charges[0].AmountCents)
	assert.Equal(t, "Tuition for Ballet Basics", charges[0].Memo)

	entries, err := f.store.ListLedgerEntries(f.ctx, repository.LedgerFilter{FamilyID: fam.ID})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerDebit, entries[0].Type)
	assert.Equal(t, int64(5000), entries[0].AmountCents)
	require.NotNil(t, entries[0].InvoiceID)
	assert.Equal(t, inv.ID, *entries[0].InvoiceID)

	assert.Equal(t, int64(5000), f.balance(fam.ID))

	_, err = f.svc.PostManualPayment(f.ctx, fam.ID, 5000, "payment")
	require.NoError(t, err)
	assert.Zero(t, f.balance(fam.ID))
}

func TestGenerateInvoicesTotalsEqualCharges(t *testing.T) {
	f := newFixture(t)
	fam := f.family("garcia")
	tuitions := []int64{5000, 6500, 4200}
	kidA := f.student(fam.ID, "Lia")
	kidB := f.student(fam.ID, "Noa")
	for i, cents := range tuitions {
		c := f.class("Class", cents)
		kid := kidA
		if i%2 == 1 {
			kid = kidB
		}
		f.enroll(kid.ID, c.ID, models.EnrollmentActive)
	}
	// Neither of these is billed.
	canceled := f.class("Jazz", 9900)
	f.enroll(kidA.ID, canceled.ID, models.EnrollmentCanceled)
	done := f.class("Tap", 3000)
	f.enroll(kidB.ID, done.ID, models.EnrollmentCompleted)

	start, end := month(2025, time.April)
	run, err := f.svc.GenerateInvoices(f.ctx, start, end)
	require.NoError(t, err)

	require.Len(t, run.InvoiceIDs, 1)
	invID := run.InvoiceIDs[0]
	detail, err := f.svc.GetInvoice(f.ctx, invID)
	require.NoError(t, err)

	var sum int64
	for _, c := range detail.Charges {
		sum += c.AmountCents
	}
	assert.Equal(t, int64(15700), detail.TotalCents)
	assert.Equal(t, detail.TotalCents, sum)
	assert.Len(t, detail.Charges, len(tuitions))
	assert.Equal(t, len(tuitions), run.Charges)

	entries, err := f.store.ListLedgerEntries(f.ctx, repository.LedgerFilter{FamilyID: fam.ID})
	require.NoError(t, err)
	assert.Len(t, entries, len(tuitions))
	for _, e := range entries {
		require.NotNil(t, e.InvoiceID)
		assert.Equal(t, invID, *e.InvoiceID)
	}
}

func TestGenerateInvoicesCoversEveryFamily(t *testing.T) {
	f := newFixture(t)
	billed := f.family("billed")
	idle := f.family("idle")
	unpriced := f.class("Open Studio", 0)
	kid := f.student(billed.ID, "Mia")
	f.enroll(kid.ID, unpriced.ID, models.EnrollmentActive)

	start, end := month(2025, time.May)
	run, err := f.svc.GenerateInvoices(f.ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Count)
	assert.Zero(t, run.Charges)

	for _, id := range []uint{billed.ID, idle.ID} {
		invoices, err := f.store.ListInvoices(f.ctx, id)
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.Zero(t, invoices[0].TotalCents)
		assert.Zero(t, f.balance(id))
	}
}

func TestGenerateInvoicesRejectsBadPeriod(t *testing.T) {
	f := newFixture(t)
	start, _ := month(2025, time.June)

	_, err := f.svc.GenerateInvoices(f.ctx, start, start)
	assert.ErrorIs(t, err, billing.ErrValidation)

	_, err = f.svc.GenerateInvoices(f.ctx, start, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, billing.ErrValidation)
}

func TestGenerateInvoicesRollsBackWholeRun(t *testing.T) {
	f := newFixture(t)
	good := f.family("good")
	ballet := f.class("Ballet", 5000)
	f.enroll(f.student(good.ID, "A").ID, ballet.ID, models.EnrollmentActive)

	broken := f.family("broken")
	f.enroll(f.student(broken.ID, "B").ID, 999, models.EnrollmentActive)

	start, end := month(2025, time.July)
	_, err := f.svc.GenerateInvoices(f.ctx, start, end)
	require.ErrorIs(t, err, billing.ErrNotFound)

	invoices, err := f.store.ListInvoices(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, invoices)
	assert.Zero(t, f.balance(good.ID))
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, billing.ErrLockHeld
}

func TestGenerateInvoicesRefusesConcurrentRun(t *testing.T) {
	f := newFixture(t, func(o *billing.Options) { o.Locker = busyLocker{} })
	f.family("smith")

	start, end := month(2025, time.August)
	_, err := f.svc.GenerateInvoices(f.ctx, start, end)
	assert.ErrorIs(t, err, billing.ErrInvalidState)

	invoices, err := f.store.ListInvoices(f.ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}

func TestLocalLockerReleases(t *testing.T) {
	l := billing.NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.ErrorIs(t, err, billing.ErrLockHeld)

	release()
	release()
	_, err = l.Acquire(context.Background(), "k", time.Minute)
	assert.NoError(t, err)
}

func TestFinalizeInvoice(t *testing.T) {
	f := newFixture(t)
	f.family("smith")
	start, end := month(2025, time.September)
	run, err := f.svc.GenerateInvoices(f.ctx, start, end)
	require.NoError(t, err)

	_, err = f.svc.FinalizeInvoice(f.ctx, 12345)
	assert.ErrorIs(t, err, billing.ErrNotFound)

	inv, err := f.svc.FinalizeInvoice(f.ctx, run.InvoiceIDs[0])
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceFinalized, inv.Status)
	require.NotNil(t, inv.FinalizedAt)

	_, err = f.svc.FinalizeInvoice(f.ctx, run.InvoiceIDs[0])
	assert.ErrorIs(t, err, billing.ErrInvalidState)
}
