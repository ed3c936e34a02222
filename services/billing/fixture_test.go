package billing_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"danceportal_go/database/memory"
	"danceportal_go/models"
	"danceportal_go/repository"
	"danceportal_go/services/billing"
	"danceportal_go/services/processor"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []billing.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev billing.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) last() billing.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	proc  *processor.Fake
	pub   *recordingPublisher
	now   time.Time
	svc   *billing.Service
}

func newFixture(t *testing.T, tweak ...func(*billing.Options)) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.NewStore(),
		proc:  processor.NewFake(),
		pub:   &recordingPublisher{},
		now:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	opts := billing.Options{
		Store:     f.store,
		Processor: f.proc,
		Publisher: f.pub,
		Clock:     func() time.Time { return f.now },
		Logger:    logrus.NewEntry(logger),
	}
	for _, fn := range tweak {
		fn(&opts)
	}
	f.svc = billing.NewService(opts)
	return f
}

func (f *fixture) family(name string) *models.Family {
	f.t.Helper()
	fam := &models.Family{Name: name, Email: name + "@example.com"}
	require.NoError(f.t, f.store.CreateFamily(f.ctx, fam))
	return fam
}

func (f *fixture) customerFamily(name string) *models.Family {
	f.t.Helper()
	fam := &models.Family{Name: name, ProcessorCustomerID: "cus_" + name}
	require.NoError(f.t, f.store.CreateFamily(f.ctx, fam))
	return fam
}

func (f *fixture) user(familyID uint) *models.User {
	f.t.Helper()
	u := &models.User{Username: fmt.Sprintf("parent%d", familyID), Role: models.RoleFamily, FamilyID: &familyID, Status: models.UserActive}
	require.NoError(f.t, f.store.CreateUser(f.ctx, u))
	return u
}

func (f *fixture) student(familyID uint, name string) *models.Student {
	f.t.Helper()
	s := &models.Student{FamilyID: familyID, FirstName: name, Active: true}
	require.NoError(f.t, f.store.CreateStudent(f.ctx, s))
	return s
}

func (f *fixture) class(name string, tuitionCents int64) *models.Class {
	f.t.Helper()
	c := &models.Class{Name: name, Capacity: 10, Active: true}
	require.NoError(f.t, f.store.CreateClass(f.ctx, c))
	if tuitionCents > 0 {
		require.NoError(f.t, f.store.SaveClassPricing(f.ctx, &models.ClassPricing{ClassID: c.ID, MonthlyTuitionCents: tuitionCents}))
	}
	return c
}

func (f *fixture) enroll(studentID, classID uint, status models.EnrollmentStatus) *models.Enrollment {
	f.t.Helper()
	e := &models.Enrollment{StudentID: studentID, ClassID: classID, StartDate: f.now, Status: status}
	require.NoError(f.t, f.store.CreateEnrollment(f.ctx, e))
	return e
}

func (f *fixture) attach(familyID uint, processorID string) *models.PaymentMethod {
	f.t.Helper()
	f.proc.AddCard(processorID, "visa", "4242")
	pm, err := f.svc.AttachPaymentMethod(f.ctx, familyID, processorID)
	require.NoError(f.t, err)
	return pm
}

func (f *fixture) balance(familyID uint) int64 {
	f.t.Helper()
	b, err := f.svc.GetBalance(f.ctx, familyID)
	require.NoError(f.t, err)
	return b.BalanceCents
}

func month(y int, m time.Month) (time.Time, time.Time) {
	start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// failingLedgerStore hands out transactions whose ledger writes always fail.
type failingLedgerStore struct {
	*memory.Store
}

func (s *failingLedgerStore) RunInTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.RunInTx(ctx, func(tx repository.Store) error {
		return fn(failingTx{Store: tx})
	})
}

type failingTx struct {
	repository.Store
}

func (failingTx) CreateLedgerEntry(context.Context, *models.LedgerEntry) error {
	return errors.New("ledger unavailable")
}
