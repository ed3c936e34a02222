package services

import (
	"context"
	"testing"
	"time"

	"danceportal_go/database/memory"
	"danceportal_go/models"
	"danceportal_go/services/billing"
	"danceportal_go/services/processor"
	"danceportal_go/storage"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *memory.Store
	proc    *processor.Fake
	objects *storage.MemoryStore
	now     time.Time
	billing *billing.Service
	admin   *AdminService
	portal  *PortalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   memory.NewStore(),
		proc:    processor.NewFake(),
		objects: storage.NewMemoryStore(),
		now:     time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	f.billing = billing.NewService(billing.Options{
		Store:     f.store,
		Processor: f.proc,
		Clock:     func() time.Time { return f.now },
		Logger:    logrus.NewEntry(logger),
	})
	exports := NewExportService(f.objects, "archives", nil)
	f.admin = NewAdminService(f.billing, exports)
	f.portal = NewPortalService(f.billing, exports)
	return f
}

// familyWithLogin creates a family through the admin facade and returns it
// with the id of its portal user.
func (f *fixture) familyWithLogin(name string) (models.Family, uint) {
	f.t.Helper()
	created, err := f.admin.CreateFamily(f.ctx, CreateFamilyInput{Name: name, Email: name + "@example.com"})
	require.NoError(f.t, err)
	return created.Family, created.User.ID
}

func (f *fixture) student(familyID uint, first string) *models.Student {
	f.t.Helper()
	s, err := f.admin.CreateStudent(f.ctx, familyID, StudentInput{FirstName: first, LastName: "Doe"})
	require.NoError(f.t, err)
	return s
}

func (f *fixture) class(name string, capacity int, cents int64) *ClassListing {
	f.t.Helper()
	c, err := f.admin.CreateClass(f.ctx, ClassInput{Name: name, DayOfWeek: 2, StartTime: "17:00", EndTime: "18:00", Capacity: capacity, MonthlyTuitionCents: cents})
	require.NoError(f.t, err)
	return c
}
