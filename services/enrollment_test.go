package services

import (
	"testing"

	"danceportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollRules(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")
	jones, _ := f.familyWithLogin("jones")
	ann := f.student(smith.ID, "Ann")
	ben := f.student(smith.ID, "Ben")
	cara := f.student(jones.ID, "Cara")

	ballet := f.class("Ballet Basics", 0, 5000)
	duet := f.class("Duet", 1, 4000)
	closed := f.class("Closed Jazz", 0, 3000)
	_, err := f.admin.SetClassActive(f.ctx, closed.ID, false)
	require.NoError(t, err)

	inactive := &models.Student{FamilyID: smith.ID, FirstName: "Dora", Active: false}
	require.NoError(t, f.store.CreateStudent(f.ctx, inactive))

	e, err := f.admin.Enroll(f.ctx, smith.ID, ann.ID, ballet.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentActive, e.Status)
	assert.Equal(t, f.now, e.StartDate)

	_, err = f.admin.Enroll(f.ctx, smith.ID, ann.ID, duet.ID)
	require.NoError(t, err)

	tests := []struct {
		name    string
		family  uint
		student uint
		class   uint
		want    error
	}{
		{"already enrolled", smith.ID, ann.ID, ballet.ID, ErrInvalidState},
		{"class full", smith.ID, ben.ID, duet.ID, ErrInvalidState},
		{"class closed", smith.ID, ben.ID, closed.ID, ErrInvalidState},
		{"inactive student", smith.ID, inactive.ID, ballet.ID, ErrInvalidState},
		{"student of another family", smith.ID, cara.ID, ballet.ID, ErrNotFound},
		{"unknown student", smith.ID, 999, ballet.ID, ErrNotFound},
		{"unknown class", smith.ID, ben.ID, 999, ErrNotFound},
		{"unknown family", 999, ben.ID, ballet.ID, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.admin.Enroll(f.ctx, tt.family, tt.student, tt.class)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestEnrollAfterCancelFreesSeat(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")
	ann := f.student(smith.ID, "Ann")
	ben := f.student(smith.ID, "Ben")
	duet := f.class("Duet", 1, 4000)

	e, err := f.admin.Enroll(f.ctx, smith.ID, ann.ID, duet.ID)
	require.NoError(t, err)
	_, err = f.admin.UpdateEnrollmentStatus(f.ctx, e.ID, models.EnrollmentCanceled)
	require.NoError(t, err)

	_, err = f.admin.Enroll(f.ctx, smith.ID, ben.ID, duet.ID)
	assert.NoError(t, err)
	// a canceled student may enroll again
	_, err = f.admin.Enroll(f.ctx, smith.ID, ann.ID, f.class("Ballet", 0, 0).ID)
	assert.NoError(t, err)
}
