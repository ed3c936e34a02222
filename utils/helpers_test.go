package utils

import (
	"testing"
	"time"

	"danceportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("s3cret!", hash))
	assert.Error(t, CheckPassword("wrong", hash))
}

func TestGenerateTempPassword(t *testing.T) {
	a, err := GenerateTempPassword()
	require.NoError(t, err)
	b, err := GenerateTempPassword()
	require.NoError(t, err)
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{5000, "50.00"},
		{15725, "157.25"},
		{-1250, "-12.50"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCents(tt.in))
		})
	}
}

func TestParseDateAndMonth(t *testing.T) {
	d, err := ParseDate("2025-03-09")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), d)

	m, err := ParseMonth("2025-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), m)

	_, err = ParseDate("03/09/2025")
	assert.Error(t, err)
}

func TestParseUint(t *testing.T) {
	v, err := ParseUint("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), v)

	for _, bad := range []string{"", "0", "-1", "abc"} {
		_, err := ParseUint(bad)
		assert.Error(t, err, bad)
	}
}

func TestRolesAndStatuses(t *testing.T) {
	assert.True(t, IsValidRole("admin"))
	assert.True(t, IsValidRole("family"))
	assert.False(t, IsValidRole("teacher"))
	assert.True(t, IsValidStatus("inactive"))
	assert.False(t, IsValidStatus("suspended"))
}

func TestToUserShortAndPageMeta(t *testing.T) {
	fid := uint(3)
	u := &models.User{BaseModel: models.BaseModel{ID: 9}, Username: "smith", Password: "hash", Role: "family", FamilyID: &fid, Status: "active"}
	s := ToUserShort(u)
	assert.Equal(t, uint(9), s.ID)
	assert.Equal(t, &fid, s.FamilyID)

	assert.Equal(t, int64(3), NewPageMeta(1, 20, 41).TotalPages)
	assert.Equal(t, int64(0), NewPageMeta(1, 20, 0).TotalPages)
	assert.Equal(t, "12.50", ToMoney(1250).Display)
}
