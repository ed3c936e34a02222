package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkByName(r HealthReport, name string) *CheckResult {
	for i := range r.Checks {
		if r.Checks[i].Name == name {
			return &r.Checks[i]
		}
	}
	return nil
}

func TestHealthReportWithDatabase(t *testing.T) {
	db := newTestDB(t)
	svc := NewHealthService("", "", "test", HealthDeps{
		DB:               db,
		DBDriver:         "sqlite",
		Posting:          "settled",
		StoreDriver:      "gorm",
		ProcessorEnabled: true,
	})

	r := svc.GetHealthReport(context.Background())
	assert.Equal(t, overallStatusOK, r.Status)
	assert.Equal(t, defaultServiceName, r.Service)
	assert.Equal(t, "test", r.Environment)
	require.NotNil(t, checkByName(r, "sqlite"))
	assert.Equal(t, checkUp, checkByName(r, "sqlite").Status)
	assert.Equal(t, checkDisabled, checkByName(r, "redis").Status)
	assert.Equal(t, checkDisabled, checkByName(r, "kafka").Status)
	assert.Equal(t, "settled", r.Billing.LedgerPosting)
	assert.True(t, r.Billing.ProcessorEnabled)
	assert.False(t, r.Billing.ArchivesEnabled)
	assert.Equal(t, 200, svc.HTTPStatusForOverall(r.Status))
}

func TestHealthReportStatuses(t *testing.T) {
	refused := errors.New("connection refused")
	tests := []struct {
		name string
		deps HealthDeps
		want string
	}{
		{"memory store needs no database", HealthDeps{StoreDriver: "memory"}, overallStatusOK},
		{"missing database is critical", HealthDeps{StoreDriver: "gorm"}, overallStatusCritical},
		{
			"unreachable kafka degrades",
			HealthDeps{
				StoreDriver:  "memory",
				KafkaBrokers: []string{"kafka-1:9092", "kafka-2:9092"},
				DialKafka:    func(context.Context, string) error { return refused },
			},
			overallStatusDegraded,
		},
		{
			"one reachable broker is enough",
			HealthDeps{
				StoreDriver:  "memory",
				KafkaBrokers: []string{"kafka-1:9092", "kafka-2:9092"},
				DialKafka: func(_ context.Context, b string) error {
					if b == "kafka-1:9092" {
						return refused
					}
					return nil
				},
			},
			overallStatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewHealthService("Dance Portal API", "1.0.0", "test", tt.deps)
			r := svc.GetHealthReport(context.Background())
			assert.Equal(t, tt.want, r.Status)
		})
	}

	svc := NewHealthService("", "", "", HealthDeps{})
	assert.Equal(t, 503, svc.HTTPStatusForOverall(overallStatusCritical))
	assert.Equal(t, "unknown", svc.GetHealthReport(context.Background()).Environment)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, overallStatusDegraded, worse(overallStatusOK, overallStatusDegraded))
	assert.Equal(t, overallStatusCritical, worse(overallStatusCritical, overallStatusDegraded))
	assert.Equal(t, overallStatusOK, worse(overallStatusOK, ""))
}
