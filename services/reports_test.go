package services

import (
	"bytes"
	"testing"
	"time"

	"danceportal_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestAgingReportOrdersByBalance(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")
	jones, _ := f.familyWithLogin("jones")
	lee, _ := f.familyWithLogin("lee")

	f.now = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	_, err := f.billing.PostCharge(f.ctx, smith.ID, models.ChargeTuition, 5000, "Tuition for Ballet")
	require.NoError(t, err)
	f.now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = f.billing.PostCharge(f.ctx, jones.ID, models.ChargeTuition, 9000, "Tuition for Jazz")
	require.NoError(t, err)
	f.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	rows, err := f.admin.AgingReport(f.ctx)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, jones.ID, rows[0].FamilyID)
	assert.Equal(t, int64(9000), rows[0].CurrentCents)
	assert.Equal(t, smith.ID, rows[1].FamilyID)
	assert.Equal(t, "smith", rows[1].FamilyName)
	assert.Equal(t, int64(5000), rows[1].Days60Cents)
	assert.Equal(t, lee.ID, rows[2].FamilyID)
	assert.Zero(t, rows[2].BalanceCents)
}

func TestRevenueReportGroupsByDate(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")

	pay := func(at time.Time, cents int64) {
		f.now = at
		_, err := f.billing.PostManualPayment(f.ctx, smith.ID, cents, "Check")
		require.NoError(t, err)
	}
	pay(time.Date(2025, 2, 28, 23, 59, 0, 0, time.UTC), 700)
	pay(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), 1000)
	pay(time.Date(2025, 3, 1, 17, 30, 0, 0, time.UTC), 2500)
	pay(time.Date(2025, 3, 3, 23, 59, 59, 0, time.UTC), 4000)
	pay(time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), 9900)

	rows, err := f.admin.RevenueReport(f.ctx, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []RevenueDay{
		{Date: "2025-03-01", RevenueCents: 3500, Payments: 2},
		{Date: "2025-03-03", RevenueCents: 4000, Payments: 1},
	}, rows)

	_, err = f.admin.RevenueReport(f.ctx, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrValidation)
}

func openWorkbook(t *testing.T, file *ExportFile) *excelize.File {
	t.Helper()
	wb, err := excelize.OpenReader(bytes.NewReader(file.Content))
	require.NoError(t, err)
	t.Cleanup(func() { wb.Close() })
	return wb
}

func TestExportAgingWorkbook(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")
	_, err := f.billing.PostCharge(f.ctx, smith.ID, models.ChargeFee, 1250, "Recital fee")
	require.NoError(t, err)

	file, err := f.admin.ExportAging(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "aging_2025_03_10.xlsx", file.FileName)
	assert.Equal(t, XLSXContentType, file.ContentType)

	wb := openWorkbook(t, file)
	rows, err := wb.GetRows("Aging")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Family ID", "Family", "Balance", "Current", "30-59", "60-89", "90+"}, rows[2])
	assert.Equal(t, "smith", rows[3][1])
	assert.Equal(t, "Total", rows[4][1])

	raw, err := wb.GetCellValue("Aging", "C4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "12.50", raw)
}

func TestExportRevenueWorkbook(t *testing.T) {
	f := newFixture(t)
	smith, _ := f.familyWithLogin("smith")
	_, err := f.billing.PostManualPayment(f.ctx, smith.ID, 3000, "Cash")
	require.NoError(t, err)

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	file, err := f.admin.ExportRevenue(f.ctx, day, day)
	require.NoError(t, err)
	assert.Equal(t, "revenue_20250310_20250310.xlsx", file.FileName)

	rows, err := openWorkbook(t, file).GetRows("Revenue")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "2025-03-10", rows[3][0])
	assert.Equal(t, "1", rows[3][1])
	assert.Equal(t, "Total", rows[4][0])
}
