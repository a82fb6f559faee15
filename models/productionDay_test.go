package models_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/testutil"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanPerHour(t *testing.T) {
	assert.Equal(t, 60, models.PlanPerHour(60))
	assert.Equal(t, 514, models.PlanPerHour(7))
	assert.Equal(t, 1, models.PlanPerHour(3600))
	assert.Equal(t, 3600, models.PlanPerHour(1))
	assert.Equal(t, 0, models.PlanPerHour(0))
}

func TestAttainmentPercent(t *testing.T) {
	assert.True(t, models.AttainmentPercent(0, 0).Equal(decimal.Zero))
	assert.True(t, models.AttainmentPercent(50, 100).Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "33.33", models.AttainmentPercent(1, 3).StringFixed(2))
	assert.Equal(t, "125.00", models.AttainmentPercent(5, 4).StringFixed(2))
}

func TestCreateProductionDay_BuildsShiftHours(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 60)

	assert.Equal(t, 60, f.Day.PlanPerHour)
	assert.Equal(t, models.DefaultShiftStart, f.Day.ShiftStart)
	assert.Equal(t, models.DefaultShiftEnd, f.Day.ShiftEnd)
	assert.Equal(t, models.ProductionDayStatusActive, f.Day.Status)
	require.Len(t, f.Day.HourlyRecords, models.ShiftHours)

	for i, hr := range f.Day.HourlyRecords {
		assert.Equal(t, i, hr.HourIndex)
		assert.Equal(t, 60, hr.PlanQty)
		assert.Equal(t, 0, hr.Actual())
	}
	assert.Equal(t, "08:00", f.Day.HourlyRecords[0].HourStart)
	assert.Equal(t, "15:00", f.Day.HourlyRecords[7].HourStart)

	var count int64
	require.NoError(t, db.Model(&models.HourlyRecord{}).Where("production_day_id = ?", f.Day.ID).Count(&count).Error)
	assert.EqualValues(t, models.ShiftHours, count)
}

func TestCreateProductionDay_RejectsInvalidInput(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 60)
	ctx := context.Background()

	tests := []struct {
		name  string
		input models.NewProductionDay
	}{
		{"takt zero", models.NewProductionDay{Date: "2026-03-03", WorkCenterId: f.WorkCenter.ID, ProductId: f.Product.ID, TaktSec: 0}},
		{"takt above an hour", models.NewProductionDay{Date: "2026-03-03", WorkCenterId: f.WorkCenter.ID, ProductId: f.Product.ID, TaktSec: 3601}},
		{"bad date", models.NewProductionDay{Date: "03/03/2026", WorkCenterId: f.WorkCenter.ID, ProductId: f.Product.ID, TaktSec: 60}},
		{"unknown work center", models.NewProductionDay{Date: "2026-03-03", WorkCenterId: uuid.New(), ProductId: f.Product.ID, TaktSec: 60}},
		{"missing product", models.NewProductionDay{Date: "2026-03-03", WorkCenterId: f.WorkCenter.ID, TaktSec: 60}},
		{"duplicate day", models.NewProductionDay{Date: "2026-03-02", WorkCenterId: f.WorkCenter.ID, ProductId: f.Product.ID, TaktSec: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.CreateProductionDay(ctx, db, &tt.input, f.User.ID, testutil.T0)
			require.Error(t, err)
			assert.ErrorIs(t, err, utils.ErrInvalidInput)
		})
	}

	var days int64
	require.NoError(t, db.Model(&models.ProductionDay{}).Count(&days).Error)
	assert.EqualValues(t, 1, days)
}

func TestGetProductionDay_CumulativeFigures(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300) // 12 per hour
	ctx := context.Background()

	actuals := map[int]int{0: 12, 1: 6, 2: 15}
	for hourIndex, actual := range actuals {
		hr := f.Hour(t, db, hourIndex)
		_, err := models.ApplyHourlyValues(ctx, db, &hr, hr.PlanQty, actual, nil, f.User.ID, testutil.T0)
		require.NoError(t, err)
	}

	detail, err := models.GetProductionDay(ctx, db, f.Day.ID)
	require.NoError(t, err)

	assert.Equal(t, f.WorkCenter.Name, detail.WorkCenterName)
	assert.Equal(t, f.Product.Name, detail.ProductName)
	require.Len(t, detail.Hours, models.ShiftHours)

	assert.Equal(t, 12, detail.Hours[0].CumulativePlan)
	assert.Equal(t, 0, detail.Hours[0].CumulativeDeviation)
	assert.Equal(t, -6, detail.Hours[1].DeviationQty)
	assert.Equal(t, 24, detail.Hours[1].CumulativePlan)
	assert.Equal(t, 18, detail.Hours[1].CumulativeActual)
	assert.Equal(t, -3, detail.Hours[2].CumulativeDeviation)

	assert.Equal(t, 96, detail.PlanTotal)
	assert.Equal(t, 33, detail.ActualTotal)
	assert.Equal(t, -63, detail.DeviationTotal)
	assert.Equal(t, "34.38", detail.AttainmentPercent.StringFixed(2))
}

func TestGetProductionDay_NotFound(t *testing.T) {
	db := testutil.NewTestDB(t)
	_, err := models.GetProductionDay(context.Background(), db, uuid.New())
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)
}

func TestListProductionDays_FiltersAndCumulativeDeviation(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	lineB := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	lineA := testutil.SeedProductionDay(t, db, "2026-03-02", 600)
	newer := testutil.SeedProductionDay(t, db, "2026-03-03", 300)
	require.NoError(t, db.Model(&lineB.WorkCenter).Update("name", "Line B").Error)
	require.NoError(t, db.Model(&lineA.WorkCenter).Update("name", "Line A").Error)
	require.NoError(t, db.Model(&models.ProductionDay{}).Where("id = ?", newer.Day.ID).Update("status", models.ProductionDayStatusClosed).Error)

	hr := lineB.Hour(t, db, 0)
	_, err := models.ApplyHourlyValues(ctx, db, &hr, hr.PlanQty, 7, nil, lineB.User.ID, testutil.T0)
	require.NoError(t, err)
	hr = lineB.Hour(t, db, 1)
	_, err = models.ApplyHourlyValues(ctx, db, &hr, hr.PlanQty, 14, nil, lineB.User.ID, testutil.T0)
	require.NoError(t, err)

	all, err := models.ListProductionDays(ctx, db, models.ProductionDayFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newer.Day.ID, all[0].ID)
	assert.Equal(t, lineA.Day.ID, all[1].ID)
	assert.Equal(t, "Line A", all[1].WorkCenterName)
	assert.Equal(t, lineB.Day.ID, all[2].ID)
	assert.Equal(t, "Bracket", all[2].ProductName)
	assert.Equal(t, 12, all[2].PlanPerHour)
	assert.Equal(t, 21-96, all[2].CumulativeDeviation)
	assert.Equal(t, -48, all[1].CumulativeDeviation)

	date := "2026-03-02"
	byDate, err := models.ListProductionDays(ctx, db, models.ProductionDayFilter{Date: &date})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	byWorkCenter, err := models.ListProductionDays(ctx, db, models.ProductionDayFilter{WorkCenterId: &lineB.WorkCenter.ID})
	require.NoError(t, err)
	require.Len(t, byWorkCenter, 1)
	assert.Equal(t, lineB.Day.ID, byWorkCenter[0].ID)

	closed := models.ProductionDayStatusClosed
	byStatus, err := models.ListProductionDays(ctx, db, models.ProductionDayFilter{Status: &closed})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, models.ProductionDayStatusClosed, byStatus[0].Status)

	bad := "2026-02-30"
	_, err = models.ListProductionDays(ctx, db, models.ProductionDayFilter{Date: &bad})
	assert.ErrorIs(t, err, utils.ErrInvalidInput)
}
