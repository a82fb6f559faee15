package models_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/testutil"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upsertDowntime(hr models.HourlyRecord, reason models.DowntimeReason, minutes int, comment *string) *models.UpsertHourlyDowntime {
	return &models.UpsertHourlyDowntime{
		HourlyRecordId:   hr.ID,
		DowntimeReasonId: reason.ID,
		Minutes:          minutes,
		Comment:          comment,
	}
}

func TestListActiveDowntimeReasons(t *testing.T) {
	db := testutil.NewTestDB(t)
	testutil.SeedDowntimeReason(t, db, "TOOL", "Tool change", true)
	testutil.SeedDowntimeReason(t, db, "BRKDWN", "Breakdown", true)
	testutil.SeedDowntimeReason(t, db, "OLD", "Retired", false)

	reasons, err := models.ListActiveDowntimeReasons(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, reasons, 2)
	assert.Equal(t, "Breakdown", reasons[0].Name)
	assert.Equal(t, "Tool change", reasons[1].Name)
}

func TestUpsertHourlyDowntimeMinutes_CreateUpdateAndZeroRemoves(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	setup := testutil.SeedDowntimeReason(t, db, "SETUP", "Setup", true)
	ctx := context.Background()
	hr := f.Hour(t, db, 2)

	comment := "  die change  "
	require.NoError(t, models.UpsertHourlyDowntimeMinutes(ctx, db, upsertDowntime(hr, setup, 15, &comment), f.User.ID, testutil.T0))

	rows, err := models.ListHourlyDowntimes(ctx, db, hr.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 15, rows[0].Minutes)
	assert.Equal(t, "SETUP", rows[0].DowntimeReasonCode)
	assert.Equal(t, "Setup", rows[0].DowntimeReasonName)
	require.NotNil(t, rows[0].Comment)
	assert.Equal(t, "die change", *rows[0].Comment)

	later := testutil.T0.Add(time.Hour)
	require.NoError(t, models.UpsertHourlyDowntimeMinutes(ctx, db, upsertDowntime(hr, setup, 60, nil), f.User.ID, later))

	var stored models.HourlyDowntime
	require.NoError(t, db.Where("hourly_record_id = ?", hr.ID).Take(&stored).Error)
	assert.Equal(t, rows[0].ID, stored.ID)
	assert.Equal(t, 60, stored.Minutes)
	assert.Nil(t, stored.Comment)
	assert.True(t, stored.UpdatedAt.Equal(later))

	require.NoError(t, models.UpsertHourlyDowntimeMinutes(ctx, db, upsertDowntime(hr, setup, 0, nil), f.User.ID, later))
	rows, err = models.ListHourlyDowntimes(ctx, db, hr.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// zero without a booking is a no-op
	require.NoError(t, models.UpsertHourlyDowntimeMinutes(ctx, db, upsertDowntime(hr, setup, 0, nil), f.User.ID, later))
}

func TestUpsertHourlyDowntimeMinutes_RejectsInvalidInput(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	active := testutil.SeedDowntimeReason(t, db, "MAT", "Material shortage", true)
	retired := testutil.SeedDowntimeReason(t, db, "OLD", "Retired", false)
	ctx := context.Background()
	hr := f.Hour(t, db, 0)
	long := strings.Repeat("x", 1001)

	tests := []struct {
		name  string
		input *models.UpsertHourlyDowntime
	}{
		{"negative minutes", upsertDowntime(hr, active, -1, nil)},
		{"more than an hour", upsertDowntime(hr, active, 61, nil)},
		{"inactive reason", upsertDowntime(hr, retired, 10, nil)},
		{"unknown reason", upsertDowntime(hr, models.DowntimeReason{ID: uuid.New()}, 10, nil)},
		{"missing reason", upsertDowntime(hr, models.DowntimeReason{}, 10, nil)},
		{"comment too long", upsertDowntime(hr, active, 10, &long)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.UpsertHourlyDowntimeMinutes(ctx, db, tt.input, f.User.ID, testutil.T0)
			assert.ErrorIs(t, err, utils.ErrInvalidInput)
		})
	}

	err := models.UpsertHourlyDowntimeMinutes(ctx, db, &models.UpsertHourlyDowntime{
		HourlyRecordId:   uuid.New(),
		DowntimeReasonId: active.ID,
		Minutes:          5,
	}, f.User.ID, testutil.T0)
	assert.ErrorIs(t, err, utils.ErrorRecordNotFound)

	var count int64
	require.NoError(t, db.Model(&models.HourlyDowntime{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHourlyDowntime_ClosedDayRejectsEdits(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	reason := testutil.SeedDowntimeReason(t, db, "POWER", "Power outage", true)
	ctx := context.Background()
	f.BookDowntime(t, db, 1, reason, 20)
	hr := f.Hour(t, db, 1)

	require.NoError(t, db.Model(&models.ProductionDay{}).Where("id = ?", f.Day.ID).Update("status", models.ProductionDayStatusClosed).Error)

	err := models.UpsertHourlyDowntimeMinutes(ctx, db, upsertDowntime(hr, reason, 30, nil), f.User.ID, testutil.T0)
	assert.ErrorIs(t, err, models.ErrProductionDayClosed)

	err = models.DeleteHourlyDowntime(ctx, db, hr.ID, reason.ID)
	assert.ErrorIs(t, err, models.ErrProductionDayClosed)

	rows, err := models.ListHourlyDowntimes(ctx, db, hr.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 20, rows[0].Minutes)
}

func TestDeleteHourlyDowntime(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	qc := testutil.SeedDowntimeReason(t, db, "QC", "Waiting for QC", true)
	tool := testutil.SeedDowntimeReason(t, db, "TOOL", "Tool change", true)
	ctx := context.Background()
	f.BookDowntime(t, db, 3, qc, 10)
	f.BookDowntime(t, db, 3, tool, 5)
	hr := f.Hour(t, db, 3)

	require.NoError(t, models.DeleteHourlyDowntime(ctx, db, hr.ID, qc.ID))
	require.NoError(t, models.DeleteHourlyDowntime(ctx, db, hr.ID, qc.ID))
	require.NoError(t, models.DeleteHourlyDowntime(ctx, db, uuid.New(), qc.ID))

	rows, err := models.ListHourlyDowntimes(ctx, db, hr.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, tool.ID, rows[0].DowntimeReasonId)
}

func TestListHourlyDowntimes_LongestFirstThenName(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	setup := testutil.SeedDowntimeReason(t, db, "SETUP", "Setup", true)
	breakdown := testutil.SeedDowntimeReason(t, db, "BRKDWN", "Breakdown", true)
	maint := testutil.SeedDowntimeReason(t, db, "MAINT", "Maintenance", true)
	f.BookDowntime(t, db, 0, setup, 10)
	f.BookDowntime(t, db, 0, breakdown, 10)
	f.BookDowntime(t, db, 0, maint, 25)

	rows, err := models.ListHourlyDowntimes(context.Background(), db, f.Hour(t, db, 0).ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Maintenance", rows[0].DowntimeReasonName)
	assert.Equal(t, "Breakdown", rows[1].DowntimeReasonName)
	assert.Equal(t, "Setup", rows[2].DowntimeReasonName)
}

func TestGetProductionDay_DowntimeMinutes(t *testing.T) {
	db := testutil.NewTestDB(t)
	f := testutil.SeedProductionDay(t, db, "2026-03-02", 300)
	setup := testutil.SeedDowntimeReason(t, db, "SETUP", "Setup", true)
	tool := testutil.SeedDowntimeReason(t, db, "TOOL", "Tool change", true)
	f.BookDowntime(t, db, 1, setup, 15)
	f.BookDowntime(t, db, 1, tool, 5)
	f.BookDowntime(t, db, 6, tool, 30)

	detail, err := models.GetProductionDay(context.Background(), db, f.Day.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, detail.Hours[0].DowntimeMinutes)
	assert.Equal(t, 20, detail.Hours[1].DowntimeMinutes)
	assert.Equal(t, 30, detail.Hours[6].DowntimeMinutes)
	assert.Equal(t, 50, detail.DowntimeTotal)
}
