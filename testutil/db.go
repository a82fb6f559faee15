// Package testutil holds fixtures shared by package tests. It is not imported
// by production code.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
)

// T0 is the reference instant tests measure from.
var T0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewTestDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func NewTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("MigrateTable() failed: %v", err)
	}
	return db
}

type Fixture struct {
	WorkCenter models.WorkCenter
	Product    models.Product
	User       models.AppUser
	Day        *models.ProductionDay
}

// SeedProductionDay creates reference data and a production day of 8 hours
// with 3600/taktSec planned per hour.
func SeedProductionDay(t testing.TB, db *gorm.DB, date string, taktSec int) *Fixture {
	t.Helper()
	f := &Fixture{
		WorkCenter: models.WorkCenter{Name: "Line " + uuid.NewString()[:8], IsActive: utils.NewTrue()},
		Product:    models.Product{Name: "Bracket", IsActive: utils.NewTrue()},
		User:       models.AppUser{DisplayName: "Master One", Role: models.UserRoleMaster, IsActive: utils.NewTrue()},
	}
	for _, v := range []interface{}{&f.WorkCenter, &f.Product, &f.User} {
		if err := db.Create(v).Error; err != nil {
			t.Fatalf("seed %T: %v", v, err)
		}
	}
	day, err := models.CreateProductionDay(context.Background(), db, &models.NewProductionDay{
		Date:         date,
		WorkCenterId: f.WorkCenter.ID,
		ProductId:    f.Product.ID,
		TaktSec:      taktSec,
	}, f.User.ID, T0)
	if err != nil {
		t.Fatalf("CreateProductionDay() failed: %v", err)
	}
	f.Day = day
	return f
}

// Hour returns the stored hourly record of the fixture day.
func (f *Fixture) Hour(t testing.TB, db *gorm.DB, hourIndex int) models.HourlyRecord {
	t.Helper()
	var hr models.HourlyRecord
	if err := db.Where("production_day_id = ? AND hour_index = ?", f.Day.ID, hourIndex).Take(&hr).Error; err != nil {
		t.Fatalf("load hour %d: %v", hourIndex, err)
	}
	return hr
}

// Events returns all deviation events of an hourly record with logs, oldest first.
func Events(t testing.TB, db *gorm.DB, hourlyRecordId uuid.UUID) []models.DeviationEvent {
	t.Helper()
	var events []models.DeviationEvent
	err := db.Preload("EscalationLogs", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("created_at ASC").Order("level ASC")
	}).Where("hourly_record_id = ?", hourlyRecordId).Order("created_at ASC").Find(&events).Error
	if err != nil {
		t.Fatalf("load events: %v", err)
	}
	return events
}

// SeedDowntimeReason creates a downtime reason; inactive ones cannot be booked.
func SeedDowntimeReason(t testing.TB, db *gorm.DB, code string, name string, active bool) models.DowntimeReason {
	t.Helper()
	reason := models.DowntimeReason{Code: code, Name: name, IsActive: &active}
	if err := db.Create(&reason).Error; err != nil {
		t.Fatalf("seed downtime reason %s: %v", code, err)
	}
	return reason
}

// BookDowntime stores minutes for one reason of a fixture hour.
func (f *Fixture) BookDowntime(t testing.TB, db *gorm.DB, hourIndex int, reason models.DowntimeReason, minutes int) {
	t.Helper()
	err := models.UpsertHourlyDowntimeMinutes(context.Background(), db, &models.UpsertHourlyDowntime{
		HourlyRecordId:   f.Hour(t, db, hourIndex).ID,
		DowntimeReasonId: reason.ID,
		Minutes:          minutes,
	}, f.User.ID, T0)
	if err != nil {
		t.Fatalf("book downtime: %v", err)
	}
}
