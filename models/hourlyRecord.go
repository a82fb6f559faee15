package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type HourlyRecord struct {
	ID              uuid.UUID        `gorm:"type:char(36);primary_key" json:"id"`
	ProductionDayId uuid.UUID        `gorm:"type:char(36);not null;index:uniq_hourly_record_slot,unique,priority:1" json:"production_day_id"`
	ProductionDay   *ProductionDay   `gorm:"-" json:"-"`
	HourIndex       int              `gorm:"not null;index:uniq_hourly_record_slot,unique,priority:2" json:"hour_index"`
	HourStart       string           `gorm:"size:5;not null" json:"hour_start"`
	PlanQty         int              `gorm:"not null" json:"plan_qty"`
	ActualQty       *int             `json:"actual_qty"`
	Comment         *string          `gorm:"size:1000" json:"comment"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime:false" json:"updated_at"`
	UpdatedByUserId *uuid.UUID       `gorm:"type:char(36)" json:"updated_by_user_id"`
	HourlyDowntimes []HourlyDowntime `gorm:"foreignKey:HourlyRecordId;constraint:OnDelete:CASCADE" json:"-"`
}

func (hr *HourlyRecord) BeforeCreate(tx *gorm.DB) error {
	if hr.ID == uuid.Nil {
		hr.ID = uuid.New()
	}
	return nil
}

// Actual treats a missing actual quantity as zero output.
func (hr *HourlyRecord) Actual() int {
	return utils.DereferencePtr(hr.ActualQty, 0)
}

// FetchHourlyRecordForUpdate loads the hourly record with its production day and
// holds a row lock on the record until tx ends (no-op on SQLite, which serializes writers).
// May return RecordNotFound.
func FetchHourlyRecordForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*HourlyRecord, error) {
	var hr HourlyRecord
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&hr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("hourly record", id)
		}
		return nil, err
	}
	var day ProductionDay
	if err := tx.WithContext(ctx).Where("id = ?", hr.ProductionDayId).Take(&day).Error; err != nil {
		return nil, err
	}
	hr.ProductionDay = &day
	return &hr, nil
}

// ApplyHourlyValues writes plan/actual/comment and the audit stamp.
// Returns whether the stored values differ from the previous ones.
func ApplyHourlyValues(ctx context.Context, tx *gorm.DB, hr *HourlyRecord, planQty int, actualQty int, comment *string, userId uuid.UUID, now time.Time) (bool, error) {
	changed := hr.PlanQty != planQty || hr.Actual() != actualQty || !utils.StringPtrEqual(hr.Comment, comment)

	if err := tx.WithContext(ctx).Model(&HourlyRecord{}).Where("id = ?", hr.ID).Updates(map[string]interface{}{
		"plan_qty":           planQty,
		"actual_qty":         actualQty,
		"comment":            comment,
		"updated_at":         now,
		"updated_by_user_id": userId,
	}).Error; err != nil {
		return false, err
	}

	hr.PlanQty = planQty
	hr.ActualQty = &actualQty
	hr.Comment = comment
	hr.UpdatedAt = now
	hr.UpdatedByUserId = &userId
	return changed, nil
}
