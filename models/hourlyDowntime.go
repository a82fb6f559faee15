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

// HourlyDowntime is the minutes one hour lost to one reason.
type HourlyDowntime struct {
	ID               uuid.UUID       `gorm:"type:char(36);primary_key" json:"id"`
	HourlyRecordId   uuid.UUID       `gorm:"type:char(36);not null;index:uniq_hourly_downtime_reason,unique,priority:1" json:"hourly_record_id"`
	DowntimeReasonId uuid.UUID       `gorm:"type:char(36);not null;index:uniq_hourly_downtime_reason,unique,priority:2" json:"downtime_reason_id"`
	DowntimeReason   *DowntimeReason `gorm:"foreignKey:DowntimeReasonId;constraint:OnDelete:RESTRICT" json:"-"`
	Minutes          int             `gorm:"not null" json:"minutes"`
	Comment          *string         `gorm:"size:1000" json:"comment"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime:false" json:"updated_at"`
	UpdatedByUserId  *uuid.UUID      `gorm:"type:char(36)" json:"updated_by_user_id"`
}

func (d *HourlyDowntime) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

type HourlyDowntimeDetail struct {
	ID                 uuid.UUID `json:"id"`
	DowntimeReasonId   uuid.UUID `json:"downtime_reason_id"`
	DowntimeReasonCode string    `json:"downtime_reason_code"`
	DowntimeReasonName string    `json:"downtime_reason_name"`
	Minutes            int       `json:"minutes"`
	Comment            *string   `json:"comment"`
}

type UpsertHourlyDowntime struct {
	HourlyRecordId   uuid.UUID `json:"-" validate:"required"`
	DowntimeReasonId uuid.UUID `json:"downtime_reason_id" validate:"required"`
	Minutes          int       `json:"minutes" validate:"gte=0,lte=60"`
	Comment          *string   `json:"comment" validate:"omitempty,max=1000"`
}

// ListHourlyDowntimes returns the bookings of an hourly record, longest first.
func ListHourlyDowntimes(ctx context.Context, db *gorm.DB, hourlyRecordId uuid.UUID) ([]HourlyDowntimeDetail, error) {
	rows := []HourlyDowntimeDetail{}
	err := db.WithContext(ctx).
		Table("hourly_downtimes").
		Select("hourly_downtimes.id, hourly_downtimes.downtime_reason_id, " +
			"downtime_reasons.code AS downtime_reason_code, downtime_reasons.name AS downtime_reason_name, " +
			"hourly_downtimes.minutes, hourly_downtimes.comment").
		Joins("JOIN downtime_reasons ON downtime_reasons.id = hourly_downtimes.downtime_reason_id").
		Where("hourly_downtimes.hourly_record_id = ?", hourlyRecordId).
		Order("hourly_downtimes.minutes DESC").
		Order("downtime_reasons.name ASC").
		Scan(&rows).Error
	return rows, err
}

// fetchEditableHourlyRecord locks the hourly record and rejects edits on a closed day.
func fetchEditableHourlyRecord(ctx context.Context, tx *gorm.DB, hourlyRecordId uuid.UUID) (*HourlyRecord, error) {
	hr, err := FetchHourlyRecordForUpdate(ctx, tx, hourlyRecordId)
	if err != nil {
		return nil, err
	}
	if hr.ProductionDay.Status == ProductionDayStatusClosed {
		return nil, ErrProductionDayClosed
	}
	return hr, nil
}

// UpsertHourlyDowntimeMinutes books minutes for one reason of an hourly record.
// Zero minutes removes an existing booking.
func UpsertHourlyDowntimeMinutes(ctx context.Context, db *gorm.DB, input *UpsertHourlyDowntime, userId uuid.UUID, now time.Time) error {
	if err := utils.ValidateStruct(input); err != nil {
		return err
	}
	comment := utils.TrimmedOrNil(input.Comment)

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := fetchEditableHourlyRecord(ctx, tx, input.HourlyRecordId); err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&DowntimeReason{}).
			Where("id = ? AND is_active = ?", input.DowntimeReasonId, true).
			Count(&active).Error; err != nil {
			return err
		}
		if active == 0 {
			return utils.InvalidInput("downtime reason %s not found or inactive", input.DowntimeReasonId)
		}

		var existing HourlyDowntime
		err := tx.Where("hourly_record_id = ? AND downtime_reason_id = ?", input.HourlyRecordId, input.DowntimeReasonId).
			Take(&existing).Error
		found := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if input.Minutes == 0 {
			if !found {
				return nil
			}
			return tx.Delete(&HourlyDowntime{}, "id = ?", existing.ID).Error
		}

		if !found {
			return tx.Omit(clause.Associations).Create(&HourlyDowntime{
				HourlyRecordId:   input.HourlyRecordId,
				DowntimeReasonId: input.DowntimeReasonId,
				Minutes:          input.Minutes,
				Comment:          comment,
				UpdatedAt:        now,
				UpdatedByUserId:  &userId,
			}).Error
		}
		return tx.Model(&HourlyDowntime{}).Where("id = ?", existing.ID).Updates(map[string]interface{}{
			"minutes":            input.Minutes,
			"comment":            comment,
			"updated_at":         now,
			"updated_by_user_id": userId,
		}).Error
	})
}

// DeleteHourlyDowntime removes a booking. Unknown records and bookings are ignored.
func DeleteHourlyDowntime(ctx context.Context, db *gorm.DB, hourlyRecordId uuid.UUID, downtimeReasonId uuid.UUID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := fetchEditableHourlyRecord(ctx, tx, hourlyRecordId)
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Delete(&HourlyDowntime{}, "hourly_record_id = ? AND downtime_reason_id = ?", hourlyRecordId, downtimeReasonId).Error
	})
}

type DowntimeReasonMinutes struct {
	DowntimeReasonId uuid.UUID
	Code             string
	Name             string
	TotalMinutes     int
}

// SumDowntimeByReason totals booked minutes per reason for production days in
// [from, to], longest first then by name. A nil workCenterId covers all work centers.
func SumDowntimeByReason(ctx context.Context, db *gorm.DB, from string, to string, workCenterId *uuid.UUID) ([]DowntimeReasonMinutes, error) {
	query := db.WithContext(ctx).
		Table("hourly_downtimes").
		Select("downtime_reasons.id AS downtime_reason_id, downtime_reasons.code, downtime_reasons.name, " +
			"SUM(hourly_downtimes.minutes) AS total_minutes").
		Joins("JOIN downtime_reasons ON downtime_reasons.id = hourly_downtimes.downtime_reason_id").
		Joins("JOIN hourly_records ON hourly_records.id = hourly_downtimes.hourly_record_id").
		Joins("JOIN production_days ON production_days.id = hourly_records.production_day_id").
		Where("production_days.date >= ? AND production_days.date <= ?", from, to)
	if workCenterId != nil {
		query = query.Where("production_days.work_center_id = ?", *workCenterId)
	}

	rows := []DowntimeReasonMinutes{}
	err := query.
		Group("downtime_reasons.id, downtime_reasons.code, downtime_reasons.name").
		Order("total_minutes DESC").
		Order("downtime_reasons.name ASC").
		Scan(&rows).Error
	return rows, err
}

// SumDowntimeByHour totals booked minutes per hourly record of a production day.
func SumDowntimeByHour(ctx context.Context, db *gorm.DB, productionDayId uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		HourlyRecordId uuid.UUID
		Minutes        int
	}
	err := db.WithContext(ctx).
		Table("hourly_downtimes").
		Select("hourly_downtimes.hourly_record_id, SUM(hourly_downtimes.minutes) AS minutes").
		Joins("JOIN hourly_records ON hourly_records.id = hourly_downtimes.hourly_record_id").
		Where("hourly_records.production_day_id = ?", productionDayId).
		Group("hourly_downtimes.hourly_record_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	byHour := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		byHour[r.HourlyRecordId] = r.Minutes
	}
	return byHour, nil
}

// SumDowntimeByDay totals booked minutes per production day.
func SumDowntimeByDay(ctx context.Context, db *gorm.DB, productionDayIds []uuid.UUID) (map[uuid.UUID]int, error) {
	byDay := make(map[uuid.UUID]int, len(productionDayIds))
	if len(productionDayIds) == 0 {
		return byDay, nil
	}
	var rows []struct {
		ProductionDayId uuid.UUID
		Minutes         int
	}
	err := db.WithContext(ctx).
		Table("hourly_downtimes").
		Select("hourly_records.production_day_id, SUM(hourly_downtimes.minutes) AS minutes").
		Joins("JOIN hourly_records ON hourly_records.id = hourly_downtimes.hourly_record_id").
		Where("hourly_records.production_day_id IN ?", productionDayIds).
		Group("hourly_records.production_day_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		byDay[r.ProductionDayId] = r.Minutes
	}
	return byDay, nil
}
