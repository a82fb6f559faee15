package models

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DowntimeReason struct {
	ID       uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Code     string    `gorm:"size:50;not null;index:uniq_downtime_reason_code,unique" json:"code"`
	Name     string    `gorm:"size:200;not null" json:"name"`
	IsActive *bool     `gorm:"not null;default:true" json:"is_active"`
}

func (r *DowntimeReason) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ListActiveDowntimeReasons returns the reasons operators can book, by name.
func ListActiveDowntimeReasons(ctx context.Context, db *gorm.DB) ([]DowntimeReason, error) {
	reasons := []DowntimeReason{}
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name ASC").
		Find(&reasons).Error
	return reasons, err
}
