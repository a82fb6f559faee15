package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type WorkCenter struct {
	ID       uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name     string    `gorm:"size:200;not null;index:uniq_work_center_name,unique" json:"name"`
	IsActive *bool     `gorm:"not null;default:true" json:"is_active"`
}

func (w *WorkCenter) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
