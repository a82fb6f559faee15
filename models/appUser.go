package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppUser is the identity recorded on audit fields. Authentication lives elsewhere.
type AppUser struct {
	ID          uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	DisplayName string    `gorm:"size:200;not null" json:"display_name"`
	Role        UserRole  `gorm:"size:20;not null" json:"role"`
	Email       *string   `gorm:"size:200" json:"email"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
}

func (u *AppUser) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
