package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EscalationLog is an append-only audit row of a deviation event.
type EscalationLog struct {
	ID               uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	DeviationEventId uuid.UUID `gorm:"type:char(36);not null;index:idx_escalation_log_event_level,priority:1" json:"deviation_event_id"`
	Level            int       `gorm:"not null;index:idx_escalation_log_event_level,priority:2" json:"level"`
	CreatedAt        time.Time `gorm:"autoCreateTime:false;not null;index:idx_escalation_log_event_level,priority:3" json:"created_at"`
	Message          string    `gorm:"size:1000;not null" json:"message"`
}

func (l *EscalationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func AppendEscalationLog(ctx context.Context, tx *gorm.DB, eventId uuid.UUID, level int, message string, now time.Time) (*EscalationLog, error) {
	if len(message) > EscalationLogMessageMaxLength {
		message = message[:EscalationLogMessageMaxLength]
	}
	entry := EscalationLog{
		DeviationEventId: eventId,
		Level:            level,
		CreatedAt:        now,
		Message:          message,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}
