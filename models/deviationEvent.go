package models

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	EscalationMessageDetected     = "Deviation detected (level 1)."
	EscalationMessageAutoClosed   = "Auto-closed: plan met."
	EscalationMessageLevel2       = "Escalation: level 2, no acknowledgement within threshold."
	EscalationMessageAcknowledged = "Acknowledged."
	EscalationMessageClosedByUser = "Closed by user."
	DeviationNoteMaxLength        = 2000
	EscalationLogMessageMaxLength = 1000
	DeviationEventInitialLevel    = 1
	EscalationTopLevel            = 2
)

// DeviationEvent is one shortfall episode of an hourly record.
// At most one non-closed event exists per hourly record; OpenSlot carries the
// hourly record id while the event is not closed so the unique index rejects a
// second one.
type DeviationEvent struct {
	ID                     uuid.UUID            `gorm:"type:char(36);primary_key" json:"id"`
	ProductionDayId        uuid.UUID            `gorm:"type:char(36);not null" json:"production_day_id"`
	HourlyRecordId         uuid.UUID            `gorm:"type:char(36);not null;index" json:"hourly_record_id"`
	WorkCenterId           uuid.UUID            `gorm:"type:char(36);not null;index:idx_deviation_date_work_center,priority:2" json:"work_center_id"`
	ProductId              uuid.UUID            `gorm:"type:char(36);not null" json:"product_id"`
	ProductionDate         string               `gorm:"size:10;not null;index:idx_deviation_date_work_center,priority:1" json:"production_date"`
	HourIndex              int                  `gorm:"not null" json:"hour_index"`
	HourStart              string               `gorm:"size:5;not null" json:"hour_start"`
	PlanQty                int                  `gorm:"not null" json:"plan_qty"`
	ActualQty              int                  `gorm:"not null" json:"actual_qty"`
	DeviationQty           int                  `gorm:"not null" json:"deviation_qty"`
	Status                 DeviationEventStatus `gorm:"size:20;not null;index:idx_deviation_status_created,priority:1" json:"status"`
	CurrentEscalationLevel int                  `gorm:"not null;default:1" json:"current_escalation_level"`
	CreatedAt              time.Time            `gorm:"autoCreateTime:false;not null;index:idx_deviation_status_created,priority:2" json:"created_at"`
	CreatedByUserId        uuid.UUID            `gorm:"type:char(36);not null" json:"created_by_user_id"`
	AcknowledgedAt         *time.Time           `json:"acknowledged_at"`
	AcknowledgedByUserId   *uuid.UUID           `gorm:"type:char(36)" json:"acknowledged_by_user_id"`
	ClosedAt               *time.Time           `json:"closed_at"`
	ClosedByUserId         *uuid.UUID           `gorm:"type:char(36)" json:"closed_by_user_id"`
	Note                   *string              `gorm:"size:2000" json:"note"`
	OpenSlot               *string              `gorm:"size:36;index:uniq_deviation_open_slot,unique" json:"-"`
	EscalationLogs         []EscalationLog      `gorm:"foreignKey:DeviationEventId;constraint:OnDelete:CASCADE" json:"escalation_logs,omitempty"`
}

func (e *DeviationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *DeviationEvent) IsClosed() bool {
	return e.Status == DeviationEventStatusClosed
}

func (e *DeviationEvent) IsAcknowledged() bool {
	return e.AcknowledgedAt != nil
}

// AuditLevel is the level new audit entries are written at.
func (e *DeviationEvent) AuditLevel() int {
	return EscalationLevelFloor(e.CurrentEscalationLevel)
}

// AgeMinutes is whole minutes since creation, never negative.
func (e *DeviationEvent) AgeMinutes(now time.Time) int {
	return AgeMinutes(e.CreatedAt, now)
}

func (e *DeviationEvent) HasLogAtLevel(level int) bool {
	for _, l := range e.EscalationLogs {
		if l.Level == level {
			return true
		}
	}
	return false
}

func EscalationLevelFloor(level int) int {
	return utils.MaxInt(DeviationEventInitialLevel, level)
}

func AgeMinutes(createdAt time.Time, now time.Time) int {
	d := now.Sub(createdAt)
	if d <= 0 {
		return 0
	}
	return int(math.Floor(d.Minutes()))
}

// OpenSlotFor is the guard value held by a non-closed event of the hourly record.
func OpenSlotFor(hourlyRecordId uuid.UUID) *string {
	s := hourlyRecordId.String()
	return &s
}

// FindNonClosedDeviationEvents returns non-closed events of an hourly record, newest first.
func FindNonClosedDeviationEvents(ctx context.Context, tx *gorm.DB, hourlyRecordId uuid.UUID) ([]DeviationEvent, error) {
	var events []DeviationEvent
	err := tx.WithContext(ctx).
		Where("hourly_record_id = ? AND status <> ?", hourlyRecordId, DeviationEventStatusClosed).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

// FetchDeviationEventForUpdate locks the event row until tx ends.
func FetchDeviationEventForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*DeviationEvent, error) {
	var event DeviationEvent
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("deviation event", id)
		}
		return nil, err
	}
	return &event, nil
}

// DeviationDayStats summarizes the deviation events of one production day.
type DeviationDayStats struct {
	Total              int
	NonClosed          int
	MaxEscalationLevel int
}

func SumDeviationStatsByDay(ctx context.Context, db *gorm.DB, productionDayIds []uuid.UUID) (map[uuid.UUID]DeviationDayStats, error) {
	stats := make(map[uuid.UUID]DeviationDayStats, len(productionDayIds))
	if len(productionDayIds) == 0 {
		return stats, nil
	}
	var rows []struct {
		ProductionDayId    uuid.UUID
		Total              int
		NonClosed          int
		MaxEscalationLevel int
	}
	err := db.WithContext(ctx).
		Model(&DeviationEvent{}).
		Select("production_day_id, COUNT(*) AS total, "+
			"SUM(CASE WHEN status <> ? THEN 1 ELSE 0 END) AS non_closed, "+
			"MAX(current_escalation_level) AS max_escalation_level", DeviationEventStatusClosed).
		Where("production_day_id IN ?", productionDayIds).
		Group("production_day_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats[r.ProductionDayId] = DeviationDayStats{Total: r.Total, NonClosed: r.NonClosed, MaxEscalationLevel: r.MaxEscalationLevel}
	}
	return stats, nil
}
