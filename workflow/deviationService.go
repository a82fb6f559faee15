package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DeviationService is the read and transition surface of the deviation engine.
// Reads run an escalation pass first so they never show stale levels.
type DeviationService struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Options config.DeviationOptions
	Clock   utils.Clock
}

func NewDeviationService(db *gorm.DB, logger *logrus.Logger, opts config.DeviationOptions, clock utils.Clock) *DeviationService {
	if clock == nil {
		clock = utils.SystemClock()
	}
	if logger == nil {
		logger = config.GetLogger()
	}
	return &DeviationService{DB: db, Logger: logger, Options: opts, Clock: clock}
}

type ListDeviationFilter struct {
	Date          *string
	WorkCenterId  *uuid.UUID
	IncludeClosed bool
}

type DeviationEventListItem struct {
	ID                     uuid.UUID                   `json:"id"`
	ProductionDate         string                      `json:"production_date"`
	HourIndex              int                         `json:"hour_index"`
	HourStart              string                      `json:"hour_start"`
	WorkCenterId           uuid.UUID                   `json:"work_center_id"`
	WorkCenterName         string                      `json:"work_center_name"`
	ProductId              uuid.UUID                   `json:"product_id"`
	ProductName            string                      `json:"product_name"`
	PlanQty                int                         `json:"plan_qty"`
	ActualQty              int                         `json:"actual_qty"`
	DeviationQty           int                         `json:"deviation_qty"`
	Status                 models.DeviationEventStatus `json:"status"`
	CurrentEscalationLevel int                         `json:"current_escalation_level"`
	CreatedAt              time.Time                   `json:"created_at"`
	AcknowledgedAt         *time.Time                  `json:"acknowledged_at"`
	ClosedAt               *time.Time                  `json:"closed_at"`
	AgeMinutes             int                         `json:"age_minutes"`
}

type DeviationEventDetail struct {
	models.DeviationEvent
	WorkCenterName     string  `json:"work_center_name"`
	ProductName        string  `json:"product_name"`
	CreatedByName      *string `json:"created_by_name"`
	AcknowledgedByName *string `json:"acknowledged_by_name"`
	ClosedByName       *string `json:"closed_by_name"`
	AgeMinutes         int     `json:"age_minutes"`
}

// refreshEscalations runs the pre-read evaluation pass. A failure is logged and
// the read goes ahead; the worker or the next read retries the pass.
func (s *DeviationService) refreshEscalations(ctx context.Context, now time.Time) {
	_, err := EvaluateEscalations(ctx, s.DB, s.Options.ThresholdMinutes(), now)
	status := "ok"
	if err != nil {
		status = "error"
		config.LogError(s.Logger, "DeviationService", "refreshEscalations", "evaluate before read", nil, err)
	}
	metrics.EvaluationsTotal.WithLabelValues("read", status).Inc()
}

func (s *DeviationService) List(ctx context.Context, filter ListDeviationFilter) ([]DeviationEventListItem, error) {
	if filter.Date != nil {
		if _, err := time.Parse(models.DateLayout, *filter.Date); err != nil {
			return nil, utils.InvalidInput("date %q must be yyyy-mm-dd", *filter.Date)
		}
	}
	now := s.Clock.Now()
	s.refreshEscalations(ctx, now)

	db := s.DB.WithContext(ctx).Model(&models.DeviationEvent{})
	if filter.Date != nil {
		db = db.Where("production_date = ?", *filter.Date)
	}
	if filter.WorkCenterId != nil {
		db = db.Where("work_center_id = ?", *filter.WorkCenterId)
	}
	if !filter.IncludeClosed {
		db = db.Where("status <> ?", models.DeviationEventStatusClosed)
	}

	var events []models.DeviationEvent
	if err := db.Order("created_at DESC").Find(&events).Error; err != nil {
		return nil, err
	}

	workCenterIds := make([]uuid.UUID, 0, len(events))
	productIds := make([]uuid.UUID, 0, len(events))
	for _, e := range events {
		workCenterIds = append(workCenterIds, e.WorkCenterId)
		productIds = append(productIds, e.ProductId)
	}
	names, err := models.LookupNames(ctx, s.DB, workCenterIds, productIds, nil)
	if err != nil {
		return nil, err
	}

	items := make([]DeviationEventListItem, 0, len(events))
	for _, e := range events {
		items = append(items, DeviationEventListItem{
			ID:                     e.ID,
			ProductionDate:         e.ProductionDate,
			HourIndex:              e.HourIndex,
			HourStart:              e.HourStart,
			WorkCenterId:           e.WorkCenterId,
			WorkCenterName:         names.WorkCenter(e.WorkCenterId),
			ProductId:              e.ProductId,
			ProductName:            names.Product(e.ProductId),
			PlanQty:                e.PlanQty,
			ActualQty:              e.ActualQty,
			DeviationQty:           e.DeviationQty,
			Status:                 e.Status,
			CurrentEscalationLevel: e.CurrentEscalationLevel,
			CreatedAt:              e.CreatedAt,
			AcknowledgedAt:         e.AcknowledgedAt,
			ClosedAt:               e.ClosedAt,
			AgeMinutes:             e.AgeMinutes(now),
		})
	}
	return items, nil
}

// Get returns the event with its audit trail oldest first.
// May return utils.ErrorRecordNotFound.
func (s *DeviationService) Get(ctx context.Context, id uuid.UUID) (*DeviationEventDetail, error) {
	now := s.Clock.Now()
	s.refreshEscalations(ctx, now)

	var event models.DeviationEvent
	err := s.DB.WithContext(ctx).
		Preload("EscalationLogs", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC").Order("level ASC")
		}).
		Where("id = ?", id).
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NotFound("deviation event", id)
		}
		return nil, err
	}

	userIds := []uuid.UUID{event.CreatedByUserId}
	if event.AcknowledgedByUserId != nil {
		userIds = append(userIds, *event.AcknowledgedByUserId)
	}
	if event.ClosedByUserId != nil {
		userIds = append(userIds, *event.ClosedByUserId)
	}
	names, err := models.LookupNames(ctx, s.DB, []uuid.UUID{event.WorkCenterId}, []uuid.UUID{event.ProductId}, userIds)
	if err != nil {
		return nil, err
	}

	return &DeviationEventDetail{
		DeviationEvent:     event,
		WorkCenterName:     names.WorkCenter(event.WorkCenterId),
		ProductName:        names.Product(event.ProductId),
		CreatedByName:      names.User(&event.CreatedByUserId),
		AcknowledgedByName: names.User(event.AcknowledgedByUserId),
		ClosedByName:       names.User(event.ClosedByUserId),
		AgeMinutes:         event.AgeMinutes(now),
	}, nil
}

// Acknowledge records the operator's acknowledgement. It returns false when the
// event was already acknowledged. A closed event keeps its Closed status.
func (s *DeviationService) Acknowledge(ctx context.Context, id uuid.UUID, userId uuid.UUID) (bool, error) {
	if userId == uuid.Nil {
		return false, utils.InvalidInput("user id is required")
	}
	now := s.Clock.Now()
	applied := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := models.FetchDeviationEventForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if event.IsAcknowledged() {
			return nil
		}
		updates := map[string]interface{}{
			"acknowledged_at":         now,
			"acknowledged_by_user_id": userId,
		}
		if event.Status == models.DeviationEventStatusOpen {
			updates["status"] = models.DeviationEventStatusAcknowledged
		}
		if err := tx.Model(&models.DeviationEvent{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
			return err
		}
		if _, err := models.AppendEscalationLog(ctx, tx, event.ID, event.AuditLevel(), models.EscalationMessageAcknowledged, now); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	metrics.TransitionsTotal.WithLabelValues("acknowledge", outcomeLabel(applied)).Inc()
	return applied, nil
}

// Close closes the event manually. A non-blank note replaces the stored one.
// It returns false when the event was already closed.
func (s *DeviationService) Close(ctx context.Context, id uuid.UUID, userId uuid.UUID, note *string) (bool, error) {
	if userId == uuid.Nil {
		return false, utils.InvalidInput("user id is required")
	}
	note = utils.TrimmedOrNil(note)
	if note != nil && len(*note) > models.DeviationNoteMaxLength {
		return false, utils.InvalidInput("note exceeds %d characters", models.DeviationNoteMaxLength)
	}
	now := s.Clock.Now()
	applied := false

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		event, err := models.FetchDeviationEventForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if event.IsClosed() {
			return nil
		}
		updates := map[string]interface{}{
			"status":            models.DeviationEventStatusClosed,
			"closed_at":         now,
			"closed_by_user_id": userId,
			"open_slot":         nil,
		}
		if note != nil {
			updates["note"] = *note
		}
		if err := tx.Model(&models.DeviationEvent{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
			return err
		}
		if _, err := models.AppendEscalationLog(ctx, tx, event.ID, event.AuditLevel(), models.EscalationMessageClosedByUser, now); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	metrics.TransitionsTotal.WithLabelValues("close", outcomeLabel(applied)).Inc()
	return applied, nil
}

// Reconcile sets plan and actual of an hourly record and reconciles its
// deviation event in one transaction. The stored comment is kept.
func (s *DeviationService) Reconcile(ctx context.Context, hourlyRecordId uuid.UUID, planQty int, actualQty int, userId uuid.UUID) (ReconcileResult, error) {
	if planQty < 0 || actualQty < 0 {
		return "", utils.InvalidInput("plan and actual must not be negative")
	}
	if userId == uuid.Nil {
		return "", utils.InvalidInput("user id is required")
	}
	now := s.Clock.Now()
	var result ReconcileResult

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hr, err := models.FetchHourlyRecordForUpdate(ctx, tx, hourlyRecordId)
		if err != nil {
			return err
		}
		if _, err := models.ApplyHourlyValues(ctx, tx, hr, planQty, actualQty, hr.Comment, userId, now); err != nil {
			return err
		}
		result, err = ReconcileDeviation(ctx, tx, hr, userId, now)
		return err
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func outcomeLabel(applied bool) string {
	if applied {
		return "applied"
	}
	return "noop"
}
