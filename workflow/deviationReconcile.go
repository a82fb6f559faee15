package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("prodanalysis/workflow")

// ErrCorruptedOpenEvents means an hourly record has more than one non-closed event.
var ErrCorruptedOpenEvents = errors.New("more than one non-closed deviation event for hourly record")

type ReconcileResult string

const (
	ReconcileCreated   ReconcileResult = "created"
	ReconcileUpdated   ReconcileResult = "updated"
	ReconcileClosed    ReconcileResult = "closed"
	ReconcileUnchanged ReconcileResult = "unchanged"
	ReconcileNoOp      ReconcileResult = "noop"
)

// ReconcileDeviation derives the deviation event of hr from its current plan and actual.
// It must run in the transaction that wrote hr so both commit together, and hr
// should have been read with FetchHourlyRecordForUpdate.
//
//   - actual < plan, no open event: create one (Open, level 1) with a detection log
//   - actual < plan, open event: refresh plan/actual/deviation in place
//   - actual >= plan, open event: auto-close with a log at the event's level
//   - actual >= plan, no open event: nothing
//
// A closed event is never reopened; a later shortfall starts a new event.
func ReconcileDeviation(ctx context.Context, tx *gorm.DB, hr *models.HourlyRecord, userId uuid.UUID, now time.Time) (ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "ReconcileDeviation", trace.WithAttributes(
		attribute.String("hourly_record.id", hr.ID.String()),
		attribute.Int("hourly_record.plan_qty", hr.PlanQty),
		attribute.Int("hourly_record.actual_qty", hr.Actual()),
	))
	defer span.End()

	result, err := reconcileDeviation(ctx, tx, hr, userId, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("reconcile.result", string(result)))
	metrics.ReconcileTotal.WithLabelValues(string(result)).Inc()
	return result, nil
}

func reconcileDeviation(ctx context.Context, tx *gorm.DB, hr *models.HourlyRecord, userId uuid.UUID, now time.Time) (ReconcileResult, error) {
	events, err := models.FindNonClosedDeviationEvents(ctx, tx, hr.ID)
	if err != nil {
		return "", err
	}
	if len(events) > 1 {
		return "", fmt.Errorf("%w: hourly record %s has %d", ErrCorruptedOpenEvents, hr.ID, len(events))
	}
	var open *models.DeviationEvent
	if len(events) == 1 {
		open = &events[0]
	}

	plan := hr.PlanQty
	actual := hr.Actual()

	if actual < plan {
		if open == nil {
			if err := createDeviationEvent(ctx, tx, hr, userId, now); err != nil {
				return "", err
			}
			return ReconcileCreated, nil
		}
		if open.PlanQty == plan && open.ActualQty == actual {
			return ReconcileUnchanged, nil
		}
		err := tx.WithContext(ctx).Model(&models.DeviationEvent{}).Where("id = ?", open.ID).Updates(map[string]interface{}{
			"plan_qty":      plan,
			"actual_qty":    actual,
			"deviation_qty": actual - plan,
		}).Error
		if err != nil {
			return "", err
		}
		return ReconcileUpdated, nil
	}

	if open == nil {
		return ReconcileNoOp, nil
	}

	err = tx.WithContext(ctx).Model(&models.DeviationEvent{}).Where("id = ?", open.ID).Updates(map[string]interface{}{
		"plan_qty":          plan,
		"actual_qty":        actual,
		"deviation_qty":     actual - plan,
		"status":            models.DeviationEventStatusClosed,
		"closed_at":         now,
		"closed_by_user_id": userId,
		"open_slot":         nil,
	}).Error
	if err != nil {
		return "", err
	}
	if _, err := models.AppendEscalationLog(ctx, tx, open.ID, open.AuditLevel(), models.EscalationMessageAutoClosed, now); err != nil {
		return "", err
	}
	return ReconcileClosed, nil
}

func createDeviationEvent(ctx context.Context, tx *gorm.DB, hr *models.HourlyRecord, userId uuid.UUID, now time.Time) error {
	day := hr.ProductionDay
	if day == nil {
		day = &models.ProductionDay{}
		if err := tx.WithContext(ctx).Where("id = ?", hr.ProductionDayId).Take(day).Error; err != nil {
			return err
		}
	}

	plan := hr.PlanQty
	actual := hr.Actual()
	event := models.DeviationEvent{
		ProductionDayId:        hr.ProductionDayId,
		HourlyRecordId:         hr.ID,
		WorkCenterId:           day.WorkCenterId,
		ProductId:              day.ProductId,
		ProductionDate:         day.Date,
		HourIndex:              hr.HourIndex,
		HourStart:              hr.HourStart,
		PlanQty:                plan,
		ActualQty:              actual,
		DeviationQty:           actual - plan,
		Status:                 models.DeviationEventStatusOpen,
		CurrentEscalationLevel: models.DeviationEventInitialLevel,
		CreatedAt:              now,
		CreatedByUserId:        userId,
		OpenSlot:               models.OpenSlotFor(hr.ID),
	}
	if err := tx.WithContext(ctx).Omit(clause.Associations).Create(&event).Error; err != nil {
		return err
	}
	_, err := models.AppendEscalationLog(ctx, tx, event.ID, models.DeviationEventInitialLevel, models.EscalationMessageDetected, now)
	return err
}
