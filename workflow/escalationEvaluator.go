package workflow

import (
	"context"
	"time"

	"github.com/mmdatafocus/prodanalysis_backend/config"
	"github.com/mmdatafocus/prodanalysis_backend/metrics"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// EvaluateEscalations promotes Open, unacknowledged events created at least
// thresholdMinutes before now to the top escalation level and returns how many
// were promoted. Repeated passes are idempotent: the level update is guarded in
// SQL and the level 2 log is written only when none exists yet.
func EvaluateEscalations(ctx context.Context, db *gorm.DB, thresholdMinutes int, now time.Time) (int, error) {
	if thresholdMinutes <= 0 {
		thresholdMinutes = config.DefaultEscalationMinutes
	}
	ctx, span := tracer.Start(ctx, "EvaluateEscalations", trace.WithAttributes(
		attribute.Int("escalation.threshold_minutes", thresholdMinutes),
	))
	defer span.End()

	started := time.Now()
	defer func() {
		metrics.EvaluationDurationSeconds.Observe(time.Since(started).Seconds())
	}()

	cutoff := now.Add(-time.Duration(thresholdMinutes) * time.Minute)
	promoted := 0

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidates []models.DeviationEvent
		err := tx.Preload("EscalationLogs").
			Where("status = ? AND acknowledged_at IS NULL AND created_at <= ? AND current_escalation_level < ?",
				models.DeviationEventStatusOpen, cutoff, models.EscalationTopLevel).
			Order("created_at ASC").
			Find(&candidates).Error
		if err != nil {
			return err
		}

		for i := range candidates {
			event := &candidates[i]
			// guarded so an overlapping pass cannot promote twice
			res := tx.Model(&models.DeviationEvent{}).
				Where("id = ? AND status = ? AND acknowledged_at IS NULL AND current_escalation_level < ?",
					event.ID, models.DeviationEventStatusOpen, models.EscalationTopLevel).
				Update("current_escalation_level", models.EscalationTopLevel)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			promoted++
			if event.HasLogAtLevel(models.EscalationTopLevel) {
				continue
			}
			if _, err := models.AppendEscalationLog(ctx, tx, event.ID, models.EscalationTopLevel, models.EscalationMessageLevel2, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	span.SetAttributes(attribute.Int("escalation.promoted", promoted))
	metrics.EventsPromotedTotal.Add(float64(promoted))
	return promoted, nil
}
