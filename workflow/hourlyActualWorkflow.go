package workflow

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type UpdateHourlyActualInput struct {
	HourlyRecordId uuid.UUID `json:"-" validate:"required"`
	ActualQty      *int      `json:"actual_qty" validate:"omitempty,gte=0"`
	Comment        *string   `json:"comment" validate:"omitempty,max=1000"`
}

// UpdateHourlyActual stores the actual output (missing means 0) and comment of
// an hourly record and reconciles its deviation event in the same transaction.
// It reports whether actual or comment changed.
func (s *DeviationService) UpdateHourlyActual(ctx context.Context, input UpdateHourlyActualInput, userId uuid.UUID) (bool, error) {
	if err := utils.ValidateStruct(&input); err != nil {
		return false, err
	}
	if userId == uuid.Nil {
		return false, utils.InvalidInput("user id is required")
	}
	actual := utils.DereferencePtr(input.ActualQty, 0)
	comment := utils.TrimmedOrNil(input.Comment)
	now := s.Clock.Now()

	var (
		changed bool
		result  ReconcileResult
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		hr, err := models.FetchHourlyRecordForUpdate(ctx, tx, input.HourlyRecordId)
		if err != nil {
			return err
		}
		changed, err = models.ApplyHourlyValues(ctx, tx, hr, hr.PlanQty, actual, comment, userId, now)
		if err != nil {
			return err
		}
		result, err = ReconcileDeviation(ctx, tx, hr, userId, now)
		return err
	})
	if err != nil {
		return false, err
	}

	s.Logger.WithFields(logrus.Fields{
		"field":            "UpdateHourlyActual",
		"hourly_record_id": input.HourlyRecordId,
		"actual_qty":       actual,
		"reconcile":        result,
	}).Debug("hourly actual updated")
	return changed, nil
}
