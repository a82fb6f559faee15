package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/prodanalysis_backend/models"
	"github.com/mmdatafocus/prodanalysis_backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReconcileDeviation_ShortfallThenPlanMet(t *testing.T) {
	e := newEngineFixture(t)

	assert.Equal(t, ReconcileCreated, e.reconcile(t, 0, 12, 6))

	ev := e.onlyEvent(t, 0)
	assert.Equal(t, models.DeviationEventStatusOpen, ev.Status)
	assert.Equal(t, 1, ev.CurrentEscalationLevel)
	assert.Equal(t, -6, ev.DeviationQty)
	assert.Equal(t, 12, ev.PlanQty)
	assert.Equal(t, 6, ev.ActualQty)
	assert.True(t, ev.CreatedAt.Equal(testutil.T0))
	assert.Equal(t, e.User.ID, ev.CreatedByUserId)
	assert.Equal(t, testDate, ev.ProductionDate)
	assert.Equal(t, "08:00", ev.HourStart)
	assert.Equal(t, e.WorkCenter.ID, ev.WorkCenterId)
	assert.Equal(t, e.Product.ID, ev.ProductId)
	require.Len(t, ev.EscalationLogs, 1)
	assert.Equal(t, 1, ev.EscalationLogs[0].Level)
	assert.Equal(t, models.EscalationMessageDetected, ev.EscalationLogs[0].Message)

	e.at(10 * time.Minute)
	assert.Equal(t, ReconcileClosed, e.reconcile(t, 0, 12, 12))

	closed := e.onlyEvent(t, 0)
	assert.Equal(t, ev.ID, closed.ID)
	assert.Equal(t, models.DeviationEventStatusClosed, closed.Status)
	assert.Equal(t, 0, closed.DeviationQty)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(testutil.T0.Add(10*time.Minute)))
	require.NotNil(t, closed.ClosedByUserId)
	assert.Equal(t, e.User.ID, *closed.ClosedByUserId)
	assert.Nil(t, closed.OpenSlot)
	require.Len(t, closed.EscalationLogs, 2)
	assert.Equal(t, models.EscalationMessageAutoClosed, closed.EscalationLogs[1].Message)
	assert.Equal(t, 1, closed.EscalationLogs[1].Level)
}

func TestReconcileDeviation_UnchangedInputsAreIdempotent(t *testing.T) {
	e := newEngineFixture(t)

	assert.Equal(t, ReconcileCreated, e.reconcile(t, 1, 12, 6))
	e.at(5 * time.Minute)
	assert.Equal(t, ReconcileUnchanged, e.reconcile(t, 1, 12, 6))
	assert.Equal(t, ReconcileUnchanged, e.reconcile(t, 1, 12, 6))

	ev := e.onlyEvent(t, 1)
	assert.Len(t, ev.EscalationLogs, 1)
	assert.True(t, ev.CreatedAt.Equal(testutil.T0))
}

func TestReconcileDeviation_RefreshesOpenEventInPlace(t *testing.T) {
	e := newEngineFixture(t)

	e.reconcile(t, 2, 12, 3)
	before := e.onlyEvent(t, 2)

	e.at(20 * time.Minute)
	assert.Equal(t, ReconcileUpdated, e.reconcile(t, 2, 12, 9))

	after := e.onlyEvent(t, 2)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, 9, after.ActualQty)
	assert.Equal(t, -3, after.DeviationQty)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.CurrentEscalationLevel, after.CurrentEscalationLevel)
	assert.True(t, after.CreatedAt.Equal(before.CreatedAt))
	assert.Len(t, after.EscalationLogs, 1)

	// a plan change alone also refreshes the event
	assert.Equal(t, ReconcileUpdated, e.reconcile(t, 2, 10, 9))
	assert.Equal(t, -1, e.onlyEvent(t, 2).DeviationQty)
}

func TestReconcileDeviation_AcknowledgedEventRefreshesAndAutoCloses(t *testing.T) {
	e := newEngineFixture(t)

	e.reconcile(t, 4, 12, 4)
	ev := e.onlyEvent(t, 4)
	e.at(5 * time.Minute)
	applied, err := e.svc.Acknowledge(testCtx(), ev.ID, e.User.ID)
	require.NoError(t, err)
	require.True(t, applied)

	e.at(10 * time.Minute)
	assert.Equal(t, ReconcileUpdated, e.reconcile(t, 4, 12, 5))

	refreshed := e.onlyEvent(t, 4)
	assert.Equal(t, ev.ID, refreshed.ID)
	assert.Equal(t, models.DeviationEventStatusAcknowledged, refreshed.Status)
	assert.Equal(t, 5, refreshed.ActualQty)
	assert.Equal(t, -7, refreshed.DeviationQty)
	require.NotNil(t, refreshed.OpenSlot)
	assert.Len(t, refreshed.EscalationLogs, 2)

	e.at(15 * time.Minute)
	assert.Equal(t, ReconcileClosed, e.reconcile(t, 4, 12, 12))

	closed := e.onlyEvent(t, 4)
	assert.Equal(t, ev.ID, closed.ID)
	assert.Equal(t, models.DeviationEventStatusClosed, closed.Status)
	assert.Equal(t, 0, closed.DeviationQty)
	assert.Nil(t, closed.OpenSlot)
	require.NotNil(t, closed.AcknowledgedAt)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, closed.ClosedAt.Equal(testutil.T0.Add(15*time.Minute)))
	require.Len(t, closed.EscalationLogs, 3)
	assert.Equal(t, models.EscalationMessageDetected, closed.EscalationLogs[0].Message)
	assert.Equal(t, models.EscalationMessageAcknowledged, closed.EscalationLogs[1].Message)
	assert.Equal(t, models.EscalationMessageAutoClosed, closed.EscalationLogs[2].Message)
}

func TestReconcileDeviation_NoOpWhenPlanMetWithoutEvent(t *testing.T) {
	e := newEngineFixture(t)

	assert.Equal(t, ReconcileNoOp, e.reconcile(t, 3, 12, 12))
	assert.Equal(t, ReconcileNoOp, e.reconcile(t, 3, 12, 20))
	assert.Empty(t, e.events(t, 3))
}

func TestReconcileDeviation_ShortfallAfterCloseCreatesNewEvent(t *testing.T) {
	e := newEngineFixture(t)

	e.reconcile(t, 4, 12, 6)
	e.at(10 * time.Minute)
	e.reconcile(t, 4, 12, 12)
	first := e.onlyEvent(t, 4)

	e.at(40 * time.Minute)
	assert.Equal(t, ReconcileCreated, e.reconcile(t, 4, 12, 7))

	events := e.events(t, 4)
	require.Len(t, events, 2)
	old, fresh := events[0], events[1]

	// closed event is not reopened and keeps its closure
	assert.Equal(t, first.ID, old.ID)
	assert.Equal(t, models.DeviationEventStatusClosed, old.Status)
	require.NotNil(t, old.ClosedAt)
	assert.True(t, old.ClosedAt.Equal(*first.ClosedAt))
	assert.Len(t, old.EscalationLogs, 2)

	assert.Equal(t, models.DeviationEventStatusOpen, fresh.Status)
	assert.Equal(t, -5, fresh.DeviationQty)
	assert.Nil(t, fresh.ClosedAt)
	assert.True(t, fresh.CreatedAt.Equal(testutil.T0.Add(40*time.Minute)))
	assert.Equal(t, 1, e.nonClosedCount(t, 4))
}

func TestReconcileDeviation_AutoCloseLogsAtEscalatedLevel(t *testing.T) {
	e := newEngineFixture(t)

	e.reconcile(t, 5, 12, 0)
	_, err := EvaluateEscalations(context.Background(), e.db, 30, testutil.T0.Add(31*time.Minute))
	require.NoError(t, err)

	e.at(50 * time.Minute)
	assert.Equal(t, ReconcileClosed, e.reconcile(t, 5, 12, 12))

	ev := e.onlyEvent(t, 5)
	assert.Equal(t, 2, ev.CurrentEscalationLevel)
	last := ev.EscalationLogs[len(ev.EscalationLogs)-1]
	assert.Equal(t, models.EscalationMessageAutoClosed, last.Message)
	assert.Equal(t, 2, last.Level)
}

func TestReconcileDeviation_CorruptedOpenEvents(t *testing.T) {
	e := newEngineFixture(t)
	hr := e.Hour(t, e.db, 6)

	for i := 0; i < 2; i++ {
		ev := models.DeviationEvent{
			ProductionDayId:        e.Day.ID,
			HourlyRecordId:         hr.ID,
			WorkCenterId:           e.WorkCenter.ID,
			ProductId:              e.Product.ID,
			ProductionDate:         testDate,
			HourIndex:              hr.HourIndex,
			HourStart:              hr.HourStart,
			PlanQty:                12,
			ActualQty:              1,
			DeviationQty:           -11,
			Status:                 models.DeviationEventStatusOpen,
			CurrentEscalationLevel: 1,
			CreatedAt:              testutil.T0.Add(time.Duration(i) * time.Minute),
			CreatedByUserId:        e.User.ID,
		}
		require.NoError(t, e.db.Create(&ev).Error)
	}

	_, err := e.svc.Reconcile(context.Background(), hr.ID, 12, 5, e.User.ID)
	assert.ErrorIs(t, err, ErrCorruptedOpenEvents)

	// the hourly record update rolled back with the failed reconcile
	after := e.Hour(t, e.db, 6)
	assert.Equal(t, 0, after.Actual())
}

func TestReconcileDeviation_OpenSlotRejectsSecondOpenEvent(t *testing.T) {
	e := newEngineFixture(t)
	e.reconcile(t, 7, 12, 6)
	existing := e.onlyEvent(t, 7)

	dup := existing
	dup.ID = uuid.Nil
	dup.EscalationLogs = nil
	err := e.db.Omit("EscalationLogs").Create(&dup).Error
	require.Error(t, err)
	assert.Equal(t, 1, e.nonClosedCount(t, 7))
}

func TestReconcileDeviation_RunsInCallerTransaction(t *testing.T) {
	e := newEngineFixture(t)
	hr := e.Hour(t, e.db, 0)

	err := e.db.Transaction(func(tx *gorm.DB) error {
		locked, err := models.FetchHourlyRecordForUpdate(testCtx(), tx, hr.ID)
		if err != nil {
			return err
		}
		if _, err := models.ApplyHourlyValues(context.Background(), tx, locked, 12, 4, nil, e.User.ID, testutil.T0); err != nil {
			return err
		}
		result, err := ReconcileDeviation(context.Background(), tx, locked, e.User.ID, testutil.T0)
		if err != nil {
			return err
		}
		assert.Equal(t, ReconcileCreated, result)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Empty(t, e.events(t, 0))
	after := e.Hour(t, e.db, 0)
	assert.Equal(t, 0, after.Actual())
}

func TestReconcileDeviation_AtMostOneNonClosedEventPerHour(t *testing.T) {
	e := newEngineFixture(t)
	actuals := []int{3, 3, 12, 5, 0, 11, 12, 12, 2, 14, 1}

	for i, actual := range actuals {
		e.at(time.Duration(i) * 7 * time.Minute)
		e.reconcile(t, 0, 12, actual)
		assert.LessOrEqual(t, e.nonClosedCount(t, 0), 1, "after step %d", i)
	}

	for _, ev := range e.events(t, 0) {
		if ev.IsClosed() {
			assert.NotNil(t, ev.ClosedAt)
			continue
		}
		assert.LessOrEqual(t, ev.DeviationQty, 0)
		assert.Equal(t, ev.ActualQty-ev.PlanQty, ev.DeviationQty)
	}
}
